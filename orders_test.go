package folio_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/types"
)

func items(pairs ...any) []order.Item {
	out := make([]order.Item, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, order.Item{BookID: pairs[i].(string), Count: int64(pairs[i+1].(int))})
	}
	return out
}

// Store S owned by A lists book B (stock 2, price 10). Buyer C orders,
// pays and walks the order through delivery.
func TestScenarioFullLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "A", "S", 2, book("B", 10))
	h.user(t, "C", 100)

	orderID, err := h.CreateOrder(ctx, "C", "S", items("B", 2))
	require.NoError(t, err)

	o, err := h.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, types.Money(20), o.Total)
	assert.Equal(t, order.StatusCreated, o.Status)
	assert.Equal(t, int64(0), h.stock(t, "S", "B"))

	_, err = h.CreateOrder(ctx, "C", "S", items("B", 1))
	require.ErrorIs(t, err, folio.ErrInsufficientStock)
	assert.Equal(t, folio.CodeInsufficientStock, folio.StatusOf(err).Code)

	require.NoError(t, h.PayOrder(ctx, "C", pw, orderID))
	assert.Equal(t, types.Money(20), h.balance(t, "A"))
	assert.Equal(t, types.Money(80), h.balance(t, "C"))
	assert.Equal(t, order.StatusPaid, h.status(t, orderID))

	err = h.ReceiveOrder(ctx, "C", orderID)
	require.ErrorIs(t, err, folio.ErrBooksNotDelivered)
	assert.Equal(t, folio.CodeNotDelivered, folio.StatusOf(err).Code)

	require.NoError(t, h.DeliverOrder(ctx, "A", orderID))
	assert.Equal(t, order.StatusShipped, h.status(t, orderID))

	require.NoError(t, h.ReceiveOrder(ctx, "C", orderID))
	assert.Equal(t, order.StatusReceived, h.status(t, orderID))

	err = h.ReceiveOrder(ctx, "C", orderID)
	require.ErrorIs(t, err, folio.ErrBooksRepeatReceive)
	assert.Equal(t, folio.CodeRepeatReceive, folio.StatusOf(err).Code)
}

func TestCreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 5, book("b1", 100))
	h.user(t, "carol", 0)

	tests := []struct {
		name    string
		buyer   string
		store   string
		items   []order.Item
		wantErr error
	}{
		{"no items", "carol", "s1", nil, folio.ErrInvalidInput},
		{"zero count", "carol", "s1", items("b1", 0), folio.ErrInvalidInput},
		{"negative count", "carol", "s1", items("b1", -2), folio.ErrInvalidInput},
		{"blank book", "carol", "s1", items("", 1), folio.ErrInvalidInput},
		{"unknown buyer", "nobody", "s1", items("b1", 1), folio.ErrUserNotFound},
		{"unknown store", "carol", "missing", items("b1", 1), folio.ErrStoreNotFound},
		{"unlisted book", "carol", "s1", items("nope", 1), folio.ErrBookNotFound},
		{"too many", "carol", "s1", items("b1", 6), folio.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orderID, err := h.CreateOrder(ctx, tt.buyer, tt.store, tt.items)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, orderID)
			assert.Equal(t, int64(5), h.stock(t, "s1", "b1"))
		})
	}
}

func TestCreateOrderIsAtomic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 3, book("b1", 100), book("b2", 200))
	h.user(t, "carol", 0)

	// b1 can be reserved, b2 cannot: neither stock level may move.
	_, err := h.CreateOrder(ctx, "carol", "s1", items("b1", 2, "b2", 4))
	require.ErrorIs(t, err, folio.ErrInsufficientStock)
	assert.Equal(t, int64(3), h.stock(t, "s1", "b1"))
	assert.Equal(t, int64(3), h.stock(t, "s1", "b2"))
}

func TestCreateOrderMergesDuplicates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 5, book("b1", 100), book("b2", 250))
	h.user(t, "carol", 0)

	orderID, err := h.CreateOrder(ctx, "carol", "s1", items("b2", 1, "b1", 1, "b1", 2))
	require.NoError(t, err)

	o, err := h.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, "b1", o.Lines[0].BookID)
	assert.Equal(t, int64(3), o.Lines[0].Count)
	assert.Equal(t, types.Money(550), o.Total)
	assert.Equal(t, o.LinesTotal(), o.Total)
	assert.Contains(t, o.ID, "carol_s1_ord_")
	assert.Equal(t, int64(2), h.stock(t, "s1", "b1"))
}

func TestCancelCreatedOrderRestoresStock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 5, book("b1", 100), book("b2", 100))
	h.user(t, "carol", 0)

	orderID, err := h.CreateOrder(ctx, "carol", "s1", items("b1", 2, "b2", 3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), h.stock(t, "s1", "b1"))
	assert.Equal(t, int64(2), h.stock(t, "s1", "b2"))

	require.NoError(t, h.CancelOrder(ctx, "carol", orderID))
	assert.Equal(t, int64(5), h.stock(t, "s1", "b1"))
	assert.Equal(t, int64(5), h.stock(t, "s1", "b2"))
	assert.Equal(t, order.StatusCancelled, h.status(t, orderID))
	assert.Equal(t, plugin.ReasonBuyer, h.rec.cancelReason(orderID))

	err = h.CancelOrder(ctx, "carol", orderID)
	require.ErrorIs(t, err, folio.ErrInvalidOrderID)
	assert.Equal(t, int64(5), h.stock(t, "s1", "b1"), "second cancel releases nothing")
}

func TestCancelPaidOrderRefunds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 5, book("b1", 300))
	h.user(t, "carol", 1000)

	orderID, err := h.CreateOrder(ctx, "carol", "s1", items("b1", 2))
	require.NoError(t, err)
	require.NoError(t, h.PayOrder(ctx, "carol", pw, orderID))
	require.NoError(t, h.DeliverOrder(ctx, "alice", orderID))

	require.NoError(t, h.CancelOrder(ctx, "carol", orderID))
	assert.Equal(t, types.Money(1000), h.balance(t, "carol"))
	assert.Equal(t, types.Money(0), h.balance(t, "alice"))
	assert.Equal(t, int64(5), h.stock(t, "s1", "b1"))

	entries, err := h.Settlements(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, settlement.KindPayment, entries[0].Kind)
	assert.Equal(t, settlement.KindRefund, entries[1].Kind)
	assert.Equal(t, "alice", entries[1].FromUserID)
	assert.Equal(t, "carol", entries[1].ToUserID)
	assert.Equal(t, types.Money(600), entries[1].Amount)

	h.rec.mu.Lock()
	assert.Len(t, h.rec.refunds, 1)
	h.rec.mu.Unlock()
}

func TestCancelPaidOrderSellerSpent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 5, book("b1", 300))
	h.seller(t, "bob", "s2", 5, book("b9", 300))
	h.user(t, "carol", 300)

	first, err := h.CreateOrder(ctx, "carol", "s1", items("b1", 1))
	require.NoError(t, err)
	require.NoError(t, h.PayOrder(ctx, "carol", pw, first))

	// alice spends the proceeds on a book from bob.
	second, err := h.CreateOrder(ctx, "alice", "s2", items("b9", 1))
	require.NoError(t, err)
	require.NoError(t, h.PayOrder(ctx, "alice", pw, second))

	err = h.CancelOrder(ctx, "carol", first)
	require.ErrorIs(t, err, folio.ErrInsufficientFunds)
	assert.Equal(t, order.StatusPaid, h.status(t, first))
	assert.Equal(t, int64(4), h.stock(t, "s1", "b1"))
}

func TestCancelOrderAuthorization(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 5, book("b1", 100))
	h.user(t, "carol", 0)
	h.user(t, "dave", 0)

	orderID, err := h.CreateOrder(ctx, "carol", "s1", items("b1", 1))
	require.NoError(t, err)

	err = h.CancelOrder(ctx, "dave", orderID)
	require.ErrorIs(t, err, folio.ErrAuthorizationFailure)
	assert.Equal(t, folio.CodeAuthorization, folio.StatusOf(err).Code)
	assert.Equal(t, order.StatusCreated, h.status(t, orderID))

	require.ErrorIs(t, h.CancelOrder(ctx, "carol", "missing"), folio.ErrInvalidOrderID)
}

func TestDeliverOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 5, book("b1", 100))
	h.seller(t, "bob", "s2", 0)
	h.user(t, "carol", 500)

	orderID, err := h.CreateOrder(ctx, "carol", "s1", items("b1", 1))
	require.NoError(t, err)

	require.ErrorIs(t, h.DeliverOrder(ctx, "alice", orderID), folio.ErrInvalidOrderID, "unpaid")
	require.ErrorIs(t, h.DeliverOrder(ctx, "alice", "missing"), folio.ErrInvalidOrderID)

	require.NoError(t, h.PayOrder(ctx, "carol", pw, orderID))
	require.ErrorIs(t, h.DeliverOrder(ctx, "bob", orderID), folio.ErrAuthorizationFailure)
	require.ErrorIs(t, h.DeliverOrder(ctx, "carol", orderID), folio.ErrAuthorizationFailure)

	require.NoError(t, h.DeliverOrder(ctx, "alice", orderID))
	err = h.DeliverOrder(ctx, "alice", orderID)
	require.ErrorIs(t, err, folio.ErrBooksRepeatDeliver)
	assert.Equal(t, folio.CodeRepeatDeliver, folio.StatusOf(err).Code)

	require.NoError(t, h.ReceiveOrder(ctx, "carol", orderID))
	require.ErrorIs(t, h.DeliverOrder(ctx, "alice", orderID), folio.ErrBooksRepeatDeliver)
}

func TestReceiveOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 5, book("b1", 100))
	h.user(t, "carol", 500)
	h.user(t, "dave", 0)

	orderID, err := h.CreateOrder(ctx, "carol", "s1", items("b1", 1))
	require.NoError(t, err)
	err = h.ReceiveOrder(ctx, "carol", orderID)
	require.ErrorIs(t, err, folio.ErrBooksNotDelivered, "unpaid")
	assert.Equal(t, folio.CodeNotDelivered, folio.StatusOf(err).Code)
	assert.Equal(t, order.StatusCreated, h.status(t, orderID))

	require.NoError(t, h.PayOrder(ctx, "carol", pw, orderID))
	require.NoError(t, h.DeliverOrder(ctx, "alice", orderID))
	require.ErrorIs(t, h.ReceiveOrder(ctx, "dave", orderID), folio.ErrAuthorizationFailure)

	require.NoError(t, h.CancelOrder(ctx, "carol", orderID))
	require.ErrorIs(t, h.ReceiveOrder(ctx, "carol", orderID), folio.ErrInvalidOrderID, "cancelled")
}

func TestListOrderHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 10, book("b1", 100))
	h.user(t, "carol", 1000)

	create := func() string {
		h.clock.Add(time.Second)
		id, err := h.CreateOrder(ctx, "carol", "s1", items("b1", 1))
		require.NoError(t, err)
		return id
	}

	cancelled := create()
	paid := create()
	unpaid := create()
	shipped := create()

	require.NoError(t, h.CancelOrder(ctx, "carol", cancelled))
	require.NoError(t, h.PayOrder(ctx, "carol", pw, paid))
	require.NoError(t, h.PayOrder(ctx, "carol", pw, shipped))
	require.NoError(t, h.DeliverOrder(ctx, "alice", shipped))

	hist, err := h.ListOrderHistory(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, hist.Orders, 4)
	assert.Empty(t, hist.Message)

	var got []string
	var labels []string
	for _, e := range hist.Orders {
		got = append(got, e.OrderID)
		labels = append(labels, e.StatusText)
		assert.Len(t, e.Lines, 1)
	}
	assert.Equal(t, []string{unpaid, paid, shipped, cancelled}, got)
	assert.Equal(t, []string{"unpaid", "unsent", "sent but not received", "cancelled"}, labels)
}

func TestListOrderHistoryEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "carol", 0)

	hist, err := h.ListOrderHistory(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, hist.Empty())
	assert.NotNil(t, hist.Orders)
	assert.Equal(t, order.NoOrdersFound, hist.Message)

	_, err = h.ListOrderHistory(ctx, "nobody")
	require.ErrorIs(t, err, folio.ErrUserNotFound)
}
