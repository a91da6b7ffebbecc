package order_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio/order"
	"github.com/xraph/folio/types"
)

func TestStatusLabels(t *testing.T) {
	tests := []struct {
		status order.Status
		label  string
	}{
		{order.StatusCreated, "unpaid"},
		{order.StatusPaid, "unsent"},
		{order.StatusShipped, "sent but not received"},
		{order.StatusReceived, "received"},
		{order.StatusCancelled, "cancelled"},
		{order.Status(9), "status(9)"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.label, tt.status.String())
		})
	}
}

func TestSources(t *testing.T) {
	assert.Equal(t, []order.Status{order.StatusCreated}, order.Sources(order.StatusPaid))
	assert.Equal(t, []order.Status{order.StatusShipped}, order.Sources(order.StatusReceived))
	assert.Equal(t, order.Cancellable, order.Sources(order.StatusCancelled))
	assert.Equal(t,
		[]order.Status{order.StatusCreated, order.StatusPaid, order.StatusShipped, order.StatusReceived},
		order.Cancellable,
	)
	assert.Empty(t, order.Sources(order.StatusCreated))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, order.CanTransition(order.StatusCreated, order.StatusPaid))
	assert.True(t, order.CanTransition(order.StatusPaid, order.StatusShipped))
	assert.True(t, order.CanTransition(order.StatusShipped, order.StatusReceived))
	assert.True(t, order.CanTransition(order.StatusReceived, order.StatusCancelled))

	assert.False(t, order.CanTransition(order.StatusCreated, order.StatusShipped))
	assert.False(t, order.CanTransition(order.StatusPaid, order.StatusReceived))
	assert.False(t, order.CanTransition(order.StatusCancelled, order.StatusCancelled))
	assert.False(t, order.CanTransition(order.StatusCancelled, order.StatusPaid))
	assert.False(t, order.CanTransition(order.StatusPaid, order.StatusCreated))
}

func TestMergeItems(t *testing.T) {
	merged := order.MergeItems([]order.Item{
		{BookID: "b2", Count: 1},
		{BookID: "b1", Count: 2},
		{BookID: "b2", Count: 3},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, order.Item{BookID: "b1", Count: 2}, merged[0])
	assert.Equal(t, order.Item{BookID: "b2", Count: 4}, merged[1])
}

func TestLinesTotal(t *testing.T) {
	o := &order.Order{Lines: []order.Line{
		{BookID: "b1", Count: 2, UnitPrice: 10},
		{BookID: "b2", Count: 1, UnitPrice: 35},
	}}
	assert.Equal(t, types.Money(55), o.LinesTotal())
}

func TestNewHistory(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		h := order.NewHistory("c", nil)
		assert.True(t, h.Empty())
		assert.Equal(t, order.NoOrdersFound, h.Message)
		assert.NotNil(t, h.Orders)
	})

	t.Run("grouped", func(t *testing.T) {
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		mk := func(id string, s order.Status, offset time.Duration) *order.Order {
			o := &order.Order{ID: id, Status: s}
			o.CreatedAt = base.Add(offset)
			return o
		}

		h := order.NewHistory("c", []*order.Order{
			mk("cancelled", order.StatusCancelled, 0),
			mk("shipped", order.StatusShipped, time.Second),
			mk("unpaid-late", order.StatusCreated, 3*time.Second),
			mk("unpaid-early", order.StatusCreated, 2*time.Second),
			mk("paid", order.StatusPaid, 0),
		})

		require.Len(t, h.Orders, 5)
		got := make([]string, 0, 5)
		for _, e := range h.Orders {
			got = append(got, e.OrderID)
		}
		assert.Equal(t, []string{"unpaid-early", "unpaid-late", "paid", "shipped", "cancelled"}, got)
		assert.Equal(t, "sent but not received", h.Orders[3].StatusText)
		assert.Empty(t, h.Message)
	})
}
