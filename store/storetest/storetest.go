// Package storetest is a conformance suite shared by every store.Store
// backend. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	"github.com/xraph/folio/account"
	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/shop"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/types"
)

// Factory returns a migrated, ready store. Run closes it when the test ends.
type Factory func(t *testing.T) store.Store

var seq atomic.Int64

// base is far enough in the past that expiry queries see every fixture.
var base = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// uniq returns a name that does not collide across runs sharing a database.
func uniq(name string) string {
	return fmt.Sprintf("%s-%d-%d", name, time.Now().UnixNano(), seq.Add(1))
}

// Run executes the full conformance suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Users", testUsers},
		{"Balance", testBalance},
		{"DeleteUser", testDeleteUser},
		{"Books", testBooks},
		{"Shops", testShops},
		{"Stock", testStock},
		{"Orders", testOrders},
		{"Transition", testTransition},
		{"ListByBuyer", testListByBuyer},
		{"ExpiredOrders", testExpiredOrders},
		{"Settlements", testSettlements},
		{"Rollback", testRollback},
		{"ConcurrentStock", testConcurrentStock},
		{"ConcurrentSettle", testConcurrentSettle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func inTx(t *testing.T, s store.Store, fn store.TxFunc) error {
	t.Helper()
	return s.RunInTx(context.Background(), fn)
}

func mustTx(t *testing.T, s store.Store, fn store.TxFunc) {
	t.Helper()
	require.NoError(t, inTx(t, s, fn))
}

func seedUser(t *testing.T, s store.Store, balance int64) string {
	t.Helper()
	userID := uniq("user")
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, &account.User{
			Entity:       types.NewEntity(base),
			ID:           userID,
			PasswordHash: "hash",
			Balance:      types.Money(balance),
		})
	})
	return userID
}

// seedShop creates an owner, a store and one listed book.
func seedShop(t *testing.T, s store.Store, price, stock int64) (ownerID, shopID, bookID string) {
	t.Helper()
	ownerID = seedUser(t, s, 0)
	shopID = uniq("store")
	bookID = uniq("book")
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateShop(ctx, &shop.Shop{Entity: types.NewEntity(base), ID: shopID, OwnerID: ownerID}); err != nil {
			return err
		}
		if err := tx.EnsureBook(ctx, &catalog.Book{Entity: types.NewEntity(base), ID: bookID, Title: "T", Price: types.Money(price)}); err != nil {
			return err
		}
		return tx.AddInventory(ctx, shopID, bookID, stock)
	})
	return ownerID, shopID, bookID
}

// Every seeded order buys seedOrderCount copies at a total of seedOrderTotal.
const (
	seedOrderCount = 2
	seedOrderTotal = 20
)

func seedOrder(t *testing.T, s store.Store, buyerID, shopID, bookID string, created time.Time) *order.Order {
	t.Helper()
	o := &order.Order{
		Entity:  types.NewEntity(created),
		ID:      id.NewOrderKey(buyerID, shopID),
		ShopID:  shopID,
		BuyerID: buyerID,
		Total:   types.Money(seedOrderTotal),
		Status:  order.StatusCreated,
	}
	o.Lines = []order.Line{{OrderID: o.ID, BookID: bookID, Count: seedOrderCount, UnitPrice: types.Money(seedOrderTotal / seedOrderCount)}}
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateOrder(ctx, o) })
	return o
}

func stockOf(t *testing.T, s store.Store, shopID, bookID string) int64 {
	t.Helper()
	var level int64 = -1
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.GetShop(ctx, shopID)
		if err != nil {
			return err
		}
		if it := sh.Find(bookID); it != nil {
			level = it.StockLevel
		}
		return nil
	})
	return level
}

// ──────────────────────────────────────────────────
// Cases
// ──────────────────────────────────────────────────

func testUsers(t *testing.T, s store.Store) {
	userID := seedUser(t, s, 7)

	err := inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, &account.User{Entity: types.NewEntity(base), ID: userID, PasswordHash: "x"})
	})
	assert.ErrorIs(t, err, folio.ErrUserExists)

	later := base.Add(time.Hour)
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateUserPassword(ctx, userID, "new-hash", later)
	})

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", u.PasswordHash)
		assert.Equal(t, types.Money(7), u.Balance)
		assert.True(t, u.CreatedAt.Equal(base))
		assert.True(t, u.UpdatedAt.Equal(later))
		return nil
	})

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetUser(ctx, uniq("ghost"))
		return err
	})
	assert.ErrorIs(t, err, folio.ErrUserNotFound)

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateUserPassword(ctx, uniq("ghost"), "h", base)
	})
	assert.ErrorIs(t, err, folio.ErrUserNotFound)
}

func testBalance(t *testing.T, s store.Store) {
	userID := seedUser(t, s, 10)

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.AdjustBalance(ctx, userID, -10, base)
	})

	err := inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.AdjustBalance(ctx, userID, -1, base)
	})
	assert.ErrorIs(t, err, folio.ErrInsufficientFunds)

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.AdjustBalance(ctx, uniq("ghost"), 5, base)
	})
	assert.ErrorIs(t, err, folio.ErrUserNotFound)

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.AdjustBalance(ctx, userID, 25, base); err != nil {
			return err
		}
		u, err := tx.GetUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, types.Money(25), u.Balance)
		return nil
	})
}

func testDeleteUser(t *testing.T, s store.Store) {
	ownerID, _, _ := seedShop(t, s, 1, 1)
	err := inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.DeleteUser(ctx, ownerID) })
	assert.ErrorIs(t, err, folio.ErrUserInUse)

	userID := seedUser(t, s, 0)
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.DeleteUser(ctx, userID) })

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.DeleteUser(ctx, userID) })
	assert.ErrorIs(t, err, folio.ErrUserNotFound)
}

func testBooks(t *testing.T, s store.Store) {
	bookID := uniq("book")
	first := &catalog.Book{
		Entity: types.NewEntity(base),
		ID:     bookID,
		Title:  "The Little Prince",
		Author: "Antoine de Saint-Exupéry",
		ISBN:   "9780156012195",
		Tags:   []string{"classic", "fable"},
		Price:  types.Money(1250),
	}
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.EnsureBook(ctx, first) })

	// A second listing with different metadata leaves the entry untouched.
	second := *first
	second.Title = "changed"
	second.Price = types.Money(1)
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.EnsureBook(ctx, &second) })

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBook(ctx, bookID)
		require.NoError(t, err)
		assert.Equal(t, "The Little Prince", b.Title)
		assert.Equal(t, types.Money(1250), b.Price)
		assert.Equal(t, []string{"classic", "fable"}, b.Tags)
		return nil
	})

	err := inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetBook(ctx, uniq("ghost"))
		return err
	})
	assert.ErrorIs(t, err, folio.ErrBookNotFound)
}

func testShops(t *testing.T, s store.Store) {
	ownerID, shopID, bookID := seedShop(t, s, 10, 3)

	err := inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateShop(ctx, &shop.Shop{Entity: types.NewEntity(base), ID: shopID, OwnerID: ownerID})
	})
	assert.ErrorIs(t, err, folio.ErrStoreExists)

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateShop(ctx, &shop.Shop{Entity: types.NewEntity(base), ID: uniq("store"), OwnerID: uniq("ghost")})
	})
	assert.ErrorIs(t, err, folio.ErrUserNotFound)

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.AddInventory(ctx, shopID, bookID, 1) })
	assert.ErrorIs(t, err, folio.ErrBookExists)

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.AddInventory(ctx, uniq("ghost"), bookID, 1) })
	assert.ErrorIs(t, err, folio.ErrStoreNotFound)

	// Inventory keeps insertion order.
	second := uniq("book")
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.EnsureBook(ctx, &catalog.Book{Entity: types.NewEntity(base), ID: second, Price: 5}); err != nil {
			return err
		}
		return tx.AddInventory(ctx, shopID, second, 9)
	})

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.GetShop(ctx, shopID)
		require.NoError(t, err)
		assert.Equal(t, ownerID, sh.OwnerID)
		assert.Equal(t, []shop.Item{{BookID: bookID, StockLevel: 3}, {BookID: second, StockLevel: 9}}, sh.Inventory)
		return nil
	})

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetShop(ctx, uniq("ghost"))
		return err
	})
	assert.ErrorIs(t, err, folio.ErrStoreNotFound)
}

func testStock(t *testing.T, s store.Store) {
	_, shopID, bookID := seedShop(t, s, 10, 2)

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.AdjustStock(ctx, shopID, bookID, -2) })
	assert.Equal(t, int64(0), stockOf(t, s, shopID, bookID))

	err := inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.AdjustStock(ctx, shopID, bookID, -1) })
	assert.ErrorIs(t, err, folio.ErrInsufficientStock)

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.AdjustStock(ctx, shopID, uniq("ghost"), -1) })
	assert.ErrorIs(t, err, folio.ErrBookNotFound)

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.AdjustStock(ctx, uniq("ghost"), bookID, -1) })
	assert.ErrorIs(t, err, folio.ErrStoreNotFound)

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.AdjustStock(ctx, shopID, bookID, 5) })
	assert.Equal(t, int64(5), stockOf(t, s, shopID, bookID))
}

func testOrders(t *testing.T, s store.Store) {
	_, shopID, bookID := seedShop(t, s, 10, 5)
	buyerID := seedUser(t, s, 0)
	o := seedOrder(t, s, buyerID, shopID, bookID, base)

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		assert.Equal(t, shopID, got.ShopID)
		assert.Equal(t, buyerID, got.BuyerID)
		assert.Equal(t, order.StatusCreated, got.Status)
		assert.Equal(t, types.Money(20), got.Total)
		assert.Equal(t, o.Lines, got.Lines)
		assert.Equal(t, got.Total, got.LinesTotal())
		assert.True(t, got.CreatedAt.Equal(base))
		return nil
	})

	err := inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateOrder(ctx, o) })
	assert.ErrorIs(t, err, folio.ErrInvalidOrderID)

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetOrder(ctx, uniq("ghost"))
		return err
	})
	assert.ErrorIs(t, err, folio.ErrInvalidOrderID)
}

func testTransition(t *testing.T, s store.Store) {
	_, shopID, bookID := seedShop(t, s, 10, 5)
	buyerID := seedUser(t, s, 0)
	o := seedOrder(t, s, buyerID, shopID, bookID, base)
	at := base.Add(time.Minute)

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.TransitionOrder(ctx, o.ID, []order.Status{order.StatusCreated}, order.StatusPaid, at)
	})

	// The guard no longer matches.
	err := inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.TransitionOrder(ctx, o.ID, []order.Status{order.StatusCreated}, order.StatusPaid, at)
	})
	assert.ErrorIs(t, err, folio.ErrInvalidOrderID)

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.TransitionOrder(ctx, o.ID, order.Cancellable, order.StatusCancelled, at)
	})

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancelled, got.Status)
		assert.True(t, got.UpdatedAt.Equal(at))
		assert.True(t, got.CreatedAt.Equal(base))
		return nil
	})

	err = inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.TransitionOrder(ctx, uniq("ghost"), order.Cancellable, order.StatusCancelled, at)
	})
	assert.ErrorIs(t, err, folio.ErrInvalidOrderID)
}

func testListByBuyer(t *testing.T, s store.Store) {
	_, shopID, bookID := seedShop(t, s, 10, 5)
	buyerID := seedUser(t, s, 0)

	newer := seedOrder(t, s, buyerID, shopID, bookID, base.Add(2*time.Second))
	older := seedOrder(t, s, buyerID, shopID, bookID, base.Add(time.Second))

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		orders, err := tx.ListOrdersByBuyer(ctx, buyerID)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, older.ID, orders[0].ID)
		assert.Equal(t, newer.ID, orders[1].ID)
		assert.Len(t, orders[1].Lines, 1)

		none, err := tx.ListOrdersByBuyer(ctx, uniq("ghost"))
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	})
}

func testExpiredOrders(t *testing.T, s store.Store) {
	_, shopID, bookID := seedShop(t, s, 10, 5)
	buyerID := seedUser(t, s, 0)

	expired := seedOrder(t, s, buyerID, shopID, bookID, base)
	fresh := seedOrder(t, s, buyerID, shopID, bookID, base.Add(time.Hour))
	paid := seedOrder(t, s, buyerID, shopID, bookID, base)
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.TransitionOrder(ctx, paid.ID, []order.Status{order.StatusCreated}, order.StatusPaid, base)
	})

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		ids, err := tx.ListExpiredOrders(ctx, base.Add(time.Minute), 0)
		require.NoError(t, err)
		assert.Contains(t, ids, expired.ID)
		assert.NotContains(t, ids, fresh.ID)
		assert.NotContains(t, ids, paid.ID)

		limited, err := tx.ListExpiredOrders(ctx, base.Add(time.Minute), 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
		return nil
	})
}

func testSettlements(t *testing.T, s store.Store) {
	orderID := uniq("order")
	pay := &settlement.Entry{
		ID:         id.NewSettlementID(),
		OrderID:    orderID,
		Kind:       settlement.KindPayment,
		FromUserID: "buyer",
		ToUserID:   "seller",
		Amount:     types.Money(20),
		CreatedAt:  base,
	}
	refund := &settlement.Entry{
		ID:         id.NewSettlementID(),
		OrderID:    orderID,
		Kind:       settlement.KindRefund,
		FromUserID: "seller",
		ToUserID:   "buyer",
		Amount:     types.Money(20),
		CreatedAt:  base.Add(time.Second),
	}
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.RecordSettlement(ctx, pay); err != nil {
			return err
		}
		return tx.RecordSettlement(ctx, refund)
	})

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		entries, err := tx.ListSettlements(ctx, orderID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, pay.ID.String(), entries[0].ID.String())
		assert.Equal(t, id.PrefixSettlement, entries[1].ID.Prefix())
		assert.Equal(t, settlement.KindPayment, entries[0].Kind)
		assert.Equal(t, settlement.KindRefund, entries[1].Kind)
		assert.Equal(t, "seller", entries[1].FromUserID)
		assert.Equal(t, types.Money(20), entries[1].Amount)
		return nil
	})
}

func testRollback(t *testing.T, s store.Store) {
	_, shopID, bookID := seedShop(t, s, 10, 5)
	buyerID := seedUser(t, s, 50)
	ghost := uniq("user")
	boom := errors.New("boom")

	err := inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.AdjustStock(ctx, shopID, bookID, -3); err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, buyerID, -30, base); err != nil {
			return err
		}
		if err := tx.CreateUser(ctx, &account.User{Entity: types.NewEntity(base), ID: ghost, PasswordHash: "h"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, int64(5), stockOf(t, s, shopID, bookID))
	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, buyerID)
		require.NoError(t, err)
		assert.Equal(t, types.Money(50), u.Balance)

		_, err = tx.GetUser(ctx, ghost)
		assert.ErrorIs(t, err, folio.ErrUserNotFound)
		return nil
	})
}
