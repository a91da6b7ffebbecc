package folio_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/types"
)

func TestRegisterUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.RegisterUser(ctx, "carol", pw))
	assert.Equal(t, types.Money(0), h.balance(t, "carol"))

	err := h.RegisterUser(ctx, "carol", "other")
	require.ErrorIs(t, err, folio.ErrUserExists)
	assert.Equal(t, folio.CodeUserExists, folio.StatusOf(err).Code)

	require.ErrorIs(t, h.RegisterUser(ctx, "", pw), folio.ErrInvalidInput)
	require.ErrorIs(t, h.RegisterUser(ctx, "dave", ""), folio.ErrInvalidInput)
}

func TestUnregisterUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "carol", 0)

	require.ErrorIs(t, h.UnregisterUser(ctx, "carol", "wrong"), folio.ErrAuthorizationFailure)
	require.ErrorIs(t, h.UnregisterUser(ctx, "nobody", pw), folio.ErrAuthorizationFailure)

	require.NoError(t, h.UnregisterUser(ctx, "carol", pw))
	_, err := h.Balance(ctx, "carol")
	require.ErrorIs(t, err, folio.ErrUserNotFound)
}

func TestUnregisterStoreOwner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 1)

	err := h.UnregisterUser(ctx, "alice", pw)
	require.ErrorIs(t, err, folio.ErrUserInUse)
	assert.Equal(t, folio.CodeUserInUse, folio.StatusOf(err).Code)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "carol", 0)

	require.ErrorIs(t, h.ChangePassword(ctx, "carol", "wrong", "next"), folio.ErrAuthorizationFailure)
	require.ErrorIs(t, h.ChangePassword(ctx, "carol", pw, ""), folio.ErrInvalidInput)
	require.NoError(t, h.ChangePassword(ctx, "carol", pw, "next"))

	require.ErrorIs(t, h.AddFunds(ctx, "carol", pw, 100), folio.ErrAuthorizationFailure)
	require.NoError(t, h.AddFunds(ctx, "carol", "next", 100))
}

func TestAddFunds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "carol", 0)

	require.NoError(t, h.AddFunds(ctx, "carol", pw, 250))
	require.NoError(t, h.AddFunds(ctx, "carol", pw, 50))
	assert.Equal(t, types.Money(300), h.balance(t, "carol"))

	require.ErrorIs(t, h.AddFunds(ctx, "carol", pw, 0), folio.ErrInvalidInput)
	require.ErrorIs(t, h.AddFunds(ctx, "carol", pw, -10), folio.ErrInvalidInput)
	require.ErrorIs(t, h.AddFunds(ctx, "carol", "wrong", 10), folio.ErrAuthorizationFailure)
	require.ErrorIs(t, h.AddFunds(ctx, "nobody", pw, 10), folio.ErrAuthorizationFailure)
	assert.Equal(t, types.Money(300), h.balance(t, "carol"))
}

func TestPasswordRateLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, folio.WithPasswordRateLimit(1, 2))
	require.NoError(t, h.RegisterUser(ctx, "carol", pw))

	require.NoError(t, h.AddFunds(ctx, "carol", pw, 10))
	require.ErrorIs(t, h.AddFunds(ctx, "carol", "wrong", 10), folio.ErrAuthorizationFailure)

	err := h.AddFunds(ctx, "carol", pw, 10)
	require.ErrorIs(t, err, folio.ErrTooManyAttempts)
	assert.Equal(t, folio.CodeTooManyAttempts, folio.StatusOf(err).Code)

	// Other users have their own bucket.
	require.NoError(t, h.RegisterUser(ctx, "dave", pw))
	require.NoError(t, h.AddFunds(ctx, "dave", pw, 10))

	h.clock.Add(2 * time.Second)
	require.NoError(t, h.AddFunds(ctx, "carol", pw, 10))
	assert.Equal(t, types.Money(20), h.balance(t, "carol"))
}

func TestCreateStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "alice", 0)

	require.ErrorIs(t, h.CreateStore(ctx, "nobody", "s1"), folio.ErrUserNotFound)
	require.NoError(t, h.CreateStore(ctx, "alice", "s1"))

	err := h.CreateStore(ctx, "alice", "s1")
	require.ErrorIs(t, err, folio.ErrStoreExists)
	assert.Equal(t, folio.CodeStoreExists, folio.StatusOf(err).Code)
}

func TestAddBook(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 3, book("b1", 1000))
	h.seller(t, "bob", "s2", 0)

	assert.Equal(t, int64(3), h.stock(t, "s1", "b1"))

	err := h.AddBook(ctx, "alice", "s1", book("b1", 1000), 1)
	require.ErrorIs(t, err, folio.ErrBookExists)
	assert.Equal(t, folio.CodeBookExists, folio.StatusOf(err).Code)

	require.ErrorIs(t, h.AddBook(ctx, "bob", "s1", book("b2", 10), 1), folio.ErrAuthorizationFailure)
	require.ErrorIs(t, h.AddBook(ctx, "nobody", "s1", book("b2", 10), 1), folio.ErrUserNotFound)
	require.ErrorIs(t, h.AddBook(ctx, "alice", "missing", book("b2", 10), 1), folio.ErrStoreNotFound)
	require.ErrorIs(t, h.AddBook(ctx, "alice", "s1", book("b2", -1), 1), folio.ErrInvalidInput)

	// The catalog entry is shared; a second store lists it at the original price.
	require.NoError(t, h.AddBook(ctx, "bob", "s2", book("b1", 9999), 5))
	h.user(t, "carol", 0)
	orderID, err := h.CreateOrder(ctx, "carol", "s2", []order.Item{{BookID: "b1", Count: 1}})
	require.NoError(t, err)
	o, err := h.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, types.Money(1000), o.Total)
}

func TestAddStockLevel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seller(t, "alice", "s1", 3, book("b1", 1000))
	h.seller(t, "bob", "s2", 0)

	require.NoError(t, h.AddStockLevel(ctx, "alice", "s1", "b1", 4))
	assert.Equal(t, int64(7), h.stock(t, "s1", "b1"))
	assert.Equal(t, map[string]int64{"s1/b1": 4}, h.rec.restocked)

	require.ErrorIs(t, h.AddStockLevel(ctx, "alice", "s1", "b1", 0), folio.ErrInvalidInput)
	require.ErrorIs(t, h.AddStockLevel(ctx, "alice", "s1", "nope", 1), folio.ErrBookNotFound)
	require.ErrorIs(t, h.AddStockLevel(ctx, "bob", "s1", "b1", 1), folio.ErrAuthorizationFailure)
	require.ErrorIs(t, h.AddStockLevel(ctx, "alice", "missing", "b1", 1), folio.ErrStoreNotFound)
	assert.Equal(t, int64(4), h.rec.restocked["s1/b1"], "failed restocks are not emitted")

	_, err := h.StockLevel(ctx, "s1", "nope")
	require.ErrorIs(t, err, folio.ErrBookNotFound)
}
