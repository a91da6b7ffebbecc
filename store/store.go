// Package store defines the persistence contract for Folio.
//
// All engine mutations run through Store.RunInTx. The Tx primitives are
// small and conditional: stock and balance adjustments only
// apply when the result stays non-negative, and order transitions only
// apply when the order is still in one of the expected states. Backends
// report a lost race by returning the corresponding folio sentinel error.
package store

import (
	"context"
	"time"

	"github.com/xraph/folio/account"
	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/shop"
)

// TxFunc is a unit of work. It must use the ctx it is given; some
// backends carry their session in it.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the unified storage interface for all Folio records.
type Store interface {
	// RunInTx executes fn atomically. If fn returns an error every effect
	// is rolled back and that error is returned unchanged.
	RunInTx(ctx context.Context, fn TxFunc) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	// User methods
	CreateUser(ctx context.Context, u *account.User) error
	GetUser(ctx context.Context, userID string) (*account.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	DeleteUser(ctx context.Context, userID string) error
	// AdjustBalance adds delta to the balance. A debit that would leave the
	// balance negative fails with folio.ErrInsufficientFunds.
	AdjustBalance(ctx context.Context, userID string, delta int64, at time.Time) error

	// Book methods
	// EnsureBook inserts the catalog entry unless one with the same id
	// already exists; existing entries are left untouched.
	EnsureBook(ctx context.Context, b *catalog.Book) error
	GetBook(ctx context.Context, bookID string) (*catalog.Book, error)

	// Shop methods
	CreateShop(ctx context.Context, s *shop.Shop) error
	GetShop(ctx context.Context, shopID string) (*shop.Shop, error)
	// AddInventory lists bookID in the shop with an initial stock level.
	AddInventory(ctx context.Context, shopID, bookID string, stock int64) error
	// AdjustStock adds delta to a listed book's stock. A decrement below
	// zero fails with folio.ErrInsufficientStock.
	AdjustStock(ctx context.Context, shopID, bookID string, delta int64) error

	// Order methods
	CreateOrder(ctx context.Context, o *order.Order) error
	// GetOrder loads an order and its lines, locking the row where the
	// backend supports it.
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)
	// TransitionOrder moves the order to `to` only if its current status
	// is one of from. Otherwise it fails with folio.ErrInvalidOrderID.
	TransitionOrder(ctx context.Context, orderID string, from []order.Status, to order.Status, at time.Time) error
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error)
	// ListExpiredOrders returns ids of Created orders created at or before
	// cutoff, oldest first.
	ListExpiredOrders(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// Settlement methods
	RecordSettlement(ctx context.Context, e *settlement.Entry) error
	ListSettlements(ctx context.Context, orderID string) ([]*settlement.Entry, error)
}
