// Package plugin provides an extensible plugin system for Folio.
// Plugins can hook into order, payment and provisioning events. Hooks run
// after the owning transaction has committed.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// Cancellation reasons passed to OnOrderCancelled.
const (
	ReasonBuyer   = "buyer"
	ReasonExpired = "expired"
)

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *folio.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Provisioning hooks
// ──────────────────────────────────────────────────

// OnUserRegistered is called after a user account is created.
type OnUserRegistered interface {
	Plugin
	OnUserRegistered(ctx context.Context, userID string) error
}

// OnStoreCreated is called after a seller opens a store.
type OnStoreCreated interface {
	Plugin
	OnStoreCreated(ctx context.Context, storeID, ownerID string) error
}

// OnBookListed is called after a book is added to a store's inventory.
type OnBookListed interface {
	Plugin
	OnBookListed(ctx context.Context, storeID string, book *catalog.Book, stock int64) error
}

// OnStockAdded is called after a seller restocks a listed book.
type OnStockAdded interface {
	Plugin
	OnStockAdded(ctx context.Context, storeID, bookID string, delta int64) error
}

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated is called when stock has been reserved for a new order.
type OnOrderCreated interface {
	Plugin
	OnOrderCreated(ctx context.Context, o *order.Order) error
}

// OnOrderPaid is called after the buyer's payment settled.
type OnOrderPaid interface {
	Plugin
	OnOrderPaid(ctx context.Context, o *order.Order, entry *settlement.Entry) error
}

// OnOrderDelivered is called when the seller ships an order.
type OnOrderDelivered interface {
	Plugin
	OnOrderDelivered(ctx context.Context, o *order.Order) error
}

// OnOrderReceived is called when the buyer confirms receipt.
type OnOrderReceived interface {
	Plugin
	OnOrderReceived(ctx context.Context, o *order.Order) error
}

// OnOrderCancelled is called when an order is cancelled by its buyer or
// by the expiry reconciler. refund is nil unless money was returned.
type OnOrderCancelled interface {
	Plugin
	OnOrderCancelled(ctx context.Context, o *order.Order, reason string, refund *settlement.Entry) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnFundsAdded is called after a user tops up their balance.
type OnFundsAdded interface {
	Plugin
	OnFundsAdded(ctx context.Context, userID string, amount types.Money) error
}

// ──────────────────────────────────────────────────
// Worker hooks
// ──────────────────────────────────────────────────

// OnExpirySwept is called after each reconciler pass.
type OnExpirySwept interface {
	Plugin
	OnExpirySwept(ctx context.Context, cancelled int, elapsed time.Duration) error
}

// OnOperationFailed is called when an engine operation returns an error.
type OnOperationFailed interface {
	Plugin
	OnOperationFailed(ctx context.Context, op string, err error) error
}
