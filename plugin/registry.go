package plugin

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *zap.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit            []OnInit
	onShutdown        []OnShutdown
	onUserRegistered  []OnUserRegistered
	onStoreCreated    []OnStoreCreated
	onBookListed      []OnBookListed
	onStockAdded      []OnStockAdded
	onOrderCreated    []OnOrderCreated
	onOrderPaid       []OnOrderPaid
	onOrderDelivered  []OnOrderDelivered
	onOrderReceived   []OnOrderReceived
	onOrderCancelled  []OnOrderCancelled
	onFundsAdded      []OnFundsAdded
	onExpirySwept     []OnExpirySwept
	onOperationFailed []OnOperationFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *zap.Logger) *Registry {
	r.logger = logger.Named("plugin")
	return r
}

// WithTimeout overrides the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnUserRegistered); ok {
		r.onUserRegistered = append(r.onUserRegistered, v)
	}
	if v, ok := p.(OnStoreCreated); ok {
		r.onStoreCreated = append(r.onStoreCreated, v)
	}
	if v, ok := p.(OnBookListed); ok {
		r.onBookListed = append(r.onBookListed, v)
	}
	if v, ok := p.(OnStockAdded); ok {
		r.onStockAdded = append(r.onStockAdded, v)
	}
	if v, ok := p.(OnOrderCreated); ok {
		r.onOrderCreated = append(r.onOrderCreated, v)
	}
	if v, ok := p.(OnOrderPaid); ok {
		r.onOrderPaid = append(r.onOrderPaid, v)
	}
	if v, ok := p.(OnOrderDelivered); ok {
		r.onOrderDelivered = append(r.onOrderDelivered, v)
	}
	if v, ok := p.(OnOrderReceived); ok {
		r.onOrderReceived = append(r.onOrderReceived, v)
	}
	if v, ok := p.(OnOrderCancelled); ok {
		r.onOrderCancelled = append(r.onOrderCancelled, v)
	}
	if v, ok := p.(OnFundsAdded); ok {
		r.onFundsAdded = append(r.onFundsAdded, v)
	}
	if v, ok := p.(OnExpirySwept); ok {
		r.onExpirySwept = append(r.onExpirySwept, v)
	}
	if v, ok := p.(OnOperationFailed); ok {
		r.onOperationFailed = append(r.onOperationFailed, v)
	}

	r.logger.Info("plugin registered",
		zap.String("name", p.Name()),
		zap.Strings("interfaces", implementedInterfaces(p)),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnUserRegistered", reflect.TypeOf((*OnUserRegistered)(nil)).Elem()},
	{"OnStoreCreated", reflect.TypeOf((*OnStoreCreated)(nil)).Elem()},
	{"OnBookListed", reflect.TypeOf((*OnBookListed)(nil)).Elem()},
	{"OnStockAdded", reflect.TypeOf((*OnStockAdded)(nil)).Elem()},
	{"OnOrderCreated", reflect.TypeOf((*OnOrderCreated)(nil)).Elem()},
	{"OnOrderPaid", reflect.TypeOf((*OnOrderPaid)(nil)).Elem()},
	{"OnOrderDelivered", reflect.TypeOf((*OnOrderDelivered)(nil)).Elem()},
	{"OnOrderReceived", reflect.TypeOf((*OnOrderReceived)(nil)).Elem()},
	{"OnOrderCancelled", reflect.TypeOf((*OnOrderCancelled)(nil)).Elem()},
	{"OnFundsAdded", reflect.TypeOf((*OnFundsAdded)(nil)).Elem()},
	{"OnExpirySwept", reflect.TypeOf((*OnExpirySwept)(nil)).Elem()},
	{"OnOperationFailed", reflect.TypeOf((*OnOperationFailed)(nil)).Elem()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every hook in list, logging failures. It is generic
// over the hook interface so each Emit method stays a one-liner.
func emit[H Plugin](ctx context.Context, r *Registry, hook string, list func(*Registry) []H, call func(H) error) {
	r.mu.RLock()
	plugins := list(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return call(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				zap.String("hook", hook),
				zap.String("plugin", p.Name()),
				zap.Error(err),
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitUserRegistered emits a user registered event.
func (r *Registry) EmitUserRegistered(ctx context.Context, userID string) {
	emit(ctx, r, "OnUserRegistered", func(r *Registry) []OnUserRegistered { return r.onUserRegistered },
		func(p OnUserRegistered) error { return p.OnUserRegistered(ctx, userID) })
}

// EmitStoreCreated emits a store created event.
func (r *Registry) EmitStoreCreated(ctx context.Context, storeID, ownerID string) {
	emit(ctx, r, "OnStoreCreated", func(r *Registry) []OnStoreCreated { return r.onStoreCreated },
		func(p OnStoreCreated) error { return p.OnStoreCreated(ctx, storeID, ownerID) })
}

// EmitBookListed emits a book listed event.
func (r *Registry) EmitBookListed(ctx context.Context, storeID string, book *catalog.Book, stock int64) {
	emit(ctx, r, "OnBookListed", func(r *Registry) []OnBookListed { return r.onBookListed },
		func(p OnBookListed) error { return p.OnBookListed(ctx, storeID, book, stock) })
}

// EmitStockAdded emits a restock event.
func (r *Registry) EmitStockAdded(ctx context.Context, storeID, bookID string, delta int64) {
	emit(ctx, r, "OnStockAdded", func(r *Registry) []OnStockAdded { return r.onStockAdded },
		func(p OnStockAdded) error { return p.OnStockAdded(ctx, storeID, bookID, delta) })
}

// EmitOrderCreated emits an order created event.
func (r *Registry) EmitOrderCreated(ctx context.Context, o *order.Order) {
	emit(ctx, r, "OnOrderCreated", func(r *Registry) []OnOrderCreated { return r.onOrderCreated },
		func(p OnOrderCreated) error { return p.OnOrderCreated(ctx, o) })
}

// EmitOrderPaid emits an order paid event.
func (r *Registry) EmitOrderPaid(ctx context.Context, o *order.Order, entry *settlement.Entry) {
	emit(ctx, r, "OnOrderPaid", func(r *Registry) []OnOrderPaid { return r.onOrderPaid },
		func(p OnOrderPaid) error { return p.OnOrderPaid(ctx, o, entry) })
}

// EmitOrderDelivered emits an order delivered event.
func (r *Registry) EmitOrderDelivered(ctx context.Context, o *order.Order) {
	emit(ctx, r, "OnOrderDelivered", func(r *Registry) []OnOrderDelivered { return r.onOrderDelivered },
		func(p OnOrderDelivered) error { return p.OnOrderDelivered(ctx, o) })
}

// EmitOrderReceived emits an order received event.
func (r *Registry) EmitOrderReceived(ctx context.Context, o *order.Order) {
	emit(ctx, r, "OnOrderReceived", func(r *Registry) []OnOrderReceived { return r.onOrderReceived },
		func(p OnOrderReceived) error { return p.OnOrderReceived(ctx, o) })
}

// EmitOrderCancelled emits an order cancelled event.
func (r *Registry) EmitOrderCancelled(ctx context.Context, o *order.Order, reason string, refund *settlement.Entry) {
	emit(ctx, r, "OnOrderCancelled", func(r *Registry) []OnOrderCancelled { return r.onOrderCancelled },
		func(p OnOrderCancelled) error { return p.OnOrderCancelled(ctx, o, reason, refund) })
}

// EmitFundsAdded emits a funds added event.
func (r *Registry) EmitFundsAdded(ctx context.Context, userID string, amount types.Money) {
	emit(ctx, r, "OnFundsAdded", func(r *Registry) []OnFundsAdded { return r.onFundsAdded },
		func(p OnFundsAdded) error { return p.OnFundsAdded(ctx, userID, amount) })
}

// EmitExpirySwept emits the result of one reconciler pass.
func (r *Registry) EmitExpirySwept(ctx context.Context, cancelled int, elapsed time.Duration) {
	emit(ctx, r, "OnExpirySwept", func(r *Registry) []OnExpirySwept { return r.onExpirySwept },
		func(p OnExpirySwept) error { return p.OnExpirySwept(ctx, cancelled, elapsed) })
}

// EmitOperationFailed emits a failed operation.
func (r *Registry) EmitOperationFailed(ctx context.Context, op string, opErr error) {
	emit(ctx, r, "OnOperationFailed", func(r *Registry) []OnOperationFailed { return r.onOperationFailed },
		func(p OnOperationFailed) error { return p.OnOperationFailed(ctx, op, opErr) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the order pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
