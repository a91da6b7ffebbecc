// Package observability provides a metrics extension for Folio that records
// order and payment event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/folio"
	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnUserRegistered  = (*MetricsExtension)(nil)
	_ plugin.OnStoreCreated    = (*MetricsExtension)(nil)
	_ plugin.OnBookListed      = (*MetricsExtension)(nil)
	_ plugin.OnStockAdded      = (*MetricsExtension)(nil)
	_ plugin.OnOrderCreated    = (*MetricsExtension)(nil)
	_ plugin.OnOrderPaid       = (*MetricsExtension)(nil)
	_ plugin.OnOrderDelivered  = (*MetricsExtension)(nil)
	_ plugin.OnOrderReceived   = (*MetricsExtension)(nil)
	_ plugin.OnOrderCancelled  = (*MetricsExtension)(nil)
	_ plugin.OnFundsAdded      = (*MetricsExtension)(nil)
	_ plugin.OnExpirySwept     = (*MetricsExtension)(nil)
	_ plugin.OnOperationFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Folio plugin to track order and payment metrics.
type MetricsExtension struct {
	// Provisioning metrics
	UserRegistered Counter
	StoreCreated   Counter
	BookListed     Counter
	StockAdded     Counter

	// Order metrics
	OrderCreated   Counter
	OrderPaid      Counter
	OrderDelivered Counter
	OrderReceived  Counter
	OrderCancelled Counter
	OrderExpired   Counter
	OrderTotal     Histogram
	OrderLines     Histogram

	// Payment metrics
	FundsAdded   Counter
	RefundsTotal Counter
	PaidAmount   Histogram

	// Reconciler metrics
	ExpirySweeps       Counter
	ExpirySweepLatency Histogram

	// Error metrics
	OperationErrors Counter
	StockOuts       Counter
	StoreErrors     Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		UserRegistered: factory.Counter("folio.user.registered"),
		StoreCreated:   factory.Counter("folio.store.created"),
		BookListed:     factory.Counter("folio.book.listed"),
		StockAdded:     factory.Counter("folio.stock.added"),

		OrderCreated:   factory.Counter("folio.order.created"),
		OrderPaid:      factory.Counter("folio.order.paid"),
		OrderDelivered: factory.Counter("folio.order.delivered"),
		OrderReceived:  factory.Counter("folio.order.received"),
		OrderCancelled: factory.Counter("folio.order.cancelled"),
		OrderExpired:   factory.Counter("folio.order.expired"),
		OrderTotal:     factory.Histogram("folio.order.total_amount"),
		OrderLines:     factory.Histogram("folio.order.lines"),

		FundsAdded:   factory.Counter("folio.funds.added"),
		RefundsTotal: factory.Counter("folio.refunds"),
		PaidAmount:   factory.Histogram("folio.payment.amount"),

		ExpirySweeps:       factory.Counter("folio.expiry.cancelled"),
		ExpirySweepLatency: factory.Histogram("folio.expiry.sweep.latency_ms"),

		OperationErrors: factory.Counter("folio.operation.errors"),
		StockOuts:       factory.Counter("folio.inventory.stock_outs"),
		StoreErrors:     factory.Counter("folio.store.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Provisioning hooks
// ──────────────────────────────────────────────────

// OnUserRegistered implements plugin.OnUserRegistered.
func (m *MetricsExtension) OnUserRegistered(_ context.Context, _ string) error {
	m.UserRegistered.Inc()
	return nil
}

// OnStoreCreated implements plugin.OnStoreCreated.
func (m *MetricsExtension) OnStoreCreated(_ context.Context, _, _ string) error {
	m.StoreCreated.Inc()
	return nil
}

// OnBookListed implements plugin.OnBookListed.
func (m *MetricsExtension) OnBookListed(_ context.Context, _ string, _ *catalog.Book, _ int64) error {
	m.BookListed.Inc()
	return nil
}

// OnStockAdded implements plugin.OnStockAdded. It counts copies, not calls.
func (m *MetricsExtension) OnStockAdded(_ context.Context, _, _ string, delta int64) error {
	m.StockAdded.Add(float64(delta))
	return nil
}

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (m *MetricsExtension) OnOrderCreated(_ context.Context, o *order.Order) error {
	m.OrderCreated.Inc()
	m.OrderTotal.Observe(float64(o.Total.Int64()))
	m.OrderLines.Observe(float64(len(o.Lines)))
	return nil
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (m *MetricsExtension) OnOrderPaid(_ context.Context, _ *order.Order, entry *settlement.Entry) error {
	m.OrderPaid.Inc()
	m.PaidAmount.Observe(float64(entry.Amount.Int64()))
	return nil
}

// OnOrderDelivered implements plugin.OnOrderDelivered.
func (m *MetricsExtension) OnOrderDelivered(_ context.Context, _ *order.Order) error {
	m.OrderDelivered.Inc()
	return nil
}

// OnOrderReceived implements plugin.OnOrderReceived.
func (m *MetricsExtension) OnOrderReceived(_ context.Context, _ *order.Order) error {
	m.OrderReceived.Inc()
	return nil
}

// OnOrderCancelled implements plugin.OnOrderCancelled.
func (m *MetricsExtension) OnOrderCancelled(_ context.Context, _ *order.Order, reason string, refund *settlement.Entry) error {
	if reason == plugin.ReasonExpired {
		m.OrderExpired.Inc()
	} else {
		m.OrderCancelled.Inc()
	}
	if refund != nil {
		m.RefundsTotal.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Payment and worker hooks
// ──────────────────────────────────────────────────

// OnFundsAdded implements plugin.OnFundsAdded.
func (m *MetricsExtension) OnFundsAdded(_ context.Context, _ string, _ types.Money) error {
	m.FundsAdded.Inc()
	return nil
}

// OnExpirySwept implements plugin.OnExpirySwept.
func (m *MetricsExtension) OnExpirySwept(_ context.Context, cancelled int, elapsed time.Duration) error {
	m.ExpirySweeps.Add(float64(cancelled))
	m.ExpirySweepLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnOperationFailed implements plugin.OnOperationFailed.
func (m *MetricsExtension) OnOperationFailed(_ context.Context, _ string, err error) error {
	m.OperationErrors.Inc()
	switch {
	case errors.Is(err, folio.ErrInsufficientStock):
		m.StockOuts.Inc()
	case folio.KindOf(err) == folio.KindTransient, folio.KindOf(err) == folio.KindInternal:
		m.StoreErrors.Inc()
	}
	return nil
}
