// Package audithook bridges Folio order and account events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xraph/folio"
	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnUserRegistered  = (*Extension)(nil)
	_ plugin.OnStoreCreated    = (*Extension)(nil)
	_ plugin.OnBookListed      = (*Extension)(nil)
	_ plugin.OnStockAdded      = (*Extension)(nil)
	_ plugin.OnOrderCreated    = (*Extension)(nil)
	_ plugin.OnOrderPaid       = (*Extension)(nil)
	_ plugin.OnOrderDelivered  = (*Extension)(nil)
	_ plugin.OnOrderReceived   = (*Extension)(nil)
	_ plugin.OnOrderCancelled  = (*Extension)(nil)
	_ plugin.OnFundsAdded      = (*Extension)(nil)
	_ plugin.OnOperationFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a backend-neutral audit record.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Folio lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *zap.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Provisioning hooks
// ──────────────────────────────────────────────────

// OnUserRegistered implements plugin.OnUserRegistered.
func (e *Extension) OnUserRegistered(ctx context.Context, userID string) error {
	return e.record(ctx, ActionUserRegistered, SeverityInfo, OutcomeSuccess,
		ResourceUser, userID, CategoryAccount, nil,
	)
}

// OnStoreCreated implements plugin.OnStoreCreated.
func (e *Extension) OnStoreCreated(ctx context.Context, storeID, ownerID string) error {
	return e.record(ctx, ActionStoreCreated, SeverityInfo, OutcomeSuccess,
		ResourceStore, storeID, CategoryInventory, nil,
		"owner_id", ownerID,
	)
}

// OnBookListed implements plugin.OnBookListed.
func (e *Extension) OnBookListed(ctx context.Context, storeID string, book *catalog.Book, stock int64) error {
	return e.record(ctx, ActionBookListed, SeverityInfo, OutcomeSuccess,
		ResourceBook, book.ID, CategoryInventory, nil,
		"store_id", storeID,
		"price", book.Price.String(),
		"stock_level", stock,
	)
}

// OnStockAdded implements plugin.OnStockAdded.
func (e *Extension) OnStockAdded(ctx context.Context, storeID, bookID string, delta int64) error {
	return e.record(ctx, ActionStockAdded, SeverityInfo, OutcomeSuccess,
		ResourceBook, bookID, CategoryInventory, nil,
		"store_id", storeID,
		"delta", delta,
	)
}

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (e *Extension) OnOrderCreated(ctx context.Context, o *order.Order) error {
	return e.record(ctx, ActionOrderCreated, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID, CategoryOrder, nil,
		"store_id", o.ShopID,
		"buyer_id", o.BuyerID,
		"total", o.Total.String(),
		"lines", len(o.Lines),
	)
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (e *Extension) OnOrderPaid(ctx context.Context, o *order.Order, entry *settlement.Entry) error {
	return e.record(ctx, ActionOrderPaid, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID, CategoryPayment, nil,
		"settlement_id", entry.ID.String(),
		"from_user", entry.FromUserID,
		"to_user", entry.ToUserID,
		"amount", entry.Amount.String(),
	)
}

// OnOrderDelivered implements plugin.OnOrderDelivered.
func (e *Extension) OnOrderDelivered(ctx context.Context, o *order.Order) error {
	return e.record(ctx, ActionOrderDelivered, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID, CategoryOrder, nil,
		"store_id", o.ShopID,
	)
}

// OnOrderReceived implements plugin.OnOrderReceived.
func (e *Extension) OnOrderReceived(ctx context.Context, o *order.Order) error {
	return e.record(ctx, ActionOrderReceived, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID, CategoryOrder, nil,
		"buyer_id", o.BuyerID,
	)
}

// OnOrderCancelled implements plugin.OnOrderCancelled. A refund is
// recorded as a separate warning-level event.
func (e *Extension) OnOrderCancelled(ctx context.Context, o *order.Order, reason string, refund *settlement.Entry) error {
	action := ActionOrderCancelled
	if reason == plugin.ReasonExpired {
		action = ActionOrderExpired
	}
	if err := e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID, CategoryOrder, nil,
		"reason", reason,
		"buyer_id", o.BuyerID,
	); err != nil {
		return err
	}

	if refund == nil {
		return nil
	}
	return e.record(ctx, ActionOrderRefunded, SeverityWarning, OutcomeSuccess,
		ResourceSettlement, refund.ID.String(), CategoryPayment, nil,
		"order_id", o.ID,
		"from_user", refund.FromUserID,
		"to_user", refund.ToUserID,
		"amount", refund.Amount.String(),
	)
}

// OnFundsAdded implements plugin.OnFundsAdded.
func (e *Extension) OnFundsAdded(ctx context.Context, userID string, amount types.Money) error {
	return e.record(ctx, ActionFundsAdded, SeverityInfo, OutcomeSuccess,
		ResourceUser, userID, CategoryPayment, nil,
		"amount", amount.String(),
	)
}

// OnOperationFailed implements plugin.OnOperationFailed. Only
// authorization failures are audited; other errors are ordinary
// business outcomes.
func (e *Extension) OnOperationFailed(ctx context.Context, op string, err error) error {
	if !folio.IsAuthorization(err) {
		return nil
	}
	return e.record(ctx, ActionOperationFailed, SeverityWarning, OutcomeFailure,
		ResourceEngine, op, CategorySystem, err,
		"operation", op,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.Error(recErr),
		)
	}
	return nil
}
