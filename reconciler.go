package folio

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/store"
)

// expiryWorker cancels unpaid orders older than the expiry timeout on
// every tick until the engine stops. It owns ticker.
func (e *Engine) expiryWorker(ctx context.Context, ticker *clock.Ticker) {
	defer e.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ReconcileExpired(ctx); err != nil {
				e.logger.Error("expiry pass failed", zap.Error(err))
			}
		}
	}
}

// ReconcileExpired runs one expiry pass and returns how many orders it
// cancelled. Each order is cancelled in its own unit of work through the
// same path as CancelOrder; an order paid in the meantime is skipped.
// Orders that are paid or further along are never touched.
func (e *Engine) ReconcileExpired(ctx context.Context) (cancelled int, err error) {
	ctx, span := e.span(ctx, "ReconcileExpired")
	defer func() { err = e.finish(ctx, span, "ReconcileExpired", err) }()

	start := e.clock.Now()
	cutoff := e.now().Add(-e.expiryTimeout)

	var ids []string
	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ids, err = tx.ListExpiredOrders(ctx, cutoff, e.expiryBatch)
		return err
	})
	if err != nil {
		return 0, err
	}

	var firstErr error
	for _, orderID := range ids {
		if err := ctx.Err(); err != nil {
			return cancelled, err
		}

		o, err := e.expire(ctx, orderID)
		switch {
		case errors.Is(err, ErrInvalidOrderID):
			e.logger.Debug("expired order already settled", zap.String("order_id", orderID))
			continue
		case err != nil:
			e.logger.Warn("failed to cancel expired order",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		cancelled++
		e.logger.Info("expired order cancelled",
			zap.String("order_id", orderID),
			zap.Duration("age", o.Age(e.now())),
		)
		e.plugins.EmitOrderCancelled(ctx, o, plugin.ReasonExpired, nil)
	}

	elapsed := e.clock.Since(start)
	span.SetAttributes(
		attribute.Int("folio.candidates", len(ids)),
		attribute.Int("folio.cancelled", cancelled),
	)
	if len(ids) > 0 {
		e.logger.Debug("expiry pass complete",
			zap.Int("candidates", len(ids)),
			zap.Int("cancelled", cancelled),
			zap.Duration("elapsed", elapsed),
		)
	}
	e.plugins.EmitExpirySwept(ctx, cancelled, elapsed)

	return cancelled, firstErr
}

// expire cancels a single Created order with system authority.
func (e *Engine) expire(ctx context.Context, orderID string) (*order.Order, error) {
	var o *order.Order
	now := e.now()
	err := e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, _, err = cancelInTx(ctx, tx, orderID, "", []order.Status{order.StatusCreated}, id.Nil, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ExpiryTimeout returns how long an order may stay unpaid.
func (e *Engine) ExpiryTimeout() time.Duration { return e.expiryTimeout }
