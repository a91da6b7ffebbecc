package folio

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/types"
)

// CreateOrder reserves stock for every item and records a Created order.
// Duplicate book ids are merged. Either every line is reserved or none is.
func (e *Engine) CreateOrder(ctx context.Context, buyerID, storeID string, items []order.Item) (orderID string, err error) {
	ctx, span := e.span(ctx, "CreateOrder",
		attribute.String("folio.user_id", buyerID),
		attribute.String("folio.store_id", storeID),
		attribute.Int("folio.items", len(items)),
	)
	defer func() { err = e.finish(ctx, span, "CreateOrder", err) }()

	if len(items) == 0 {
		return "", ValidationError{Field: "books", Message: "must not be empty"}
	}
	for _, it := range items {
		if it.BookID == "" {
			return "", ValidationError{Field: "book_id", Message: "must not be empty"}
		}
		if it.Count <= 0 {
			return "", ValidationError{Field: "count", Message: fmt.Sprintf("must be positive for %s", it.BookID)}
		}
	}
	merged := order.MergeItems(items)

	o := &order.Order{
		Entity:  types.NewEntity(e.now()),
		ID:      id.NewOrderKey(buyerID, storeID),
		ShopID:  storeID,
		BuyerID: buyerID,
		Status:  order.StatusCreated,
	}

	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, buyerID); err != nil {
			return err
		}
		if _, err := tx.GetShop(ctx, storeID); err != nil {
			return err
		}

		o.Lines = o.Lines[:0]
		for _, it := range merged {
			price, err := reserve(ctx, tx, storeID, it.BookID, it.Count)
			if err != nil {
				return err
			}
			o.Lines = append(o.Lines, order.Line{
				OrderID:   o.ID,
				BookID:    it.BookID,
				Count:     it.Count,
				UnitPrice: price,
			})
		}
		o.Total = o.LinesTotal()
		return tx.CreateOrder(ctx, o)
	})
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("folio.order_id", o.ID))
	e.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("buyer_id", buyerID),
		zap.String("store_id", storeID),
		zap.String("total", o.Total.String()),
	)
	e.plugins.EmitOrderCreated(ctx, o)
	return o.ID, nil
}

// GetOrder returns an order with its lines.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	var o *order.Order
	err := e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// CancelOrder cancels one of userID's orders. Reserved stock goes back to
// the store and, when the order was already paid, the seller refunds the
// buyer.
func (e *Engine) CancelOrder(ctx context.Context, userID, orderID string) (err error) {
	ctx, span := e.span(ctx, "CancelOrder",
		attribute.String("folio.user_id", userID),
		attribute.String("folio.order_id", orderID),
	)
	defer func() { err = e.finish(ctx, span, "CancelOrder", err) }()

	if err := requireID("user_id", userID); err != nil {
		return err
	}

	var (
		o      *order.Order
		refund *settlement.Entry
	)
	now := e.now()
	refundID := id.NewSettlementID()
	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, refund, err = cancelInTx(ctx, tx, orderID, userID, order.Cancellable, refundID, now)
		return err
	})
	if err != nil {
		return err
	}

	e.logger.Info("order cancelled",
		zap.String("order_id", orderID),
		zap.String("buyer_id", o.BuyerID),
		zap.Bool("refunded", refund != nil),
	)
	e.plugins.EmitOrderCancelled(ctx, o, plugin.ReasonBuyer, refund)
	return nil
}

// cancelInTx moves orderID to Cancelled if its status is in allowed. An
// empty requester acts with system authority and skips the buyer check.
// The guarded transition runs before any money or stock moves, so a racing
// payment or cancellation makes this fail with ErrInvalidOrderID.
func cancelInTx(
	ctx context.Context,
	tx store.Tx,
	orderID, requester string,
	allowed []order.Status,
	refundID id.SettlementID,
	at time.Time,
) (*order.Order, *settlement.Entry, error) {
	o, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if requester != "" && o.BuyerID != requester {
		return nil, nil, fmt.Errorf("%w: %s is not the buyer of %s", ErrAuthorizationFailure, requester, orderID)
	}
	if !slices.Contains(allowed, o.Status) {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrInvalidOrderID, orderID, o.Status)
	}

	from := o.Status
	if err := advance(ctx, tx, o, order.StatusCancelled, at); err != nil {
		return nil, nil, err
	}

	var refund *settlement.Entry
	if from.IsPaid() {
		sh, err := tx.GetShop(ctx, o.ShopID)
		if err != nil {
			return nil, nil, err
		}
		if err := tx.AdjustBalance(ctx, sh.OwnerID, -o.Total.Int64(), at); err != nil {
			return nil, nil, err
		}
		if err := tx.AdjustBalance(ctx, o.BuyerID, o.Total.Int64(), at); err != nil {
			return nil, nil, err
		}
		refund = &settlement.Entry{
			ID:         refundID,
			OrderID:    orderID,
			Kind:       settlement.KindRefund,
			FromUserID: sh.OwnerID,
			ToUserID:   o.BuyerID,
			Amount:     o.Total,
			CreatedAt:  at,
		}
		if err := tx.RecordSettlement(ctx, refund); err != nil {
			return nil, nil, err
		}
	}

	if err := release(ctx, tx, o); err != nil {
		return nil, nil, err
	}
	return o, refund, nil
}

// advance moves o to status to. The update is guarded by the status o was
// read with, so a concurrent transition makes it fail with
// ErrInvalidOrderID.
func advance(ctx context.Context, tx store.Tx, o *order.Order, to order.Status, at time.Time) error {
	if !order.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidOrderID, o.ID, o.Status, to)
	}
	if err := tx.TransitionOrder(ctx, o.ID, []order.Status{o.Status}, to, at); err != nil {
		return err
	}
	o.Status = to
	o.Touch(at)
	return nil
}

// DeliverOrder marks a paid order as shipped. Only the owner of the
// order's store may deliver it.
func (e *Engine) DeliverOrder(ctx context.Context, sellerID, orderID string) (err error) {
	ctx, span := e.span(ctx, "DeliverOrder",
		attribute.String("folio.user_id", sellerID),
		attribute.String("folio.order_id", orderID),
	)
	defer func() { err = e.finish(ctx, span, "DeliverOrder", err) }()

	var o *order.Order
	now := e.now()
	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := requireOwner(ctx, tx, sellerID, o.ShopID); err != nil {
			return err
		}

		switch o.Status {
		case order.StatusPaid:
		case order.StatusShipped, order.StatusReceived:
			return fmt.Errorf("%w: %s", ErrBooksRepeatDeliver, orderID)
		default:
			return fmt.Errorf("%w: %s is %s", ErrInvalidOrderID, orderID, o.Status)
		}

		return advance(ctx, tx, o, order.StatusShipped, now)
	})
	if err != nil {
		return err
	}

	e.logger.Info("order delivered", zap.String("order_id", orderID), zap.String("seller_id", sellerID))
	e.plugins.EmitOrderDelivered(ctx, o)
	return nil
}

// ReceiveOrder confirms receipt of a shipped order by its buyer.
func (e *Engine) ReceiveOrder(ctx context.Context, buyerID, orderID string) (err error) {
	ctx, span := e.span(ctx, "ReceiveOrder",
		attribute.String("folio.user_id", buyerID),
		attribute.String("folio.order_id", orderID),
	)
	defer func() { err = e.finish(ctx, span, "ReceiveOrder", err) }()

	var o *order.Order
	now := e.now()
	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.BuyerID != buyerID {
			return fmt.Errorf("%w: %s is not the buyer of %s", ErrAuthorizationFailure, buyerID, orderID)
		}

		switch o.Status {
		case order.StatusShipped:
		case order.StatusCreated, order.StatusPaid:
			return fmt.Errorf("%w: %s is %s", ErrBooksNotDelivered, orderID, o.Status)
		case order.StatusReceived:
			return fmt.Errorf("%w: %s", ErrBooksRepeatReceive, orderID)
		default:
			return fmt.Errorf("%w: %s is %s", ErrInvalidOrderID, orderID, o.Status)
		}

		return advance(ctx, tx, o, order.StatusReceived, now)
	})
	if err != nil {
		return err
	}

	e.logger.Info("order received", zap.String("order_id", orderID), zap.String("buyer_id", buyerID))
	e.plugins.EmitOrderReceived(ctx, o)
	return nil
}

// ListOrderHistory returns every order userID placed, unpaid first, then
// paid, shipped and received, then cancelled.
func (e *Engine) ListOrderHistory(ctx context.Context, userID string) (h *order.History, err error) {
	ctx, span := e.span(ctx, "ListOrderHistory", attribute.String("folio.user_id", userID))
	defer func() { err = e.finish(ctx, span, "ListOrderHistory", err) }()

	var orders []*order.Order
	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		orders, err = tx.ListOrdersByBuyer(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("folio.orders", len(orders)))
	return order.NewHistory(userID, orders), nil
}
