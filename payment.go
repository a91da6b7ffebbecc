package folio

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/types"
)

// PayOrder settles a Created order: the buyer is debited the order total
// and the store owner credited, in one unit of work with the Created→Paid
// transition. Paying an order twice fails with ErrInvalidOrderID.
func (e *Engine) PayOrder(ctx context.Context, userID, plain, orderID string) (err error) {
	ctx, span := e.span(ctx, "PayOrder",
		attribute.String("folio.user_id", userID),
		attribute.String("folio.order_id", orderID),
	)
	defer func() { err = e.finish(ctx, span, "PayOrder", err) }()

	if !e.limiter.Allow(userID, e.clock.Now()) {
		return ErrTooManyAttempts
	}

	// Read phase: order, ownership and the stored hash. The hash is
	// verified after this unit commits so no lock is held during argon2.
	var encoded string
	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != order.StatusCreated {
			return fmt.Errorf("%w: %s is %s", ErrInvalidOrderID, orderID, o.Status)
		}
		if o.BuyerID != userID {
			return fmt.Errorf("%w: %s is not the buyer of %s", ErrAuthorizationFailure, userID, orderID)
		}
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		encoded = u.PasswordHash
		return nil
	})
	if err != nil {
		return err
	}

	ok, verr := e.hasher.Verify(encoded, plain)
	if verr != nil {
		e.logger.Warn("unreadable password hash", zap.String("user_id", userID), zap.Error(verr))
	}
	if !ok {
		return ErrAuthorizationFailure
	}

	var (
		o     *order.Order
		entry *settlement.Entry
	)
	now := e.now()
	entryID := id.NewSettlementID()
	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := advance(ctx, tx, o, order.StatusPaid, now); err != nil {
			return err
		}

		if err := tx.AdjustBalance(ctx, o.BuyerID, -o.Total.Int64(), now); err != nil {
			return err
		}
		sh, err := tx.GetShop(ctx, o.ShopID)
		if err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, sh.OwnerID, o.Total.Int64(), now); err != nil {
			return err
		}

		entry = &settlement.Entry{
			ID:         entryID,
			OrderID:    orderID,
			Kind:       settlement.KindPayment,
			FromUserID: o.BuyerID,
			ToUserID:   sh.OwnerID,
			Amount:     o.Total,
			CreatedAt:  now,
		}
		return tx.RecordSettlement(ctx, entry)
	})
	if err != nil {
		return err
	}

	e.logger.Info("order paid",
		zap.String("order_id", orderID),
		zap.String("buyer_id", o.BuyerID),
		zap.String("seller_id", entry.ToUserID),
		zap.String("amount", o.Total.String()),
	)
	e.plugins.EmitOrderPaid(ctx, o, entry)
	return nil
}

// AddFunds tops up userID's balance. The amount must be positive.
func (e *Engine) AddFunds(ctx context.Context, userID, plain string, amount types.Money) (err error) {
	ctx, span := e.span(ctx, "AddFunds",
		attribute.String("folio.user_id", userID),
		attribute.Int64("folio.amount", amount.Int64()),
	)
	defer func() { err = e.finish(ctx, span, "AddFunds", err) }()

	if !amount.IsPositive() {
		return ValidationError{Field: "add_value", Message: "must be positive"}
	}
	if err := e.authenticate(ctx, userID, plain, ErrAuthorizationFailure); err != nil {
		return err
	}

	now := e.now()
	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AdjustBalance(ctx, userID, amount.Int64(), now)
	})
	if errors.Is(err, ErrUserNotFound) {
		return ErrAuthorizationFailure
	}
	if err != nil {
		return err
	}

	e.logger.Info("funds added", zap.String("user_id", userID), zap.String("amount", amount.String()))
	e.plugins.EmitFundsAdded(ctx, userID, amount)
	return nil
}

// Balance returns userID's current balance.
func (e *Engine) Balance(ctx context.Context, userID string) (types.Money, error) {
	var balance types.Money
	err := e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		balance = u.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Settlements returns the payment and refund journal of an order, oldest
// first.
func (e *Engine) Settlements(ctx context.Context, orderID string) ([]*settlement.Entry, error) {
	var entries []*settlement.Entry
	err := e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetOrder(ctx, orderID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListSettlements(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
