package folio

import (
	"context"
	"fmt"

	"github.com/xraph/folio/order"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/types"
)

// reserve takes count copies of bookID out of storeID's stock and returns
// the book's current catalog price. The decrement is conditional, so a
// concurrent buyer that empties the slot first makes this fail with
// ErrInsufficientStock.
func reserve(ctx context.Context, tx store.Tx, storeID, bookID string, count int64) (types.Money, error) {
	if err := tx.AdjustStock(ctx, storeID, bookID, -count); err != nil {
		return 0, err
	}

	b, err := tx.GetBook(ctx, bookID)
	if err != nil {
		return 0, err
	}
	return b.Price, nil
}

// release puts the stock held by every line of o back on the shelf.
func release(ctx context.Context, tx store.Tx, o *order.Order) error {
	for _, l := range o.Lines {
		if err := tx.AdjustStock(ctx, o.ShopID, l.BookID, l.Count); err != nil {
			return fmt.Errorf("release %s/%s: %w", o.ShopID, l.BookID, err)
		}
	}
	return nil
}

// StockLevel returns the number of copies of bookID storeID has on hand.
func (e *Engine) StockLevel(ctx context.Context, storeID, bookID string) (int64, error) {
	var level int64
	err := e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		s, err := tx.GetShop(ctx, storeID)
		if err != nil {
			return err
		}
		item := s.Find(bookID)
		if item == nil {
			return fmt.Errorf("%w: %s in %s", ErrBookNotFound, bookID, storeID)
		}
		level = item.StockLevel
		return nil
	})
	if err != nil {
		return 0, err
	}
	return level, nil
}
