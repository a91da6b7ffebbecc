package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/store"
)

// retryTx runs fn until the backend stops reporting ErrTransientStorage.
// Write conflicts between concurrent transactions surface that way on
// mongo and as serialization failures on postgres.
func retryTx(s store.Store, fn store.TxFunc) error {
	for attempt := 0; ; attempt++ {
		err := s.RunInTx(context.Background(), fn)
		if err == nil || !errors.Is(err, folio.ErrTransientStorage) || attempt == 50 {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}
}

// race runs fns concurrently, released together, and returns their errors
// in order.
func race(fns ...func() error) []error {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, len(fns))
	)
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

func testConcurrentStock(t *testing.T, s store.Store) {
	const (
		stock   = 10
		workers = 25
	)
	_, shopID, bookID := seedShop(t, s, 10, stock)

	fns := make([]func() error, workers)
	for i := range fns {
		fns[i] = func() error {
			return retryTx(s, func(ctx context.Context, tx store.Tx) error {
				return tx.AdjustStock(ctx, shopID, bookID, -1)
			})
		}
	}

	var sold, refused int
	for _, err := range race(fns...) {
		switch {
		case err == nil:
			sold++
		case assert.ErrorIs(t, err, folio.ErrInsufficientStock):
			refused++
		}
	}

	assert.Equal(t, stock, sold)
	assert.Equal(t, workers-stock, refused)
	assert.Equal(t, int64(0), stockOf(t, s, shopID, bookID))
}

// testConcurrentSettle races a payment against a cancellation of the same
// order. Each side guards its transition on Created, so exactly one wins
// and the loser's balance or stock changes are rolled back.
func testConcurrentSettle(t *testing.T, s store.Store) {
	const (
		rounds  = 10
		funds   = 1000
		initial = 50
	)
	ownerID, shopID, bookID := seedShop(t, s, 10, initial)
	buyerID := seedUser(t, s, funds)
	at := base.Add(time.Hour)

	var paid, cancelled int64
	for range rounds {
		o := seedOrder(t, s, buyerID, shopID, bookID, base)

		pay := func() error {
			return retryTx(s, func(ctx context.Context, tx store.Tx) error {
				if err := tx.TransitionOrder(ctx, o.ID, []order.Status{order.StatusCreated}, order.StatusPaid, at); err != nil {
					return err
				}
				if err := tx.AdjustBalance(ctx, buyerID, -o.Total.Int64(), at); err != nil {
					return err
				}
				return tx.AdjustBalance(ctx, ownerID, o.Total.Int64(), at)
			})
		}
		cancel := func() error {
			return retryTx(s, func(ctx context.Context, tx store.Tx) error {
				if err := tx.TransitionOrder(ctx, o.ID, []order.Status{order.StatusCreated}, order.StatusCancelled, at); err != nil {
					return err
				}
				return tx.AdjustStock(ctx, shopID, bookID, o.Lines[0].Count)
			})
		}

		errs := race(pay, cancel)
		payErr, cancelErr := errs[0], errs[1]
		require.True(t, (payErr == nil) != (cancelErr == nil), "pay=%v cancel=%v", payErr, cancelErr)

		want := order.StatusPaid
		if payErr != nil {
			require.ErrorIs(t, payErr, folio.ErrInvalidOrderID)
			want = order.StatusCancelled
			cancelled++
		} else {
			require.ErrorIs(t, cancelErr, folio.ErrInvalidOrderID)
			paid++
		}

		mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
			got, err := tx.GetOrder(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, want, got.Status)
			return nil
		})
	}

	mustTx(t, s, func(ctx context.Context, tx store.Tx) error {
		buyer, err := tx.GetUser(ctx, buyerID)
		require.NoError(t, err)
		owner, err := tx.GetUser(ctx, ownerID)
		require.NoError(t, err)
		assert.Equal(t, int64(funds)-paid*seedOrderTotal, buyer.Balance.Int64())
		assert.Equal(t, paid*seedOrderTotal, owner.Balance.Int64())
		return nil
	})
	assert.Equal(t, initial+cancelled*seedOrderCount, stockOf(t, s, shopID, bookID))
}
