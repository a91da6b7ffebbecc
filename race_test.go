package folio_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/memory"
	"github.com/xraph/folio/store/sqlite"
	"github.com/xraph/folio/types"
)

// backends lists the stores the concurrency tests run against. SQLite
// exercises the conditional SQL updates shared with postgres.
var backends = []struct {
	name string
	open func(t *testing.T) store.Store
}{
	{"memory", func(*testing.T) store.Store { return memory.New() }},
	{"sqlite", func(t *testing.T) store.Store {
		t.Helper()
		ctx := context.Background()
		s, err := sqlite.Open(ctx, sqlite.Memory)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		t.Cleanup(func() { _ = s.Close() })
		return s
	}},
}

// concurrently runs fns at once and returns their errors in order.
func concurrently(fns ...func() error) []error {
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

func TestNoOversellUnderConcurrency(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarnessWithStore(t, b.open(t))
			h.seller(t, "alice", "s1", 10, book("b1", 100))

			const buyers = 25
			fns := make([]func() error, buyers)
			for i := range buyers {
				buyer := fmt.Sprintf("buyer-%d", i)
				h.user(t, buyer, 0)
				fns[i] = func() error {
					_, err := h.CreateOrder(ctx, buyer, "s1", items("b1", 1))
					return err
				}
			}

			var ok, outOfStock int
			for _, err := range concurrently(fns...) {
				switch {
				case err == nil:
					ok++
				case assert.ErrorIs(t, err, folio.ErrInsufficientStock):
					outOfStock++
				}
			}

			assert.Equal(t, 10, ok)
			assert.Equal(t, buyers-10, outOfStock)
			assert.Equal(t, int64(0), h.stock(t, "s1", "b1"))
		})
	}
}

// A payment racing a cancellation always ends Cancelled: either the cancel
// lands first and the payment is refused, or the payment lands first and
// the cancel refunds it. Money and stock come back in both cases.
func TestPayRacesCancel(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarnessWithStore(t, b.open(t))
			h.seller(t, "alice", "s1", 5, book("b1", 100))
			h.user(t, "carol", 10000)

			const rounds = 10
			for range rounds {
				orderID, err := h.CreateOrder(ctx, "carol", "s1", items("b1", 2))
				require.NoError(t, err)

				errs := concurrently(
					func() error { return h.PayOrder(ctx, "carol", pw, orderID) },
					func() error { return h.CancelOrder(ctx, "carol", orderID) },
				)
				payErr, cancelErr := errs[0], errs[1]
				require.NoError(t, cancelErr)

				entries, err := h.Settlements(ctx, orderID)
				require.NoError(t, err)
				if payErr != nil {
					require.ErrorIs(t, payErr, folio.ErrInvalidOrderID)
					assert.Empty(t, entries)
				} else {
					kinds := make([]settlement.Kind, len(entries))
					for i, e := range entries {
						kinds[i] = e.Kind
					}
					assert.ElementsMatch(t, []settlement.Kind{settlement.KindPayment, settlement.KindRefund}, kinds)
				}

				assert.Equal(t, order.StatusCancelled, h.status(t, orderID))
				assert.Equal(t, types.Cents(10000), h.balance(t, "carol"))
				assert.Equal(t, types.Cents(0), h.balance(t, "alice"))
				assert.Equal(t, int64(5), h.stock(t, "s1", "b1"))
			}
		})
	}
}

// A payment racing the expiry sweep: exactly one side wins. The loser
// changes nothing.
func TestPayRacesReconciler(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarnessWithStore(t, b.open(t))
			h.seller(t, "alice", "s1", 50, book("b1", 100))
			h.user(t, "carol", 10000)

			const rounds = 10
			var paid, expired int64
			for range rounds {
				orderID, err := h.CreateOrder(ctx, "carol", "s1", items("b1", 1))
				require.NoError(t, err)
				h.clock.Add(h.ExpiryTimeout() + time.Second)

				var cancelled int
				errs := concurrently(
					func() error { return h.PayOrder(ctx, "carol", pw, orderID) },
					func() error {
						var err error
						cancelled, err = h.ReconcileExpired(ctx)
						return err
					},
				)
				payErr, sweepErr := errs[0], errs[1]
				require.NoError(t, sweepErr)

				if payErr == nil {
					paid++
					assert.Equal(t, 0, cancelled)
					assert.Equal(t, order.StatusPaid, h.status(t, orderID))
				} else {
					expired++
					require.ErrorIs(t, payErr, folio.ErrInvalidOrderID)
					assert.Equal(t, 1, cancelled)
					assert.Equal(t, order.StatusCancelled, h.status(t, orderID))
				}
			}

			assert.Equal(t, int64(rounds), paid+expired)
			assert.Equal(t, types.Cents(10000-100*paid), h.balance(t, "carol"))
			assert.Equal(t, types.Cents(100*paid), h.balance(t, "alice"))
			assert.Equal(t, 50-paid, h.stock(t, "s1", "b1"))
		})
	}
}
