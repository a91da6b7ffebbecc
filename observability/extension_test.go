package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	"github.com/xraph/folio/observability"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/types"
)

func TestMetricsExtension(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewPedanticRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	o := &order.Order{ID: "o1", Total: types.Cents(2000), Lines: make([]order.Line, 2)}
	require.NoError(t, m.OnOrderCreated(ctx, o))
	require.NoError(t, m.OnOrderCreated(ctx, o))
	require.NoError(t, m.OnOrderPaid(ctx, o, &settlement.Entry{Amount: o.Total}))
	require.NoError(t, m.OnOrderCancelled(ctx, o, plugin.ReasonBuyer, &settlement.Entry{Amount: o.Total}))
	require.NoError(t, m.OnOrderCancelled(ctx, o, plugin.ReasonExpired, nil))
	require.NoError(t, m.OnExpirySwept(ctx, 3, 15*time.Millisecond))
	require.NoError(t, m.OnStockAdded(ctx, "s1", "b1", 4))
	require.NoError(t, m.OnStockAdded(ctx, "s1", "b2", 1))

	assert.InDelta(t, 2, testutil.ToFloat64(m.OrderCreated.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OrderPaid.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OrderCancelled.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OrderExpired.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RefundsTotal.(prometheus.Counter)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.ExpirySweeps.(prometheus.Counter)), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(m.StockAdded.(prometheus.Counter)), 0)

	n, err := testutil.GatherAndCount(reg, "folio_order_total_amount", "folio_order_created_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOperationFailedClassification(t *testing.T) {
	ctx := context.Background()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(prometheus.NewRegistry()))

	require.NoError(t, m.OnOperationFailed(ctx, "CreateOrder", folio.ErrInsufficientStock))
	require.NoError(t, m.OnOperationFailed(ctx, "PayOrder", folio.ErrAuthorizationFailure))
	require.NoError(t, m.OnOperationFailed(ctx, "PayOrder", folio.Transient(errors.New("reset"))))
	require.NoError(t, m.OnOperationFailed(ctx, "PayOrder", errors.New("boom")))

	assert.InDelta(t, 4, testutil.ToFloat64(m.OperationErrors.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StockOuts.(prometheus.Counter)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.StoreErrors.(prometheus.Counter)), 0)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	a := f.Counter("folio.order.created")
	b := f.Counter("folio.order.created")
	a.Inc()
	b.Inc()

	assert.InDelta(t, 2, testutil.ToFloat64(a.(prometheus.Counter)), 0)
	assert.NotPanics(t, func() { observability.NewMetricsExtension(f) })
	assert.NotPanics(t, func() { observability.NewMetricsExtension(f) })
}
