package audithook_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	audithook "github.com/xraph/folio/audit_hook"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/types"
)

type memRecorder struct {
	events []*audithook.AuditEvent
	err    error
}

func (r *memRecorder) Record(_ context.Context, e *audithook.AuditEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *memRecorder) actions() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func testOrder() *order.Order {
	return &order.Order{
		ID:      "carol_s1_ord_01h2xcejqtf2nbrexx3vqjhp41",
		ShopID:  "s1",
		BuyerID: "carol",
		Total:   types.Cents(2000),
		Lines:   []order.Line{{BookID: "b1", Count: 2, UnitPrice: 1000}},
	}
}

func TestOrderLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	ext := audithook.New(rec)

	o := testOrder()
	pay := &settlement.Entry{ID: id.NewSettlementID(), OrderID: o.ID, Kind: settlement.KindPayment, FromUserID: "carol", ToUserID: "alice", Amount: o.Total}

	require.NoError(t, ext.OnOrderCreated(ctx, o))
	require.NoError(t, ext.OnOrderPaid(ctx, o, pay))
	require.NoError(t, ext.OnOrderDelivered(ctx, o))
	require.NoError(t, ext.OnOrderReceived(ctx, o))

	assert.Equal(t, []string{
		audithook.ActionOrderCreated,
		audithook.ActionOrderPaid,
		audithook.ActionOrderDelivered,
		audithook.ActionOrderReceived,
	}, rec.actions())

	paid := rec.events[1]
	assert.Equal(t, audithook.CategoryPayment, paid.Category)
	assert.Equal(t, o.ID, paid.ResourceID)
	assert.Equal(t, "20.00", paid.Metadata["amount"])
	assert.Equal(t, pay.ID.String(), paid.Metadata["settlement_id"])
}

func TestStockAddedEvent(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)

	require.NoError(t, ext.OnStockAdded(context.Background(), "s1", "b1", 4))

	require.Len(t, rec.events, 1)
	evt := rec.events[0]
	assert.Equal(t, audithook.ActionStockAdded, evt.Action)
	assert.Equal(t, audithook.CategoryInventory, evt.Category)
	assert.Equal(t, "b1", evt.ResourceID)
	assert.Equal(t, "s1", evt.Metadata["store_id"])
	assert.Equal(t, int64(4), evt.Metadata["delta"])
}

func TestCancellationEvents(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	ext := audithook.New(rec)
	o := testOrder()

	require.NoError(t, ext.OnOrderCancelled(ctx, o, plugin.ReasonExpired, nil))

	refund := &settlement.Entry{ID: id.NewSettlementID(), OrderID: o.ID, Kind: settlement.KindRefund, FromUserID: "alice", ToUserID: "carol", Amount: o.Total}
	require.NoError(t, ext.OnOrderCancelled(ctx, o, plugin.ReasonBuyer, refund))

	assert.Equal(t, []string{
		audithook.ActionOrderExpired,
		audithook.ActionOrderCancelled,
		audithook.ActionOrderRefunded,
	}, rec.actions())
	assert.Equal(t, audithook.SeverityWarning, rec.events[2].Severity)
	assert.Equal(t, refund.ID.String(), rec.events[2].ResourceID)
}

func TestOnlyAuthorizationFailuresAreAudited(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	ext := audithook.New(rec)

	require.NoError(t, ext.OnOperationFailed(ctx, "CreateOrder", folio.ErrInsufficientStock))
	require.NoError(t, ext.OnOperationFailed(ctx, "PayOrder", fmt.Errorf("%w: carol", folio.ErrAuthorizationFailure)))

	require.Len(t, rec.events, 1)
	e := rec.events[0]
	assert.Equal(t, audithook.ActionOperationFailed, e.Action)
	assert.Equal(t, audithook.OutcomeFailure, e.Outcome)
	assert.Equal(t, "PayOrder", e.ResourceID)
	assert.Contains(t, e.Reason, "authorization fail")
}

func TestEnabledActions(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionFundsAdded))

	require.NoError(t, ext.OnUserRegistered(ctx, "carol"))
	require.NoError(t, ext.OnFundsAdded(ctx, "carol", 500))
	assert.Equal(t, []string{audithook.ActionFundsAdded}, rec.actions())

	rec = &memRecorder{}
	ext = audithook.New(rec, audithook.WithDisabledActions(audithook.ActionFundsAdded))
	require.NoError(t, ext.OnUserRegistered(ctx, "carol"))
	require.NoError(t, ext.OnFundsAdded(ctx, "carol", 500))
	assert.Equal(t, []string{audithook.ActionUserRegistered}, rec.actions())
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	rec := &memRecorder{err: errors.New("audit store down")}
	ext := audithook.New(rec)

	require.NoError(t, ext.OnStoreCreated(context.Background(), "s1", "alice"))
	assert.Len(t, rec.events, 1)
}

func TestRecorderFunc(t *testing.T) {
	var got string
	ext := audithook.New(audithook.RecorderFunc(func(_ context.Context, e *audithook.AuditEvent) error {
		got = e.Action
		return nil
	}))

	require.NoError(t, ext.OnUserRegistered(context.Background(), "carol"))
	assert.Equal(t, audithook.ActionUserRegistered, got)
}
