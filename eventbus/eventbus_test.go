package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/folio/eventbus"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/types"
)

type fakeProducer struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func decode(t *testing.T, m kafka.Message) eventbus.Event {
	t.Helper()
	var evt eventbus.Event
	require.NoError(t, json.Unmarshal(m.Value, &evt))
	return evt
}

func newPublisher() (*eventbus.Publisher, *fakeProducer, *clock.Mock) {
	prod := &fakeProducer{}
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	return eventbus.New(prod, eventbus.WithClock(mock)), prod, mock
}

func testOrder(status order.Status) *order.Order {
	return &order.Order{
		ID:      "carol_s1_ord_01h2xcejqtf2nbrexx3vqjhp41",
		ShopID:  "s1",
		BuyerID: "carol",
		Total:   types.Cents(2000),
		Status:  status,
		Lines:   []order.Line{{BookID: "b1", Count: 2, UnitPrice: 1000}},
	}
}

func TestPublishLifecycle(t *testing.T) {
	ctx := context.Background()
	p, prod, mock := newPublisher()

	require.NoError(t, p.OnOrderCreated(ctx, testOrder(order.StatusCreated)))
	entry := &settlement.Entry{ID: id.NewSettlementID(), Kind: settlement.KindPayment, FromUserID: "carol", ToUserID: "alice", Amount: 2000}
	require.NoError(t, p.OnOrderPaid(ctx, testOrder(order.StatusPaid), entry))
	require.NoError(t, p.OnOrderDelivered(ctx, testOrder(order.StatusShipped)))
	require.NoError(t, p.OnOrderReceived(ctx, testOrder(order.StatusReceived)))

	require.Len(t, prod.msgs, 4)
	for _, m := range prod.msgs {
		assert.Equal(t, "carol_s1_ord_01h2xcejqtf2nbrexx3vqjhp41", string(m.Key))
	}

	created := decode(t, prod.msgs[0])
	assert.Equal(t, eventbus.TypeOrderCreated, created.Type)
	assert.Equal(t, eventbus.TypeOrderCreated, header(prod.msgs[0], eventbus.HeaderEventType))
	assert.Equal(t, "unpaid", created.Status)
	assert.Equal(t, int64(2000), created.Total)
	assert.Len(t, created.Lines, 1)
	assert.True(t, mock.Now().Equal(created.OccurredAt))

	paid := decode(t, prod.msgs[1])
	require.NotNil(t, paid.Settlement)
	assert.Equal(t, entry.ID.String(), paid.Settlement.ID)
	assert.Equal(t, "alice", paid.Settlement.To)

	assert.Equal(t, eventbus.TypeOrderDelivered, decode(t, prod.msgs[2]).Type)
	assert.Equal(t, "received", decode(t, prod.msgs[3]).Status)
}

func TestPublishCancellation(t *testing.T) {
	p, prod, _ := newPublisher()

	require.NoError(t, p.OnOrderCancelled(context.Background(), testOrder(order.StatusCancelled), plugin.ReasonExpired, nil))

	evt := decode(t, prod.msgs[0])
	assert.Equal(t, eventbus.TypeOrderCancelled, evt.Type)
	assert.Equal(t, plugin.ReasonExpired, evt.Reason)
	assert.Nil(t, evt.Settlement)
}

func TestPublishPropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	p, prod, _ := newPublisher()
	require.NoError(t, p.OnOrderDelivered(ctx, testOrder(order.StatusShipped)))

	assert.Contains(t, header(prod.msgs[0], "traceparent"), sc.TraceID().String())
}

func TestPublishError(t *testing.T) {
	p, prod, _ := newPublisher()
	prod.err = errors.New("broker unavailable")

	err := p.OnOrderReceived(context.Background(), testOrder(order.StatusReceived))
	require.ErrorIs(t, err, prod.err)
}

func TestShutdownClosesProducer(t *testing.T) {
	p, prod, _ := newPublisher()
	require.NoError(t, p.OnShutdown(context.Background()))
	assert.True(t, prod.closed)
}

func TestNewWriter(t *testing.T) {
	w := eventbus.NewWriter([]string{"localhost:9092", "localhost:9093"}, "folio.orders")
	assert.Equal(t, "folio.orders", w.Topic)
	assert.NotNil(t, w.Addr)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
