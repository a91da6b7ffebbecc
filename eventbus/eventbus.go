// Package eventbus publishes Folio order lifecycle events to Kafka.
//
// The Publisher is a plugin: register it with folio.WithPlugin and every
// committed order transition is written as a JSON message keyed by order
// id, so all events of one order land on the same partition in order.
// The caller's trace context travels in the message headers.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/xraph/folio/order"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/settlement"
)

// Event types.
const (
	TypeOrderCreated   = "order.created"
	TypeOrderPaid      = "order.paid"
	TypeOrderDelivered = "order.delivered"
	TypeOrderReceived  = "order.received"
	TypeOrderCancelled = "order.cancelled"
)

// HeaderEventType carries Event.Type so consumers can route without
// decoding the payload.
const HeaderEventType = "folio-event-type"

// Compile-time interface checks.
var (
	_ plugin.Plugin           = (*Publisher)(nil)
	_ plugin.OnOrderCreated   = (*Publisher)(nil)
	_ plugin.OnOrderPaid      = (*Publisher)(nil)
	_ plugin.OnOrderDelivered = (*Publisher)(nil)
	_ plugin.OnOrderReceived  = (*Publisher)(nil)
	_ plugin.OnOrderCancelled = (*Publisher)(nil)
	_ plugin.OnShutdown       = (*Publisher)(nil)
)

// Producer is the subset of *kafka.Writer the publisher needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the message payload.
type Event struct {
	Type       string       `json:"type"`
	OrderID    string       `json:"order_id"`
	StoreID    string       `json:"store_id"`
	BuyerID    string       `json:"buyer_id"`
	Status     string       `json:"status"`
	Total      int64        `json:"total_price"`
	Lines      []order.Line `json:"lines,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Settlement *Settlement  `json:"settlement,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Settlement describes the money movement attached to a paid or refunded
// order.
type Settlement struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	From   string `json:"from_user_id"`
	To     string `json:"to_user_id"`
	Amount int64  `json:"amount"`
}

// Publisher writes order events through a Producer.
type Publisher struct {
	producer Producer
	logger   *zap.Logger
	clock    clock.Clock
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock sets the clock used for OccurredAt.
func WithClock(c clock.Clock) Option {
	return func(p *Publisher) {
		p.clock = c
	}
}

// New creates a Publisher writing through producer.
func New(producer Producer, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		logger:   zap.NewNop(),
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewWriter returns a kafka writer for topic tuned for low-latency
// publishing of small messages.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireAll,
	}
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "eventbus" }

// OnOrderCreated implements plugin.OnOrderCreated.
func (p *Publisher) OnOrderCreated(ctx context.Context, o *order.Order) error {
	evt := p.event(TypeOrderCreated, o)
	evt.Lines = o.Lines
	return p.publish(ctx, evt)
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (p *Publisher) OnOrderPaid(ctx context.Context, o *order.Order, entry *settlement.Entry) error {
	evt := p.event(TypeOrderPaid, o)
	evt.Settlement = settlementOf(entry)
	return p.publish(ctx, evt)
}

// OnOrderDelivered implements plugin.OnOrderDelivered.
func (p *Publisher) OnOrderDelivered(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, p.event(TypeOrderDelivered, o))
}

// OnOrderReceived implements plugin.OnOrderReceived.
func (p *Publisher) OnOrderReceived(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, p.event(TypeOrderReceived, o))
}

// OnOrderCancelled implements plugin.OnOrderCancelled.
func (p *Publisher) OnOrderCancelled(ctx context.Context, o *order.Order, reason string, refund *settlement.Entry) error {
	evt := p.event(TypeOrderCancelled, o)
	evt.Reason = reason
	evt.Settlement = settlementOf(refund)
	return p.publish(ctx, evt)
}

// OnShutdown implements plugin.OnShutdown and flushes the producer.
func (p *Publisher) OnShutdown(_ context.Context) error {
	return p.producer.Close()
}

func (p *Publisher) event(typ string, o *order.Order) *Event {
	return &Event{
		Type:       typ,
		OrderID:    o.ID,
		StoreID:    o.ShopID,
		BuyerID:    o.BuyerID,
		Status:     o.Status.String(),
		Total:      o.Total.Int64(),
		OccurredAt: p.clock.Now().UTC(),
	}
}

func settlementOf(e *settlement.Entry) *Settlement {
	if e == nil {
		return nil
	}
	return &Settlement{
		ID:     e.ID.String(),
		Kind:   string(e.Kind),
		From:   e.FromUserID,
		To:     e.ToUserID,
		Amount: e.Amount.Int64(),
	}
}

func (p *Publisher) publish(ctx context.Context, evt *Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("eventbus: encode %s: %w", evt.Type, err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]kafka.Header, 0, len(carrier)+1)
	headers = append(headers, kafka.Header{Key: HeaderEventType, Value: []byte(evt.Type)})
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     []byte(evt.OrderID),
		Value:   payload,
		Headers: headers,
		Time:    evt.OccurredAt,
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish order event",
			zap.String("type", evt.Type),
			zap.String("order_id", evt.OrderID),
			zap.Error(err),
		)
		return fmt.Errorf("eventbus: publish %s: %w", evt.Type, err)
	}

	p.logger.Debug("published order event",
		zap.String("type", evt.Type),
		zap.String("order_id", evt.OrderID),
	)
	return nil
}
