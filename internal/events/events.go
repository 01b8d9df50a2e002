// Package events publishes order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	TypeOrderCompleted       = "order.completed"
	TypeCheckoutUnreconciled = "checkout.unreconciled"
	TypeCheckoutReconciled   = "checkout.reconciled"
)

type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	OrderID    int64           `json:"order_id"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func New(typ string, orderID int64, amount decimal.Decimal) Event {
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		OrderID:    orderID,
		Amount:     amount,
		OccurredAt: time.Now().UTC(),
	}
}

const (
	// batchTimeout caps how long an event sits in a partial batch. The
	// kafka-go default of one second would stall every checkout.
	batchTimeout = 10 * time.Millisecond
	maxAttempts  = 3
	writeTimeout = 2 * time.Second
)

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w   messageWriter
	log *zap.Logger
}

// NewKafkaPublisher writes to topic, keyed by order id so one order's events
// stay in one partition.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           batchTimeout,
			MaxAttempts:            maxAttempts,
			WriteTimeout:           writeTimeout,
		},
		log: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:     []byte(strconv.FormatInt(ev.OrderID, 10)),
		Value:   payload,
		Time:    ev.OccurredAt,
		Headers: traceHeaders(ctx, kafka.Header{Key: "event-type", Value: []byte(ev.Type)}),
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return err
	}

	p.log.Debug("event published", zap.String("type", ev.Type), zap.Int64("order_id", ev.OrderID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

func traceHeaders(ctx context.Context, headers ...kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}
