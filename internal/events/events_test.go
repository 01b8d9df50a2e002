package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherMessageShape(t *testing.T) {
	w := &captureWriter{}
	p := &KafkaPublisher{w: w, log: zap.NewNop()}

	ev := New(TypeOrderCompleted, 42, decimal.RequireFromString("19.50"))
	require.NoError(t, p.Publish(context.Background(), ev))
	require.NoError(t, p.Close())

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, ev.OccurredAt, msg.Time)
	assert.Contains(t, msg.Headers, kafka.Header{Key: "event-type", Value: []byte(TypeOrderCompleted)})
	assert.True(t, w.closed)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, ev.ID.String(), got["id"])
	assert.Equal(t, TypeOrderCompleted, got["type"])
	assert.Equal(t, float64(42), got["order_id"])
	assert.Equal(t, "19.5", got["amount"])
	assert.Contains(t, got, "occurred_at")
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), New(TypeCheckoutUnreconciled, 1, decimal.Zero)))
	assert.NoError(t, p.Close())
}

func TestKafkaPublisherFlushesQuickly(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "orders", nil)
	t.Cleanup(func() { _ = p.Close() })

	w, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "orders", w.Topic)
	assert.Equal(t, 10*time.Millisecond, w.BatchTimeout)
	assert.Equal(t, 3, w.MaxAttempts)
	assert.Equal(t, 2*time.Second, w.WriteTimeout)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
