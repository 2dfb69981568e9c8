package events

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-and-shine/aggregate/logger"
	"github.com/rise-and-shine/aggregate/meta"
)

func testConsumer(handleFn HandleFunc) *Consumer {
	return &Consumer{
		cfg: ConsumerConfig{
			GroupID:        "order-service",
			HandlerTimeout: time.Second,
		},
		topic:    "orders.events",
		logger:   logger.Named("events.consumer"),
		handleFn: handleFn,
	}
}

func TestHandlerChain_DecodesEnvelope(t *testing.T) {
	var got IncomingEvent
	var gotTraceID string

	c := testConsumer(func(ctx context.Context, ev IncomingEvent) error {
		got = ev
		gotTraceID = meta.ExtractMetaFromContext(ctx)[meta.TraceID]
		return nil
	})

	msg := &sarama.ConsumerMessage{
		Topic: "orders.events",
		Key:   []byte("42"),
		Value: []byte(`{"status":"shipped"}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte("aggregate_type"), Value: []byte("Order")},
			{Key: []byte("aggregate_id"), Value: []byte("42")},
			{Key: []byte("event_type"), Value: []byte("order.shipped")},
			{Key: []byte("event_version"), Value: []byte("v1")},
			{Key: []byte("trace_id"), Value: []byte("trace-abc")},
		},
	}

	err := c.buildHandlerChain()(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "orders.events", got.Topic)
	assert.Equal(t, "Order", got.AggregateType)
	assert.Equal(t, "42", got.AggregateID)
	assert.Equal(t, "order.shipped", got.EventType)
	assert.Equal(t, "v1", got.EventVersion)
	assert.Equal(t, "trace-abc", got.TraceID)
	assert.JSONEq(t, `{"status":"shipped"}`, string(got.Payload))

	// the tracing wrapper carries the header trace id into the context
	assert.Equal(t, "trace-abc", gotTraceID)
}

func TestHandlerChain_GeneratesTraceID(t *testing.T) {
	var gotTraceID string

	c := testConsumer(func(ctx context.Context, _ IncomingEvent) error {
		gotTraceID = meta.ExtractMetaFromContext(ctx)[meta.TraceID]
		return nil
	})

	err := c.buildHandlerChain()(context.Background(), &sarama.ConsumerMessage{Topic: "orders.events"})
	require.NoError(t, err)
	assert.NotEmpty(t, gotTraceID)
}

func TestHandlerChain_RecoversPanic(t *testing.T) {
	c := testConsumer(func(context.Context, IncomingEvent) error {
		panic("boom")
	})

	err := c.buildHandlerChain()(context.Background(), &sarama.ConsumerMessage{Topic: "orders.events"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic recovered")
}
