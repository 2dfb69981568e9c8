// Package events consumes aggregate events published through the
// transactional outbox. One Consumer drains one topic within a
// consumer group; incoming messages are decoded back into the envelope
// the outbox worker attached as Kafka headers.
package events

import (
	"context"
	"errors"
	"strings"

	"github.com/IBM/sarama"
	"github.com/code19m/errx"
	"github.com/samber/lo"

	"github.com/rise-and-shine/aggregate/logger"
)

// IncomingEvent is one decoded aggregate event.
type IncomingEvent struct {
	Topic         string
	AggregateType string
	AggregateID   string
	EventType     string
	EventVersion  string
	TraceID       string
	Payload       []byte
}

// HandleFunc processes one incoming aggregate event.
type HandleFunc func(context.Context, IncomingEvent) error

// handleMsgFunc is the raw message handler the wrapper chain is built over.
type handleMsgFunc func(context.Context, *sarama.ConsumerMessage) error

// Consumer consumes aggregate events from a single topic.
type Consumer struct {
	cfg           ConsumerConfig
	topic         string
	logger        logger.Logger
	consumerGroup sarama.ConsumerGroup
	handleFn      HandleFunc
}

// NewConsumer creates a consumer for topic delivering decoded events to handleFn.
func NewConsumer(
	cfg ConsumerConfig,
	serviceName string,
	topic string,
	handleFn HandleFunc,
) (*Consumer, error) {
	saramaCfg, err := cfg.getSaramaConfig(serviceName)
	if err != nil {
		return nil, errx.Wrap(err)
	}

	consumerGroup, err := sarama.NewConsumerGroup(strings.Split(cfg.Brokers, ","), cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, errx.Wrap(err)
	}

	return &Consumer{
		cfg:           cfg,
		topic:         topic,
		logger:        logger.Named("events.consumer"),
		consumerGroup: consumerGroup,
		handleFn:      handleFn,
	}, nil
}

// Start begins consuming messages and blocks until Stop is called.
func (c *Consumer) Start() error {
	// the main consume loop, parent of the ConsumeClaim() partition consumer loop
	for {
		err := c.consumerGroup.Consume(context.Background(), []string{c.topic}, c)
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return errx.Wrap(err)
		}

		c.logger.Info("[events] rebalancing occurred, waiting for new messages")
	}
}

// Stop closes the consumer group, unblocking Start.
func (c *Consumer) Stop() error {
	if err := c.consumerGroup.Close(); err != nil {
		return errx.Wrap(err)
	}
	return nil
}

// Setup implements sarama.ConsumerGroupHandler contract.
func (c *Consumer) Setup(_ sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler contract.
func (c *Consumer) Cleanup(_ sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	// NOTE:
	// Do not move the code below to a goroutine.
	// The `ConsumeClaim` itself is called within a goroutine,
	// https://github.com/IBM/sarama/blob/main/consumer_group.go#L27-L29
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				// The channel is closed, exit the loop
				return nil
			}

			chain := c.buildHandlerChain()

			// ignore the error and move on to the next message
			// as the error is already handled in the handler chain
			_ = chain(context.Background(), message)

			session.MarkMessage(message, "")

		// Should return when `session.Context()` is done
		// if not, will raise `ErrRebalanceInProgress` or `read tcp <ip>:<port>: i/o timeout` when kafka rebalance
		// https://github.com/IBM/sarama/issues/1192
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) buildHandlerChain() handleMsgFunc {
	// start with the core business logic handler
	handler := c.handleDecoded

	// build the chain in reverse order (last wrapper first)
	handler = c.handlerWithErrorHandling(handler) // 5. error handling
	handler = c.handlerWithLogging(handler)       // 4. logging
	handler = c.handlerWithTimeout(handler)       // 3. timeout
	handler = c.handlerWithTracing(handler)       // 2. tracing
	handler = c.handlerWithRecovery(handler)      // 1. recovery (outermost)

	return handler
}

// handleDecoded converts the raw message into an IncomingEvent and
// hands it to the injected handler.
func (c *Consumer) handleDecoded(ctx context.Context, msg *sarama.ConsumerMessage) error {
	headers := lo.SliceToMap(msg.Headers, func(h *sarama.RecordHeader) (string, string) {
		return string(h.Key), string(h.Value)
	})

	return c.handleFn(ctx, IncomingEvent{
		Topic:         msg.Topic,
		AggregateType: headers["aggregate_type"],
		AggregateID:   headers["aggregate_id"],
		EventType:     headers["event_type"],
		EventVersion:  headers["event_version"],
		TraceID:       headers["trace_id"],
		Payload:       msg.Value,
	})
}
