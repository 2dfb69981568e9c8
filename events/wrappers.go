package events

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/IBM/sarama"
	"github.com/code19m/errx"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/rise-and-shine/aggregate/meta"
)

// handlerWithRecovery is a wrapper around the handler to add recovery support.
func (c *Consumer) handlerWithRecovery(next handleMsgFunc) handleMsgFunc {
	return func(ctx context.Context, msg *sarama.ConsumerMessage) (err error) {
		defer func() {
			if r := recover(); r != nil {
				stackTrace := make([]byte, 4096) // 4KB
				stackTrace = stackTrace[:runtime.Stack(stackTrace, false)]

				c.logger.
					Named("recovery").
					WithContext(ctx).
					With("stack_trace", string(stackTrace)).
					With("panic_values", fmt.Sprintf("%v", r)).
					Error("panic recovered in recovery handler")

				err = errx.New("panic recovered in recovery handler", errx.WithDetails(errx.D{
					"stack_trace":  string(stackTrace),
					"panic_values": fmt.Sprintf("%v", r),
				}))
			}
		}()
		return next(ctx, msg)
	}
}

// handlerWithTracing starts a consumer span and injects the carried
// trace id into the context metadata.
func (c *Consumer) handlerWithTracing(next handleMsgFunc) handleMsgFunc {
	return func(ctx context.Context, msg *sarama.ConsumerMessage) (err error) {
		ctx, span := otel.Tracer("").Start(ctx, fmt.Sprintf("events.%s.consume", msg.Topic),
			trace.WithAttributes(
				semconv.MessagingSystem("kafka"),
				semconv.MessagingKafkaConsumerGroup(c.cfg.GroupID),
				semconv.MessagingOperationProcess,
				semconv.MessagingMessageID(string(msg.Key)),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)

		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := c.traceIDOf(msg)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx = meta.InjectMetaToContext(ctx, map[meta.ContextKey]string{
			meta.TraceID: traceID,
		})

		return next(ctx, msg)
	}
}

// handlerWithTimeout is a wrapper around the handler to add timeout support.
func (c *Consumer) handlerWithTimeout(next handleMsgFunc) handleMsgFunc {
	return func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.HandlerTimeout)
		defer cancel()
		return next(ctx, msg)
	}
}

// handlerWithLogging is a wrapper around the handler to add access logging.
func (c *Consumer) handlerWithLogging(next handleMsgFunc) handleMsgFunc {
	return func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		log := c.logger.Named("access_logger").WithContext(ctx)

		start := time.Now()
		err := next(ctx, msg)
		duration := time.Since(start)

		headers := lo.SliceToMap(msg.Headers, func(h *sarama.RecordHeader) (string, string) {
			return string(h.Key), string(h.Value)
		})

		log = log.With(
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"duration", duration.String(),
			"headers", headers,
		)

		logMsg := "consumed incoming aggregate event"
		if err != nil {
			log.With("error", getErrObject(err)).Error(logMsg)
			return err
		}
		log.Info(logMsg)

		return nil
	}
}

// handlerWithErrorHandling normalizes every handler error as internal.
// TODO: route permanently failing messages to a dead letter topic
func (c *Consumer) handlerWithErrorHandling(next handleMsgFunc) handleMsgFunc {
	return func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		return errx.Wrap(next(ctx, msg), errx.WithType(errx.T_Internal))
	}
}

func (c *Consumer) traceIDOf(msg *sarama.ConsumerMessage) string {
	for _, h := range msg.Headers {
		if string(h.Key) == "trace_id" {
			return string(h.Value)
		}
	}
	return ""
}

func getErrObject(err error) any {
	e := errx.AsErrorX(err)
	return map[string]any{
		"code":    e.Code(),
		"message": e.Error(),
		"type":    e.Type().String(),
		"trace":   e.Trace(),
		"fields":  e.Fields(),
		"details": e.Details(),
	}
}
