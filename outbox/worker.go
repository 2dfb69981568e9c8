package outbox

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/code19m/errx"
	"github.com/samber/lo"

	"github.com/rise-and-shine/aggregate/logger"
)

// WorkerConfig configures the outbox polling worker.
type WorkerConfig struct {
	// ServiceName is used as the Kafka client id.
	ServiceName string `yaml:"service_name" validate:"required"`
	// Brokers is a comma-separated list of Kafka broker addresses.
	Brokers string `yaml:"brokers"      validate:"required"`

	// PollInterval is the pause between polls when no entries are pending.
	PollInterval time.Duration `yaml:"poll_interval"  default:"500ms"`
	// BatchSize bounds how many entries one poll drains.
	BatchSize int `yaml:"batch_size"     default:"100"`
	// Retention is how long published entries are kept before cleanup.
	Retention time.Duration `yaml:"retention"      default:"24h"`
}

// Worker polls pending outbox entries and publishes them to Kafka.
// Run one worker per service; entries are drained oldest first and a
// failed entry is marked instead of blocking the batch.
type Worker struct {
	cfg       WorkerConfig
	repo      Repository
	publisher Publisher
	log       logger.Logger

	stop chan struct{}
	done chan struct{}
}

// NewWorker creates an outbox worker over the given repository.
func NewWorker(cfg WorkerConfig, repo Repository, publisher Publisher, log logger.Logger) *Worker {
	return &Worker{
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
		log:       log.Named("outbox_worker"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called or ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	cleanupTicker := time.NewTicker(w.cfg.Retention)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-cleanupTicker.C:
			if err := w.repo.DeletePublished(ctx, w.cfg.Retention); err != nil {
				w.log.Errorx(err)
			}
		default:
		}

		drained, err := w.drainOnce(ctx)
		if err != nil {
			w.log.Errorx(err)
		}
		if !drained {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-time.After(w.cfg.PollInterval):
			}
		}
	}
}

// Stop terminates the poll loop and closes the publisher.
func (w *Worker) Stop() error {
	close(w.stop)
	<-w.done
	return errx.Wrap(w.publisher.Close())
}

// drainOnce publishes one batch of pending entries. It reports whether
// a full batch was drained, meaning more entries are likely waiting.
func (w *Worker) drainOnce(ctx context.Context) (bool, error) {
	entries, err := w.repo.GetPending(ctx, w.cfg.BatchSize)
	if err != nil {
		return false, errx.Wrap(err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	for _, entry := range entries {
		if err := w.publishEntry(entry); err != nil {
			w.log.With("entry_id", entry.ID, "topic", entry.Topic).Errorx(err)
			if markErr := w.repo.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
				return false, errx.Wrap(markErr)
			}
			continue
		}
		if err := w.repo.MarkPublished(ctx, entry.ID); err != nil {
			return false, errx.Wrap(err)
		}
	}

	return len(entries) == w.cfg.BatchSize, nil
}

func (w *Worker) publishEntry(entry *Entry) error {
	msg := message.NewMessage(entry.ID.String(), entry.EventData)

	metadata := map[string]string{
		"aggregate_type": entry.AggregateType,
		"aggregate_id":   entry.AggregateID,
		"event_type":     entry.EventType,
		"event_version":  entry.EventVersion,
		"trace_id":       entry.TraceID,
	}
	for k, v := range lo.OmitByValues(metadata, []string{""}) {
		msg.Metadata.Set(k, v)
	}

	return errx.Wrap(w.publisher.Publish(entry.Topic, msg))
}
