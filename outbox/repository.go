package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/code19m/errx"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/rise-and-shine/aggregate/tracing"
)

// Repository stores and drains outbox entries.
type Repository interface {
	// Store writes one event within the given transaction. The idb must
	// be a bun.Tx so the entry commits or rolls back with the aggregate.
	Store(ctx context.Context, idb bun.IDB, aggregateType string, event Event) error

	// GetPending returns up to limit unpublished entries, oldest first.
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	// MarkPublished flags an entry as successfully published.
	MarkPublished(ctx context.Context, id uuid.UUID) error
	// MarkFailed records a failed publication attempt.
	MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error

	// DeletePublished removes published entries older than the retention window.
	DeletePublished(ctx context.Context, olderThan time.Duration) error
}

type repository struct {
	db *bun.DB
}

// NewRepository creates an outbox repository over db. Store calls run
// on the transaction they are given, the maintenance methods on db.
func NewRepository(db *bun.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Store(ctx context.Context, idb bun.IDB, aggregateType string, event Event) error {
	if _, ok := idb.(bun.Tx); !ok {
		return errx.New("outbox entries must be stored within a bun.Tx")
	}

	data, err := json.Marshal(event.EventData())
	if err != nil {
		return errx.Wrap(err)
	}

	entry := &Entry{
		AggregateType: aggregateType,
		AggregateID:   event.AggregateID(),
		EventType:     event.EventType(),
		EventVersion:  event.EventVersion(),
		EventData:     data,
		Topic:         event.Topic(),
		TraceID:       tracing.GetStartingTraceID(ctx),
	}

	_, err = idb.NewInsert().Model(entry).Exec(ctx)
	return errx.Wrap(err)
}

func (r *repository) GetPending(ctx context.Context, limit int) ([]*Entry, error) {
	var entries []*Entry
	err := r.db.NewSelect().
		Model(&entries).
		Where("status = ?", StatusPending).
		OrderExpr("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, errx.Wrap(err)
	}
	return entries, nil
}

func (r *repository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*Entry)(nil)).
		Set("status = ?", StatusPublished).
		Set("published_at = ?", now).
		Set("attempts = attempts + 1").
		Where("id = ?", id).
		Exec(ctx)
	return errx.Wrap(err)
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error {
	_, err := r.db.NewUpdate().
		Model((*Entry)(nil)).
		Set("status = ?", StatusFailed).
		Set("attempts = attempts + 1").
		Set("error_message = ?", errorMsg).
		Where("id = ?", id).
		Exec(ctx)
	return errx.Wrap(err)
}

func (r *repository) DeletePublished(ctx context.Context, olderThan time.Duration) error {
	_, err := r.db.NewDelete().
		Model((*Entry)(nil)).
		Where("status = ?", StatusPublished).
		Where("published_at < ?", time.Now().Add(-olderThan)).
		Exec(ctx)
	return errx.Wrap(err)
}
