package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Status tracks the publication lifecycle of an outbox entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// Entry is one stored aggregate event awaiting publication.
type Entry struct {
	bun.BaseModel `bun:"table:aggregate_outbox,alias:ob"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid"`
	AggregateType string     `bun:"aggregate_type,notnull"`
	AggregateID   string     `bun:"aggregate_id,notnull"`
	EventType     string     `bun:"event_type,notnull"`
	EventVersion  string     `bun:"event_version,notnull"`
	EventData     []byte     `bun:"event_data,type:jsonb,notnull"`
	Topic         string     `bun:"topic,notnull"`
	TraceID       string     `bun:"trace_id"`
	Status        Status     `bun:"status,notnull,default:'pending'"`
	Attempts      int        `bun:"attempts,notnull,default:0"`
	ErrorMessage  *string    `bun:"error_message"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	PublishedAt   *time.Time `bun:"published_at,nullzero"`
}

var _ bun.BeforeAppendModelHook = (*Entry)(nil)

// BeforeAppendModel assigns the entry id and creation timestamp on insert.
func (e *Entry) BeforeAppendModel(_ context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		if e.Status == "" {
			e.Status = StatusPending
		}
	}
	return nil
}

// Migration is the DDL for the outbox table, intended to be applied by
// the application's migration tooling.
const Migration = `
CREATE TABLE IF NOT EXISTS aggregate_outbox (
    id             uuid PRIMARY KEY,
    aggregate_type text        NOT NULL,
    aggregate_id   text        NOT NULL,
    event_type     text        NOT NULL,
    event_version  text        NOT NULL,
    event_data     jsonb       NOT NULL,
    topic          text        NOT NULL,
    trace_id       text,
    status         text        NOT NULL DEFAULT 'pending',
    attempts       int         NOT NULL DEFAULT 0,
    error_message  text,
    created_at     timestamptz NOT NULL DEFAULT current_timestamp,
    published_at   timestamptz
);

CREATE INDEX IF NOT EXISTS aggregate_outbox_pending_idx
    ON aggregate_outbox (created_at)
    WHERE status = 'pending';
`
