// Package outbox_test contains tests for the outbox package.
package outbox_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rise-and-shine/aggregate/outbox"
)

func TestNewEvent(t *testing.T) {
	event := outbox.NewEvent("order.placed", "ord-1", "orders.events", map[string]any{"total": 10})

	assert.Equal(t, "order.placed", event.EventType())
	assert.Equal(t, "ord-1", event.AggregateID())
	assert.Equal(t, "orders.events", event.Topic())
	assert.Equal(t, "v1", event.EventVersion())
	assert.Equal(t, map[string]any{"total": 10}, event.EventData())
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
}

func TestBaseEvent_VersionDefault(t *testing.T) {
	assert.Equal(t, "v1", outbox.BaseEvent{}.EventVersion())
	assert.Equal(t, "v2", outbox.BaseEvent{Version: "v2"}.EventVersion())
}

// testDB opens a lazily-connected bun.DB; no queries are executed, it
// only exists so query models can be built.
func testDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("pgx", "postgres://localhost:5432/outbox_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	return bun.NewDB(sqldb, pgdialect.New())
}

func TestEntry_BeforeAppendModel(t *testing.T) {
	db := testDB(t)

	entry := &outbox.Entry{
		AggregateType: "Order",
		AggregateID:   "ord-1",
		EventType:     "order.placed",
		EventData:     []byte(`{}`),
		Topic:         "orders.events",
	}

	query := db.NewInsert().Model(entry)
	require.NoError(t, entry.BeforeAppendModel(context.Background(), query))

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, outbox.StatusPending, entry.Status)
}

func TestEntry_BeforeAppendModel_KeepsAssignedValues(t *testing.T) {
	db := testDB(t)

	id := uuid.New()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := &outbox.Entry{
		ID:        id,
		Status:    outbox.StatusFailed,
		CreatedAt: created,
	}

	require.NoError(t, entry.BeforeAppendModel(context.Background(), db.NewInsert().Model(entry)))

	assert.Equal(t, id, entry.ID)
	assert.Equal(t, created, entry.CreatedAt)
	assert.Equal(t, outbox.StatusFailed, entry.Status)
}

func TestEntry_BeforeAppendModel_IgnoresNonInsert(t *testing.T) {
	db := testDB(t)

	entry := &outbox.Entry{}
	require.NoError(t, entry.BeforeAppendModel(context.Background(), db.NewUpdate().Model(entry)))

	assert.Equal(t, uuid.Nil, entry.ID)
}
