// Package pg provides the PostgreSQL access layer for aggregate
// persistence: connection pooling, Bun database construction with
// query hooks, and helpers for decoding PostgreSQL errors into errx
// details. It integrates with OpenTelemetry for observability.
package pg

import (
	"github.com/code19m/errx"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/extra/bunotel"

	"github.com/rise-and-shine/aggregate/pg/hooks"
)

// NewBunDB creates a new Bun database connection with the provided configuration.
func NewBunDB(cfg Config) (*bun.DB, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, errx.Wrap(err)
	}

	sqldb := stdlib.OpenDBFromPool(pool)

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	applyHooks(bunDB, cfg.Debug)

	return bunDB, nil
}

// applyHooks attaches the statement-logging hook (active only when
// debug is set) and the always-on OpenTelemetry hook. Every statement
// an executed aggregate change issues passes through both.
func applyHooks(db *bun.DB, debug bool) {
	db.AddQueryHook(
		hooks.NewDebugHook(
			hooks.WithEnabled(debug),
			hooks.WithVerbose(true),
		),
	)

	db.AddQueryHook(bunotel.NewQueryHook())
}
