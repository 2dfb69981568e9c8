// Package repo provides a generic aggregate repository over PostgreSQL.
//
// It ties the metadata registry, the change planner, the executor and
// the loader together behind one interface: saves and deletes are
// planned first, then executed atomically inside a transaction; reads
// reconstruct whole aggregates from their rows. Domain events exposed
// by the aggregate are stored into the transactional outbox within the
// same transaction.
package repo

import (
	"context"

	"github.com/rise-and-shine/aggregate/pagination"
	"github.com/rise-and-shine/aggregate/sorter"
)

// AggregateRepo defines persistence for aggregates of root type E with
// filter type F. All write operations are atomic over the whole
// aggregate tree.
type AggregateRepo[E any, F any] interface {
	// FindByID loads the full aggregate identified by id.
	FindByID(ctx context.Context, id any) (*E, error)
	// List loads one page of full aggregates matching the filters.
	List(ctx context.Context, filters F, page pagination.Request, sort sorter.SortOpts) (pagination.Response[E], error)
	// Count returns the number of aggregates matching the filters.
	Count(ctx context.Context, filters F) (int, error)
	// Exists checks whether any aggregate matches the filters.
	Exists(ctx context.Context, filters F) (bool, error)
	// FirstOrNil loads the first aggregate matching the filters, or
	// nil when none does.
	FirstOrNil(ctx context.Context, filters F) (*E, error)

	// Save persists root: inserted when its identifier is zero,
	// otherwise updated with all nested rows rewritten.
	Save(ctx context.Context, root *E) error
	// Delete removes root and every row reachable from it.
	Delete(ctx context.Context, root *E) error
	// DeleteByID removes the aggregate identified by id without
	// loading it first.
	DeleteByID(ctx context.Context, id any) error
}
