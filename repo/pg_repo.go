package repo

import (
	"context"
	"fmt"

	"github.com/code19m/errx"
	"github.com/spf13/cast"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rise-and-shine/aggregate/exec"
	"github.com/rise-and-shine/aggregate/meta"
	"github.com/rise-and-shine/aggregate/outbox"
	"github.com/rise-and-shine/aggregate/pagination"
	"github.com/rise-and-shine/aggregate/pg"
	"github.com/rise-and-shine/aggregate/plan"
	"github.com/rise-and-shine/aggregate/schema"
	"github.com/rise-and-shine/aggregate/sorter"
	"github.com/rise-and-shine/aggregate/val"
)

const tracerName = "github.com/rise-and-shine/aggregate/repo"

// PgAggregateRepo is the PostgreSQL implementation of AggregateRepo.
// Build one per aggregate root type with NewPgAggregateRepoBuilder.
type PgAggregateRepo[E any, F any] struct {
	db      *bun.DB
	reg     *schema.Registry
	planner *plan.Planner

	entity       *schema.Entity
	notFoundCode string
	validate     bool
	maxPageSize  int

	// conflictCodesMap maps PostgreSQL constraint names to error codes,
	// e.g. map["orders_ref_key"] = "ORDER_REF_ALREADY_EXISTS".
	conflictCodesMap map[string]string
	filterFunc       func(q *bun.SelectQuery, filters F) *bun.SelectQuery

	outboxRepo outbox.Repository
	tracer     trace.Tracer
}

// PgAggregateRepoBuilder assembles a PgAggregateRepo with sensible defaults.
type PgAggregateRepoBuilder[E any, F any] struct {
	db               *bun.DB
	reg              *schema.Registry
	notFoundCode     string
	validate         bool
	maxPageSize      int
	conflictCodesMap map[string]string
	filterFunc       func(q *bun.SelectQuery, filters F) *bun.SelectQuery
	outboxRepo       outbox.Repository
}

// NewPgAggregateRepoBuilder creates a builder with sensible defaults.
func NewPgAggregateRepoBuilder[E any, F any](db *bun.DB, reg *schema.Registry) *PgAggregateRepoBuilder[E, F] {
	return &PgAggregateRepoBuilder[E, F]{
		db:           db,
		reg:          reg,
		notFoundCode: "OBJECT_NOT_FOUND",
		filterFunc:   func(q *bun.SelectQuery, _ F) *bun.SelectQuery { return q },
	}
}

// WithNotFoundCode sets the error code for missing aggregates.
func (b *PgAggregateRepoBuilder[E, F]) WithNotFoundCode(code string) *PgAggregateRepoBuilder[E, F] {
	b.notFoundCode = code
	return b
}

// WithValidation enables `validate` tag checks on every Save.
func (b *PgAggregateRepoBuilder[E, F]) WithValidation() *PgAggregateRepoBuilder[E, F] {
	b.validate = true
	return b
}

// WithMaxPageSize caps the page size accepted by List.
func (b *PgAggregateRepoBuilder[E, F]) WithMaxPageSize(size int) *PgAggregateRepoBuilder[E, F] {
	b.maxPageSize = size
	return b
}

// WithConflictCodes maps PostgreSQL constraint names to error codes.
func (b *PgAggregateRepoBuilder[E, F]) WithConflictCodes(codes map[string]string) *PgAggregateRepoBuilder[E, F] {
	b.conflictCodesMap = codes
	return b
}

// WithFilterFunc sets the filter function applied to root-table selects.
func (b *PgAggregateRepoBuilder[E, F]) WithFilterFunc(
	fn func(q *bun.SelectQuery, filters F) *bun.SelectQuery,
) *PgAggregateRepoBuilder[E, F] {
	b.filterFunc = fn
	return b
}

// WithOutbox stores events of aggregates implementing outbox.EventSource
// into the given outbox repository, inside the save transaction.
func (b *PgAggregateRepoBuilder[E, F]) WithOutbox(repo outbox.Repository) *PgAggregateRepoBuilder[E, F] {
	b.outboxRepo = repo
	return b
}

// Build registers the root type and creates the repository.
func (b *PgAggregateRepoBuilder[E, F]) Build() (*PgAggregateRepo[E, F], error) {
	if err := b.reg.Register((*E)(nil)); err != nil {
		return nil, err
	}
	entity, err := b.reg.EntityOf((*E)(nil))
	if err != nil {
		return nil, err
	}

	return &PgAggregateRepo[E, F]{
		db:               b.db,
		reg:              b.reg,
		planner:          plan.New(b.reg),
		entity:           entity,
		notFoundCode:     b.notFoundCode,
		validate:         b.validate,
		maxPageSize:      b.maxPageSize,
		conflictCodesMap: b.conflictCodesMap,
		filterFunc:       b.filterFunc,
		outboxRepo:       b.outboxRepo,
		tracer:           otel.Tracer(tracerName),
	}, nil
}

func (r *PgAggregateRepo[E, F]) FindByID(ctx context.Context, id any) (*E, error) {
	ctx, span := r.startSpan(ctx, "find_by_id", id)
	defer span.End()

	dest := new(E)
	err := exec.NewLoader(r.db, r.reg).Load(ctx, dest, id)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, errx.New(
				fmt.Sprintf("no %s found", r.entity.Name()),
				errx.WithCode(r.notFoundCode),
				errx.WithDetails(errx.D{"id": cast.ToString(id)}),
			)
		}
		return nil, err
	}
	return dest, nil
}

func (r *PgAggregateRepo[E, F]) List(
	ctx context.Context,
	filters F,
	page pagination.Request,
	sort sorter.SortOpts,
) (pagination.Response[E], error) {
	ctx, span := r.startSpan(ctx, "list", nil)
	defer span.End()

	var zero pagination.Response[E]

	total, err := r.Count(ctx, filters)
	if err != nil {
		return zero, err
	}

	r.normalize(&page)
	q := r.rootSelect(filters)
	for _, opt := range sort {
		q = q.Order(opt.ToSQL())
	}
	q = q.Offset(page.Offset()).Limit(page.Limit())

	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil {
		return zero, errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
	}

	loader := exec.NewLoader(r.db, r.reg)
	items := make([]E, 0, len(rows))
	for _, row := range rows {
		dest := new(E)
		if err := loader.Load(ctx, dest, row[r.entity.ID.Column]); err != nil {
			return zero, err
		}
		items = append(items, *dest)
	}

	return pagination.NewResponse(items, int64(total), page), nil
}

func (r *PgAggregateRepo[E, F]) Count(ctx context.Context, filters F) (int, error) {
	q := r.rootSelect(filters)
	count, err := q.Count(ctx)
	if err != nil {
		return 0, errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
	}
	return count, nil
}

func (r *PgAggregateRepo[E, F]) Exists(ctx context.Context, filters F) (bool, error) {
	q := r.rootSelect(filters)
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
	}
	return exists, nil
}

// FirstOrNil returns the first matching aggregate or nil when none
// matches. Unlike FindByID it never maps absence to an error code.
func (r *PgAggregateRepo[E, F]) FirstOrNil(ctx context.Context, filters F) (*E, error) {
	ctx, span := r.startSpan(ctx, "first_or_nil", nil)
	defer span.End()

	var rows []map[string]any
	q := r.rootSelect(filters).Limit(1)
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
	}
	if len(rows) == 0 {
		return nil, nil
	}

	dest := new(E)
	if err := exec.NewLoader(r.db, r.reg).Load(ctx, dest, rows[0][r.entity.ID.Column]); err != nil {
		return nil, err
	}
	return dest, nil
}

func (r *PgAggregateRepo[E, F]) Save(ctx context.Context, root *E) error {
	if r.validate {
		if err := val.Struct(root); err != nil {
			return err
		}
	}

	change, err := r.planner.Save(root)
	if err != nil {
		return err
	}

	return r.execute(ctx, "save", root, change)
}

func (r *PgAggregateRepo[E, F]) Delete(ctx context.Context, root *E) error {
	change, err := r.planner.Delete(root)
	if err != nil {
		return err
	}
	return r.execute(ctx, "delete", root, change)
}

func (r *PgAggregateRepo[E, F]) DeleteByID(ctx context.Context, id any) error {
	change, err := r.planner.DeleteByID((*E)(nil), id)
	if err != nil {
		return err
	}

	ctx, span := r.startSpan(ctx, "delete_by_id", id)
	defer span.End()

	return r.runChange(ctx, change, nil)
}

// execute runs change in a transaction, draining the aggregate's
// pending events into the outbox when one is configured.
func (r *PgAggregateRepo[E, F]) execute(ctx context.Context, operation string, root *E, change *plan.Change) error {
	ctx = meta.InjectMetaToContext(ctx, map[meta.ContextKey]string{
		meta.Operation:     operation,
		meta.AggregateType: r.entity.Name(),
	})

	ctx, span := r.startSpan(ctx, operation, nil)
	defer span.End()
	span.SetAttributes(attribute.Int("aggregate.actions", change.Len()))

	var events []outbox.Event
	if src, ok := any(root).(outbox.EventSource); ok && r.outboxRepo != nil {
		events = src.Events()
	}

	return r.runChange(ctx, change, events)
}

func (r *PgAggregateRepo[E, F]) runChange(ctx context.Context, change *plan.Change, events []outbox.Event) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := exec.New(tx, r.reg).Execute(ctx, change); err != nil {
			return err
		}
		for _, event := range events {
			if err := r.outboxRepo.Store(ctx, tx, r.entity.Name(), event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if code, exists := r.conflictCodesMap[pg.ConstraintName(err)]; exists {
			return errx.New(
				fmt.Sprintf("conflict while saving %s", r.entity.Name()),
				errx.WithCode(code),
				errx.WithDetails(pg.GetPgErrorDetails(err, nil)),
			)
		}
		return errx.Wrap(err)
	}
	return nil
}

func (r *PgAggregateRepo[E, F]) rootSelect(filters F) *bun.SelectQuery {
	q := r.db.NewSelect().
		Table(r.entity.Table).
		Column(r.entity.ID.Column)
	return r.filterFunc(q, filters)
}

func (r *PgAggregateRepo[E, F]) normalize(page *pagination.Request) {
	if r.maxPageSize > 0 {
		page.Normalize(pagination.WithMaxPageSize(r.maxPageSize))
		return
	}
	page.Normalize()
}

func (r *PgAggregateRepo[E, F]) startSpan(ctx context.Context, operation string, id any) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("aggregate.type", r.entity.Name()),
		attribute.String("aggregate.operation", operation),
	}
	if id != nil {
		attrs = append(attrs, attribute.String("aggregate.id", cast.ToString(id)))
	}
	return r.tracer.Start(ctx, "repo."+operation, trace.WithAttributes(attrs...))
}
