// Package exec executes planned aggregate changes against PostgreSQL
// through bun. Actions run strictly in plan order; the first failure
// aborts the run and is surfaced to the caller. Transaction demarcation
// and rollback belong to the caller (see repo), not to the executor.
package exec

import (
	"context"
	"fmt"
	"reflect"

	"github.com/code19m/errx"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/rise-and-shine/aggregate/pg"
	"github.com/rise-and-shine/aggregate/plan"
	"github.com/rise-and-shine/aggregate/schema"
)

const codeIncorrectRowsAffection = "INCORRECT_ROWS_AFFECTION"

// Executor runs one Change at a time against a bun.IDB. Hand it the
// transaction from RunInTx to make the whole change atomic.
type Executor struct {
	idb bun.IDB
	reg *schema.Registry
}

// New creates an Executor bound to idb (a *bun.DB or a bun.Tx).
func New(idb bun.IDB, reg *schema.Registry) *Executor {
	return &Executor{idb: idb, reg: reg}
}

// Execute runs every action of change in order. Generated identifiers
// are written back into the aggregate as soon as their insert returns,
// so later actions can resolve their reverse-column values from the
// in-memory graph.
func (e *Executor) Execute(ctx context.Context, change *plan.Change) error {
	ids := make(map[plan.Action]any)

	for _, action := range change.Actions() {
		var err error
		switch a := action.(type) {
		case *plan.InsertRoot:
			err = e.insertRow(ctx, a.Entity, a.Value, rowExtras{}, ids, a)
		case *plan.UpdateRoot:
			err = e.updateRoot(ctx, a, ids)
		case *plan.Insert:
			err = e.insertNested(ctx, a, ids)
		case *plan.Delete:
			err = e.deletePath(ctx, a)
		case *plan.DeleteRoot:
			err = e.deleteRoot(ctx, a)
		}
		if err != nil {
			return errx.Wrap(err, errx.WithDetails(errx.D{"action": action.String()}))
		}
	}
	return nil
}

// rowExtras carries the reverse-column and key-column values attached
// to child rows on top of their mapped columns.
type rowExtras struct {
	columns map[string]any
}

func (x *rowExtras) set(column string, value any) {
	if x.columns == nil {
		x.columns = map[string]any{}
	}
	x.columns[column] = value
}

func (e *Executor) insertRow(
	ctx context.Context,
	entity *schema.Entity,
	value reflect.Value,
	extras rowExtras,
	ids map[plan.Action]any,
	action plan.Action,
) error {
	if entity.ID != nil && entity.ID.GenUUID && entity.ID.IsZero(value) {
		if err := assignUUID(entity.ID, value); err != nil {
			return err
		}
	}

	row, err := rowValues(e.reg, entity, value)
	if err != nil {
		return err
	}
	for col, v := range extras.columns {
		row[col] = v
	}

	table := entity.Table
	if ins, ok := action.(*plan.Insert); ok {
		table = ins.Path.Table()
	}

	q := e.idb.NewInsert().Model(&row).Table(table)

	if entity.ID != nil && entity.ID.AutoIncrement {
		generated := reflect.New(entity.ID.Type())
		q = q.Returning("?", bun.Ident(entity.ID.Column))
		if _, err := q.Exec(ctx, generated.Interface()); err != nil {
			return errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
		}
		entity.ID.Set(value, generated.Elem())
	} else {
		if _, err := q.Exec(ctx); err != nil {
			return errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
		}
	}

	ids[action] = entity.IDValue(value)
	return nil
}

func (e *Executor) insertNested(ctx context.Context, a *plan.Insert, ids map[plan.Action]any) error {
	extras := rowExtras{}
	extras.set(a.Path.ReverseColumn(), ids[a.DependsOn])

	if keyCol := a.Path.KeyColumn(); keyCol != "" {
		switch key := a.Key.(type) {
		case plan.Index:
			extras.set(keyCol, int(key))
		case plan.MapKey:
			extras.set(keyCol, key.Value)
		}
	}

	entity := a.Path.Entity()
	if entity == nil {
		// Containers of simple values: one value column per row.
		row := map[string]any{elementValueColumn: a.Value.Interface()}
		for col, v := range extras.columns {
			row[col] = v
		}
		q := e.idb.NewInsert().Model(&row).Table(a.Path.Table())
		if _, err := q.Exec(ctx); err != nil {
			return errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
		}
		return nil
	}

	if err := e.insertRow(ctx, entity, a.Value, extras, ids, a); err != nil {
		return err
	}
	a.WriteBack()
	return nil
}

func (e *Executor) updateRoot(ctx context.Context, a *plan.UpdateRoot, ids map[plan.Action]any) error {
	row, err := rowValues(e.reg, a.Entity, a.Value)
	if err != nil {
		return err
	}
	id := a.Entity.IDValue(a.Value)
	delete(row, a.Entity.ID.Column)

	q := e.idb.NewUpdate().
		Model(&row).
		Table(a.Entity.Table).
		Where("? = ?", bun.Ident(a.Entity.ID.Column), id)

	result, err := q.Exec(ctx)
	if err != nil {
		return errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err)
	}
	if affected == 0 {
		return errx.New(
			fmt.Sprintf("no %s row found to update", a.Entity.Name()),
			errx.WithCode(codeIncorrectRowsAffection),
		)
	}

	ids[a] = id
	return nil
}

// deletePath removes every row stored under a.Path for the aggregate
// identified by a.RootID. Paths anchored below the root are narrowed
// with nested id subqueries along the reverse-column chain.
func (e *Executor) deletePath(ctx context.Context, a *plan.Delete) error {
	q := e.idb.NewDelete().Table(a.Path.Table())
	q = e.scopeToRoot(q, a.Path, a.RootID)

	if _, err := q.Exec(ctx); err != nil {
		return errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
	}
	return nil
}

func (e *Executor) deleteRoot(ctx context.Context, a *plan.DeleteRoot) error {
	q := e.idb.NewDelete().
		Table(a.Entity.Table).
		Where("? = ?", bun.Ident(a.Entity.ID.Column), a.ID)

	result, err := q.Exec(ctx)
	if err != nil {
		return errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err)
	}
	if affected == 0 {
		return errx.New(
			fmt.Sprintf("no %s row found to delete", a.Entity.Name()),
			errx.WithCode(codeIncorrectRowsAffection),
		)
	}
	return nil
}

// scopeToRoot adds WHERE conditions narrowing rows at path to the
// aggregate identified by rootID.
func (e *Executor) scopeToRoot(q *bun.DeleteQuery, path schema.Path, rootID any) *bun.DeleteQuery {
	parent := path.IDDefiningParent()
	if parent.IsRoot() {
		return q.Where("? = ?", bun.Ident(path.ReverseColumn()), rootID)
	}
	return q.Where("? IN (?)", bun.Ident(path.ReverseColumn()), e.selectParentIDs(parent, rootID))
}

func (e *Executor) selectParentIDs(path schema.Path, rootID any) *bun.SelectQuery {
	q := e.idb.NewSelect().
		Table(path.Table()).
		Column(path.Entity().ID.Column)

	parent := path.IDDefiningParent()
	if parent.IsRoot() {
		return q.Where("? = ?", bun.Ident(path.ReverseColumn()), rootID)
	}
	return q.Where("? IN (?)", bun.Ident(path.ReverseColumn()), e.selectParentIDs(parent, rootID))
}

// assignUUID fills an application-assigned uuid identifier, accepting
// string and uuid.UUID shaped id fields.
func assignUUID(prop *schema.Property, owner reflect.Value) error {
	id := uuid.New()

	t := prop.Type()
	switch {
	case t.Kind() == reflect.String:
		prop.Set(owner, reflect.ValueOf(id.String()))
	case t == reflect.TypeOf(uuid.UUID{}):
		prop.Set(owner, reflect.ValueOf(id))
	default:
		return errx.New(
			fmt.Sprintf("genuuid identifier must be a string or uuid.UUID, got %s", t),
			errx.WithCode(schema.CodeInvalidSchema),
		)
	}
	return nil
}
