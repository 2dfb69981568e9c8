package exec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/code19m/errx"
	"github.com/spf13/cast"
	"github.com/uptrace/bun"

	"github.com/rise-and-shine/aggregate/pg"
	"github.com/rise-and-shine/aggregate/schema"
)

// Loader reconstructs aggregates from their rows. It is the read-side
// counterpart of Executor: one query for the root, one query per
// row-producing path level, children scoped by their reverse column and
// ordered by their key column.
type Loader struct {
	idb bun.IDB
	reg *schema.Registry
}

// NewLoader creates a Loader bound to idb (a *bun.DB or a bun.Tx).
func NewLoader(idb bun.IDB, reg *schema.Registry) *Loader {
	return &Loader{idb: idb, reg: reg}
}

// Load fetches the aggregate identified by id into dest, which must be
// a non-nil pointer to a registered root struct. A missing root
// surfaces as sql.ErrNoRows (check with pg.IsNotFound).
func (l *Loader) Load(ctx context.Context, dest any, id any) error {
	root, err := l.reg.RootPath(dest)
	if err != nil {
		return err
	}

	target := reflect.ValueOf(dest)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return errx.New(
			fmt.Sprintf("load destination must be a non-nil pointer, got %T", dest),
			errx.WithCode(schema.CodeInvalidSchema),
		)
	}
	target = target.Elem()

	entity := root.RootEntity()
	row := map[string]any{}
	q := l.idb.NewSelect().
		Table(entity.Table).
		Where("? = ?", bun.Ident(entity.ID.Column), id).
		Limit(1)
	if err := q.Scan(ctx, &row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// surfaced as-is so callers can map it to a not-found code
			return err
		}
		return errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
	}

	if err := l.fillEntity(entity, target, row, ""); err != nil {
		return err
	}
	return l.loadChildren(ctx, root, target, entity.IDValue(target))
}

// loadChildren populates the nested properties under parentPath.
// Embedded children were already filled from the parent's row; only
// their row-producing descendants still need queries, anchored at the
// same parent id.
func (l *Loader) loadChildren(ctx context.Context, parentPath schema.Path, parent reflect.Value, parentID any) error {
	for _, child := range parentPath.Children() {
		if child.IsEmbedded() {
			embedded := child.Leaf().Get(parent)
			if !embedded.IsValid() {
				continue
			}
			if err := l.loadChildren(ctx, child, embedded, parentID); err != nil {
				return err
			}
			continue
		}
		if parentID == nil {
			continue
		}

		rows, err := l.selectRows(ctx, child, parentID)
		if err != nil {
			return err
		}

		switch child.Leaf().Kind {
		case schema.KindEntity:
			err = l.setSingle(ctx, child, parent, rows)
		case schema.KindSlice:
			err = l.setSlice(ctx, child, parent, rows)
		case schema.KindMap:
			err = l.setMap(ctx, child, parent, rows)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) selectRows(ctx context.Context, path schema.Path, parentID any) ([]map[string]any, error) {
	var rows []map[string]any
	q := l.idb.NewSelect().
		Table(path.Table()).
		Where("? = ?", bun.Ident(path.ReverseColumn()), parentID)
	if key := path.KeyColumn(); key != "" {
		q = q.OrderExpr("? ASC", bun.Ident(key))
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, errx.Wrap(err, errx.WithDetails(pg.GetPgErrorDetails(err, q)))
	}
	return rows, nil
}

func (l *Loader) setSingle(ctx context.Context, path schema.Path, parent reflect.Value, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	target := allocField(path.Leaf(), parent)
	entity := path.Entity()
	if err := l.fillEntity(entity, target, rows[0], ""); err != nil {
		return err
	}
	return l.loadChildren(ctx, path, target, entity.IDValue(target))
}

func (l *Loader) setSlice(ctx context.Context, path schema.Path, parent reflect.Value, rows []map[string]any) error {
	prop := path.Leaf()
	sliceType := prop.Type()
	if sliceType.Kind() == reflect.Pointer {
		sliceType = sliceType.Elem()
	}
	if len(rows) == 0 {
		return nil
	}

	slice := reflect.MakeSlice(sliceType, len(rows), len(rows))
	entity := path.Entity()

	for i, row := range rows {
		if entity == nil {
			elem, err := convertColumn(row[elementValueColumn], prop.ElemType())
			if err != nil {
				return err
			}
			slice.Index(i).Set(elem)
			continue
		}

		target := allocElem(slice.Index(i))
		if err := l.fillEntity(entity, target, row, ""); err != nil {
			return err
		}
	}
	prop.Set(parent, slice)

	// Nested rows are loaded after the slice is in place: the elements
	// share the backing array, so write-backs stay visible.
	if entity != nil {
		for i := range rows {
			target := indirectElem(slice.Index(i))
			if err := l.loadChildren(ctx, path, target, entity.IDValue(target)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Loader) setMap(ctx context.Context, path schema.Path, parent reflect.Value, rows []map[string]any) error {
	prop := path.Leaf()
	mapType := prop.Type()
	if mapType.Kind() == reflect.Pointer {
		mapType = mapType.Elem()
	}
	if len(rows) == 0 {
		return nil
	}

	out := reflect.MakeMapWithSize(mapType, len(rows))
	entity := path.Entity()
	keyCol := path.KeyColumn()

	for _, row := range rows {
		key, err := convertColumn(row[keyCol], prop.KeyType())
		if err != nil {
			return err
		}

		if entity == nil {
			elem, convErr := convertColumn(row[elementValueColumn], prop.ElemType())
			if convErr != nil {
				return convErr
			}
			out.SetMapIndex(key, elem)
			continue
		}

		// Map values are not addressable, so each entry is built in an
		// addressable copy, fully loaded, then stored.
		entry := reflect.New(prop.ElemType()).Elem()
		target := allocElem(entry)
		if err := l.fillEntity(entity, target, row, ""); err != nil {
			return err
		}
		if err := l.loadChildren(ctx, path, target, entity.IDValue(target)); err != nil {
			return err
		}
		out.SetMapIndex(key, entry)
	}

	prop.Set(parent, out)
	return nil
}

// fillEntity assigns the mapped columns of row into target, recursing
// into embedded structs under their prefix. Missing and NULL columns
// leave the zero value in place.
func (l *Loader) fillEntity(entity *schema.Entity, target reflect.Value, row map[string]any, prefix string) error {
	for _, prop := range entity.Properties {
		switch prop.Kind {
		case schema.KindValue:
			v, ok := row[prefix+prop.Column]
			if !ok || v == nil {
				continue
			}
			baseType := prop.Type()
			if baseType.Kind() == reflect.Pointer {
				baseType = baseType.Elem()
			}
			converted, err := convertColumn(v, baseType)
			if err != nil {
				return errx.Wrap(err, errx.WithDetails(errx.D{
					"column": prefix + prop.Column,
					"entity": entity.Name(),
				}))
			}
			prop.Set(target, converted)

		case schema.KindEmbedded:
			nested, err := l.reg.Entity(prop.StructType())
			if err != nil {
				return err
			}
			nestedPrefix := prefix + prop.EmbeddedPrefix
			if prop.Type().Kind() == reflect.Pointer && !hasAnyColumn(row, nested, nestedPrefix) {
				continue
			}
			if err := l.fillEntity(nested, allocField(prop, target), row, nestedPrefix); err != nil {
				return err
			}
		}
	}
	return nil
}

// hasAnyColumn reports whether row carries a non-NULL value for any
// column of entity under prefix. A pointer embedded whose columns are
// all NULL stays nil.
func hasAnyColumn(row map[string]any, entity *schema.Entity, prefix string) bool {
	for _, prop := range entity.Properties {
		if prop.Kind != schema.KindValue {
			continue
		}
		if v, ok := row[prefix+prop.Column]; ok && v != nil {
			return true
		}
	}
	return false
}

// allocField returns the addressable struct value behind prop on owner,
// allocating pointer fields on demand.
func allocField(prop *schema.Property, owner reflect.Value) reflect.Value {
	f := prop.GetRaw(owner)
	return allocElem(f)
}

func allocElem(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return v.Elem()
	}
	return v
}

func indirectElem(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Pointer {
		return v.Elem()
	}
	return v
}

// convertColumn coerces a scanned database value into t. Integer
// widths, strings and times are normalized through cast; everything
// else goes through sql.Scanner or a direct reflect conversion.
func convertColumn(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	wrapPointer := false
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		wrapPointer = true
	}

	converted, err := convertBase(v, t)
	if err != nil {
		return reflect.Value{}, err
	}
	if !wrapPointer {
		return converted, nil
	}

	ptr := reflect.New(t)
	ptr.Elem().Set(converted)
	return ptr, nil
}

func convertBase(v any, t reflect.Type) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return rv, nil
	}

	// Scanner-aware types (uuid.UUID, sql.Null*, custom value types).
	ptr := reflect.New(t)
	if scanner, ok := ptr.Interface().(sql.Scanner); ok {
		if err := scanner.Scan(v); err == nil {
			return ptr.Elem(), nil
		}
	}

	switch t.Kind() {
	case reflect.String:
		s, err := cast.ToStringE(v)
		if err != nil {
			return reflect.Value{}, errx.Wrap(err)
		}
		return reflect.ValueOf(s).Convert(t), nil
	case reflect.Bool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return reflect.Value{}, errx.Wrap(err)
		}
		return reflect.ValueOf(b).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return reflect.Value{}, errx.Wrap(err)
		}
		return reflect.ValueOf(n).Convert(t), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(v)
		if err != nil {
			return reflect.Value{}, errx.Wrap(err)
		}
		return reflect.ValueOf(n).Convert(t), nil
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return reflect.Value{}, errx.Wrap(err)
		}
		return reflect.ValueOf(f).Convert(t), nil
	}

	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, errx.New(
		fmt.Sprintf("cannot convert column value of type %T into %s", v, t),
	)
}
