// Package plan turns an in-memory aggregate into an ordered list of
// database actions. Planning is pure computation: the full action list
// exists before any I/O happens, and every ordering decision is made
// here, not in the executor.
//
// Ordering rules:
//   - saving a new aggregate: the root insert comes first, then every
//     nested value top-down, each container before its own elements;
//   - saving an existing aggregate: cascaded deletes run bottom-up
//     (deepest paths first), then the root update, then inserts of the
//     current state top-down (delete-then-recreate for nested values);
//   - deleting an aggregate: cascaded deletes bottom-up, root last.
package plan

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/code19m/errx"
	"github.com/spf13/cast"

	"github.com/rise-and-shine/aggregate/schema"
)

// CodeInvalidAggregate is the errx code for aggregates that cannot be
// planned (nil root, non-pointer root, missing identifier on delete).
const CodeInvalidAggregate = "INVALID_AGGREGATE"

// Planner builds Changes from aggregate roots using registered
// metadata. It is stateless and safe for concurrent use.
type Planner struct {
	reg *schema.Registry
}

// New creates a Planner over the given metadata registry.
func New(reg *schema.Registry) *Planner {
	return &Planner{reg: reg}
}

// Save plans the persistence of root. A root with a zero identifier is
// planned as a fresh insert cascade; an existing root is planned as
// delete-then-recreate of all nested rows around a root update.
// The root must be a non-nil pointer so generated identifiers can be
// written back during execution.
func (p *Planner) Save(root any) (*Change, error) {
	rv, err := p.rootValue(root)
	if err != nil {
		return nil, err
	}

	rootPath, err := p.reg.RootPath(root)
	if err != nil {
		return nil, err
	}
	entity := rootPath.RootEntity()

	change := &Change{Kind: KindSave, Root: root}

	if entity.IsNew(rv) {
		rootAction := &InsertRoot{Entity: entity, Value: rv}
		change.add(rootAction)
		p.insertNested(change, rootAction, rootPath, rv)
		return change, nil
	}

	deletePaths, err := p.reg.DeletePaths(root)
	if err != nil {
		return nil, err
	}
	rootID := entity.IDValue(rv)
	for _, path := range deletePaths {
		change.add(&Delete{Path: path, RootID: rootID})
	}

	rootAction := &UpdateRoot{Entity: entity, Value: rv}
	change.add(rootAction)
	p.insertNested(change, rootAction, rootPath, rv)

	return change, nil
}

// Delete plans the removal of root and every row reachable from it.
// The root's identifier must be set.
func (p *Planner) Delete(root any) (*Change, error) {
	rv, err := p.rootValue(root)
	if err != nil {
		return nil, err
	}

	rootPath, err := p.reg.RootPath(root)
	if err != nil {
		return nil, err
	}
	entity := rootPath.RootEntity()

	if entity.IsNew(rv) {
		return nil, errx.New(
			fmt.Sprintf("cannot delete %s without identifier", entity.Name()),
			errx.WithCode(CodeInvalidAggregate),
		)
	}

	return p.DeleteByID(root, entity.IDValue(rv))
}

// DeleteByID plans the removal of the aggregate of proto's type
// identified by id, without needing the aggregate loaded.
func (p *Planner) DeleteByID(proto any, id any) (*Change, error) {
	rootPath, err := p.reg.RootPath(proto)
	if err != nil {
		return nil, err
	}

	deletePaths, err := p.reg.DeletePaths(proto)
	if err != nil {
		return nil, err
	}

	change := &Change{Kind: KindDelete, Root: proto}
	for _, path := range deletePaths {
		change.add(&Delete{Path: path, RootID: id})
	}
	change.add(&DeleteRoot{Entity: rootPath.RootEntity(), ID: id})

	return change, nil
}

// insertNested walks the current values under parentPath top-down,
// emitting an Insert for every present nested value. Embedded values
// contribute no actions of their own; their children anchor at the
// owning row's action.
func (p *Planner) insertNested(c *Change, rowAction Action, parentPath schema.Path, parentValue reflect.Value) {
	for _, child := range parentPath.Children() {
		prop := child.Leaf()

		switch prop.Kind {
		case schema.KindEmbedded:
			if v := prop.Get(parentValue); v.IsValid() {
				p.insertNested(c, rowAction, child, v)
			}

		case schema.KindEntity:
			v := prop.Get(parentValue)
			if !v.IsValid() {
				continue
			}
			action := &Insert{Path: child, Value: v, Key: NoKey{}, DependsOn: rowAction}
			c.add(action)
			p.insertNested(c, action, child, v)

		case schema.KindSlice:
			p.insertSlice(c, rowAction, child, prop.GetRaw(parentValue))

		case schema.KindMap:
			p.insertMap(c, rowAction, child, prop.GetRaw(parentValue))
		}
	}
}

func (p *Planner) insertSlice(c *Change, rowAction Action, path schema.Path, slice reflect.Value) {
	slice = elemValue(slice)
	if !slice.IsValid() || slice.IsNil() {
		return
	}

	for i := range slice.Len() {
		elem := slice.Index(i)
		if elem.Kind() == reflect.Pointer {
			if elem.IsNil() {
				continue
			}
			elem = elem.Elem()
		}

		var key Key = NoKey{}
		if path.IsQualified() {
			key = Index(i)
		}

		action := &Insert{Path: path, Value: elem, Key: key, DependsOn: rowAction}
		c.add(action)
		p.insertNested(c, action, path, elem)
	}
}

// insertMap emits entries in ascending key order so that plans are
// deterministic across runs.
func (p *Planner) insertMap(c *Change, rowAction Action, path schema.Path, m reflect.Value) {
	m = elemValue(m)
	if !m.IsValid() || m.IsNil() {
		return
	}

	keys := m.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return cast.ToString(keys[i].Interface()) < cast.ToString(keys[j].Interface())
	})

	for _, k := range keys {
		elem := m.MapIndex(k)
		writeBack := func(reflect.Value) {}

		if elem.Kind() == reflect.Pointer {
			if elem.IsNil() {
				continue
			}
			elem = elem.Elem()
		} else {
			// Map entries are not addressable; insert a copy and put it
			// back once the executor has assigned generated identifiers.
			copied := reflect.New(elem.Type()).Elem()
			copied.Set(elem)
			elem = copied
			mapRef, keyRef := m, k
			writeBack = func(v reflect.Value) { mapRef.SetMapIndex(keyRef, v) }
		}

		action := &Insert{
			Path:      path,
			Value:     elem,
			Key:       MapKey{Value: k.Interface()},
			DependsOn: rowAction,
			writeBack: writeBack,
		}
		c.add(action)
		p.insertNested(c, action, path, elem)
	}
}

func (p *Planner) rootValue(root any) (reflect.Value, error) {
	rv := reflect.ValueOf(root)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, errx.New(
			"aggregate root must be a non-nil pointer to a struct",
			errx.WithCode(CodeInvalidAggregate),
		)
	}
	return rv.Elem(), nil
}

// elemValue strips a pointer wrapper from a container field value.
func elemValue(v reflect.Value) reflect.Value {
	if v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		return v.Elem()
	}
	return v
}
