// Package schema derives relational mapping metadata from Go struct
// types: which field is the identifier, which fields are embedded,
// which become child tables, and how nested values are addressed by
// property paths.
//
// Metadata is built once per registered aggregate root and cached.
// Field accessors are prebuilt closures over field indices, so the
// planner and executor never resolve fields by name at traversal time.
//
// Mapping is driven by `rel` struct tags:
//
//	type Order struct {
//	    schema.BaseEntity `rel:"table:orders"`
//
//	    ID      int64          `rel:"id,pk,autoincrement"`
//	    Ref     string         `rel:"ref"`
//	    Payment *Payment       // single child entity -> own table
//	    Items   []OrderItem    // ordered child rows, index column derived
//	    Notes   map[string]Note // keyed child rows, key column derived
//	    Addr    Address        `rel:"embedded:addr_"` // flattened columns
//	    Skip    string         `rel:"-"`
//	}
//
// Options: pk, autoincrement (database-assigned id), genuuid
// (application-assigned uuid id), unordered (slice without index
// column), fk:<column> (reverse-column override), key:<column>
// (index/map-key column override), embedded:<prefix>, table:<name>.
package schema

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/code19m/errx"
)

// CodeInvalidSchema is the errx code carried by all non-recoverable
// mapping configuration errors.
const CodeInvalidSchema = "INVALID_SCHEMA"

// Registry caches entity metadata and property-path arenas per
// aggregate root type. It is safe for concurrent use after Register.
type Registry struct {
	mu       sync.RWMutex
	entities map[reflect.Type]*Entity
	arenas   map[reflect.Type]*pathArena
}

// NewRegistry creates an empty metadata registry.
func NewRegistry() *Registry {
	return &Registry{
		entities: map[reflect.Type]*Entity{},
		arenas:   map[reflect.Type]*pathArena{},
	}
}

// Register builds and caches metadata for the given aggregate root
// prototypes (values or pointers, e.g. (*Order)(nil)). The whole
// reachable entity closure is described eagerly, so every mapping
// problem surfaces here instead of during planning.
func (r *Registry) Register(prototypes ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, proto := range prototypes {
		t := rootType(proto)
		if _, ok := r.arenas[t]; ok {
			continue
		}
		arena, err := r.buildArena(t)
		if err != nil {
			return err
		}
		r.arenas[t] = arena
	}
	return nil
}

// MustRegister is Register for package-level setup; it panics on
// configuration errors.
func (r *Registry) MustRegister(prototypes ...any) {
	if err := r.Register(prototypes...); err != nil {
		panic(err)
	}
}

// Entity returns the cached metadata for t, building it on demand.
// Child entity types are cached as a side effect of registering roots.
func (r *Registry) Entity(t reflect.Type) (*Entity, error) {
	r.mu.RLock()
	e, ok := r.entities[t]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entityLocked(t)
}

// EntityOf returns the metadata for the dynamic type of value.
func (r *Registry) EntityOf(value any) (*Entity, error) {
	return r.Entity(rootType(value))
}

// RootPath returns the empty path of a registered aggregate root.
func (r *Registry) RootPath(proto any) (Path, error) {
	t := rootType(proto)

	r.mu.RLock()
	arena, ok := r.arenas[t]
	r.mu.RUnlock()
	if !ok {
		return Path{}, errx.New(
			fmt.Sprintf("type %s is not a registered aggregate root", t),
			errx.WithCode(CodeInvalidSchema),
		)
	}
	return arena.path(0), nil
}

// RowPaths returns every path under the root that maps to rows in its
// own table, in depth-first declaration order (containers before their
// nested children). This is the traversal order for cascaded inserts;
// reversed by depth it is the order for cascaded deletes.
func (r *Registry) RowPaths(proto any) ([]Path, error) {
	root, err := r.RootPath(proto)
	if err != nil {
		return nil, err
	}

	var out []Path
	var walk func(p Path)
	walk = func(p Path) {
		for _, child := range p.Children() {
			if child.producesRows() {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(root)
	return out, nil
}

// DeletePaths returns the row-producing paths ordered bottom-up
// (deepest first), the order in which cascaded deletes must run.
func (r *Registry) DeletePaths(proto any) ([]Path, error) {
	paths, err := r.RowPaths(proto)
	if err != nil {
		return nil, err
	}
	return sortPathsBottomUp(paths), nil
}

func (r *Registry) entityLocked(t reflect.Type) (*Entity, error) {
	if e, ok := r.entities[t]; ok {
		return e, nil
	}
	e, err := newEntity(t)
	if err != nil {
		return nil, err
	}
	r.entities[t] = e
	return e, nil
}

// buildArena materializes the property tree of root. Cyclic entity
// graphs cannot be persisted by cascade and are rejected.
func (r *Registry) buildArena(root reflect.Type) (*pathArena, error) {
	rootEntity, err := r.entityLocked(root)
	if err != nil {
		return nil, err
	}
	if rootEntity.ID == nil {
		return nil, errx.New(
			fmt.Sprintf("aggregate root %s has no identifier property", root.Name()),
			errx.WithCode(CodeInvalidSchema),
		)
	}

	arena := &pathArena{rootEntity: rootEntity}
	arena.nodes = append(arena.nodes, pathNode{parent: -1})

	onStack := map[reflect.Type]bool{root: true}

	var expand func(idx int, e *Entity) error
	expand = func(idx int, e *Entity) error {
		for _, prop := range e.Properties {
			var childEntity *Entity
			if st := prop.structType; st != nil {
				if onStack[st] {
					return errx.New(
						fmt.Sprintf("cyclic entity reference via %s.%s", e.Name(), prop.Name),
						errx.WithCode(CodeInvalidSchema),
					)
				}
				var err error
				childEntity, err = r.entityLocked(st)
				if err != nil {
					return err
				}
			}

			switch prop.Kind {
			case KindEmbedded, KindEntity, KindSlice, KindMap:
			default:
				continue
			}

			node := pathNode{
				parent: idx,
				depth:  arena.nodes[idx].depth + 1,
				name:   joinPath(arena.nodes[idx].name, prop.Name),
				prop:   prop,
				entity: childEntity,
			}
			childIdx := len(arena.nodes)
			arena.nodes = append(arena.nodes, node)
			arena.nodes[idx].children = append(arena.nodes[idx].children, childIdx)

			if childEntity != nil {
				onStack[childEntity.Type] = true
				if err := expand(childIdx, childEntity); err != nil {
					return err
				}
				delete(onStack, childEntity.Type)

				if err := checkAnchorable(arena, childIdx); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := expand(0, rootEntity); err != nil {
		return nil, err
	}
	return arena, nil
}

// checkAnchorable rejects identifier-less child entities that carry
// row-producing children of their own: grandchild rows would have no
// identifier to reference in their reverse column.
func checkAnchorable(arena *pathArena, idx int) error {
	node := arena.nodes[idx]
	if node.prop.Kind == KindEmbedded || node.entity == nil || node.entity.ID != nil {
		return nil
	}
	for _, childIdx := range node.children {
		if arena.path(childIdx).producesRows() {
			return errx.New(
				fmt.Sprintf(
					"entity %s nests further entities but declares no identifier to anchor them",
					node.entity.Name(),
				),
				errx.WithCode(CodeInvalidSchema),
			)
		}
	}
	return nil
}

// rootType normalizes a prototype (value, pointer, or reflect-free
// nil pointer like (*Order)(nil)) to its struct type.
func rootType(proto any) reflect.Type {
	t := reflect.TypeOf(proto)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
