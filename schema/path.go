package schema

// Path identifies one node in the property tree of a registered
// aggregate root. Paths are small comparable values backed by a shared
// per-root arena, so they can be used as map keys and compared with ==.
type Path struct {
	arena *pathArena
	idx   int
}

// pathArena holds the materialized property tree of one root type.
// Nodes reference their parents by index; node 0 is the root.
type pathArena struct {
	rootEntity *Entity
	nodes      []pathNode
}

type pathNode struct {
	parent   int
	depth    int
	name     string
	prop     *Property // nil at the root
	entity   *Entity   // nil for containers of simple values
	children []int
}

func (a *pathArena) path(idx int) Path { return Path{arena: a, idx: idx} }

func (p Path) node() *pathNode { return &p.arena.nodes[p.idx] }

// IsRoot reports whether p is the empty path addressing the root itself.
func (p Path) IsRoot() bool { return p.idx == 0 }

// Depth returns the number of properties navigated from the root.
func (p Path) Depth() int { return p.node().depth }

// Leaf returns the property addressed by p, nil for the root path.
func (p Path) Leaf() *Property { return p.node().prop }

// Entity returns the entity metadata of the value at p. It is nil for
// containers of simple values; for the root path it is the root entity.
func (p Path) Entity() *Entity {
	if p.IsRoot() {
		return p.arena.rootEntity
	}
	return p.node().entity
}

// RootEntity returns the aggregate root's entity metadata.
func (p Path) RootEntity() *Entity { return p.arena.rootEntity }

// Parent returns the path one step closer to the root.
// Calling Parent on the root path is a programming error and panics.
func (p Path) Parent() Path {
	if p.IsRoot() {
		panic("schema: root path has no parent")
	}
	return p.arena.path(p.node().parent)
}

// Children returns the child paths of p in declaration order.
func (p Path) Children() []Path {
	children := p.node().children
	out := make([]Path, len(children))
	for i, idx := range children {
		out[i] = p.arena.path(idx)
	}
	return out
}

// IsEmbedded reports whether the value at p is flattened into the
// owning table instead of getting rows of its own.
func (p Path) IsEmbedded() bool {
	return !p.IsRoot() && p.node().prop.Kind == KindEmbedded
}

// IsEntity reports whether the value at p (or the elements of the
// container at p) carries entity metadata of its own.
func (p Path) IsEntity() bool {
	return p.node().entity != nil && !p.IsEmbedded() && !p.IsRoot()
}

// IsMultiValued reports whether p addresses a slice or map property.
func (p Path) IsMultiValued() bool {
	if p.IsRoot() {
		return false
	}
	k := p.node().prop.Kind
	return k == KindSlice || k == KindMap
}

// IsQualified reports whether element rows under p carry a key column:
// slices carry their index unless declared unordered, maps always
// carry their key.
func (p Path) IsQualified() bool {
	if p.IsRoot() {
		return false
	}
	switch p.node().prop.Kind {
	case KindSlice:
		return !p.node().prop.Unordered
	case KindMap:
		return true
	default:
		return false
	}
}

// producesRows reports whether values at p live in their own table.
func (p Path) producesRows() bool {
	if p.IsRoot() || p.IsEmbedded() {
		return false
	}
	switch p.node().prop.Kind {
	case KindEntity, KindSlice, KindMap:
		return true
	default:
		return false
	}
}

// TableOwningAncestor returns the nearest path (possibly p itself)
// whose value maps directly to table rows, skipping embedded prefixes.
func (p Path) TableOwningAncestor() Path {
	q := p
	for q.IsEmbedded() {
		q = q.Parent()
	}
	return q
}

// IDDefiningParent returns the nearest strict ancestor whose entity
// declares an identifier. The root path always qualifies, so cascades
// anchor there at the latest.
func (p Path) IDDefiningParent() Path {
	if p.IsRoot() {
		panic("schema: root path has no id-defining parent")
	}
	q := p.Parent()
	for !q.IsRoot() {
		if e := q.Entity(); e != nil && e.ID != nil && !q.IsEmbedded() {
			return q
		}
		q = q.Parent()
	}
	return q
}

// Table returns the table holding rows for the value at p. For
// embedded paths this is the table of the table-owning ancestor; for
// containers of simple values a table name is derived from the owning
// table and the property column.
func (p Path) Table() string {
	if p.IsRoot() {
		return p.arena.rootEntity.Table
	}
	if p.IsEmbedded() {
		return p.TableOwningAncestor().Table()
	}
	if e := p.node().entity; e != nil {
		return e.Table
	}
	return p.IDDefiningParent().Table() + "_" + p.node().prop.Column
}

// ColumnName returns the column of the leaf property with all embedded
// prefixes along the path prepended.
func (p Path) ColumnName() string {
	if p.IsRoot() {
		return ""
	}
	col := p.node().prop.Column
	for q := p.Parent(); q.IsEmbedded(); q = q.Parent() {
		col = q.Leaf().EmbeddedPrefix + col
	}
	return col
}

// ReverseColumn returns the foreign-key column on the child table
// pointing back at the id-defining parent's identifier. The root path
// has no reverse column and returns "".
func (p Path) ReverseColumn() string {
	if p.IsRoot() {
		return ""
	}
	if fk := p.node().prop.FKColumn; fk != "" {
		return fk
	}
	return p.IDDefiningParent().Table() + "_id"
}

// KeyColumn returns the column holding the slice index or map key for
// qualified container elements, "" for everything else.
func (p Path) KeyColumn() string {
	if !p.IsQualified() {
		return ""
	}
	if key := p.node().prop.KeyColumn; key != "" {
		return key
	}
	switch p.node().prop.Kind {
	case KindMap:
		return p.node().prop.Column + "_key"
	default:
		return p.node().prop.Column + "_idx"
	}
}

// String returns the dotted property path, "" for the root.
func (p Path) String() string { return p.node().name }

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// sortPathsBottomUp orders paths deepest first, keeping the relative
// order of equal depths stable.
func sortPathsBottomUp(paths []Path) []Path {
	out := make([]Path, len(paths))
	copy(out, paths)
	// insertion sort keeps it stable; path lists are tiny
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Depth() < out[j].Depth(); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
