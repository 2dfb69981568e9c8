package plan

import (
	"fmt"
	"reflect"

	"github.com/rise-and-shine/aggregate/schema"
)

// Action is one planned database operation. The set of variants is
// closed so executors can switch exhaustively: InsertRoot, UpdateRoot,
// DeleteRoot, Insert and Delete.
type Action interface {
	fmt.Stringer
	sealedAction()
}

// InsertRoot inserts the aggregate root row.
type InsertRoot struct {
	// Entity is the root's metadata.
	Entity *schema.Entity
	// Value is an addressable reflect value of the root struct, so the
	// executor can write a generated identifier back.
	Value reflect.Value
}

func (*InsertRoot) sealedAction() {}

func (a *InsertRoot) String() string {
	return fmt.Sprintf("InsertRoot(%s)", a.Entity.Name())
}

// UpdateRoot replaces the aggregate root row by primary key.
type UpdateRoot struct {
	Entity *schema.Entity
	Value  reflect.Value
}

func (*UpdateRoot) sealedAction() {}

func (a *UpdateRoot) String() string {
	return fmt.Sprintf("UpdateRoot(%s)", a.Entity.Name())
}

// DeleteRoot removes the aggregate root row by identifier.
type DeleteRoot struct {
	Entity *schema.Entity
	ID     any
}

func (*DeleteRoot) sealedAction() {}

func (a *DeleteRoot) String() string {
	return fmt.Sprintf("DeleteRoot(%s, id=%v)", a.Entity.Name(), a.ID)
}

// Insert inserts one nested value (single reference, slice element or
// map entry) at Path.
type Insert struct {
	// Path locates the property the value lives at.
	Path schema.Path
	// Value is an addressable reflect value of the inserted element.
	Value reflect.Value
	// Key carries the slice index or map key of the element.
	Key Key
	// DependsOn is the action that writes the id-defining parent row.
	// The executor resolves the reverse-column value from it.
	DependsOn Action

	writeBack func(reflect.Value)
}

func (*Insert) sealedAction() {}

// WriteBack propagates mutations on Value (generated identifiers) into
// containers whose entries are not addressable, such as map values.
// Executors call it after assigning identifiers; it is a no-op for
// directly addressable values.
func (a *Insert) WriteBack() {
	if a.writeBack != nil {
		a.writeBack(a.Value)
	}
}

func (a *Insert) String() string {
	return fmt.Sprintf("Insert(%s%s)", a.Path, a.Key)
}

// Delete removes every row under Path belonging to the aggregate
// identified by RootID. Rows of deeper paths are removed by their own,
// earlier Delete actions.
type Delete struct {
	Path   schema.Path
	RootID any
}

func (*Delete) sealedAction() {}

func (a *Delete) String() string {
	return fmt.Sprintf("Delete(%s)", a.Path)
}
