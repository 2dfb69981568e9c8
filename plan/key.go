package plan

import "fmt"

// Key is the closed set of container-key variants riding on element
// actions. The path of an action is shared by every element of the
// same container; the key is what tells elements apart, and it is what
// the executor writes into the key column.
//
// Exactly three variants exist: NoKey, Index and MapKey.
type Key interface {
	fmt.Stringer
	sealedKey()
}

// NoKey marks actions for single references and unordered slices.
type NoKey struct{}

func (NoKey) sealedKey()     {}
func (NoKey) String() string { return "" }

// Index is the position of an element in an ordered slice.
type Index int

func (Index) sealedKey()       {}
func (i Index) String() string { return fmt.Sprintf("[%d]", int(i)) }

// MapKey wraps the map key of an element.
type MapKey struct {
	Value any
}

func (MapKey) sealedKey()       {}
func (k MapKey) String() string { return fmt.Sprintf("[%v]", k.Value) }
