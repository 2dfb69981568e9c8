package plan

// ChangeKind distinguishes save plans from delete plans.
type ChangeKind int

const (
	KindSave ChangeKind = iota
	KindDelete
)

func (k ChangeKind) String() string {
	if k == KindDelete {
		return "delete"
	}
	return "save"
}

// Change is the ordered list of actions persisting or deleting one
// aggregate. A Change is built fresh per call, handed to an executor
// and discarded; it carries no state across operations.
type Change struct {
	// Kind is the overall operation the actions amount to.
	Kind ChangeKind
	// Root is the aggregate root the plan was built from.
	Root any

	actions []Action
}

// Actions returns the planned actions in execution order.
func (c *Change) Actions() []Action { return c.actions }

// Len returns the number of planned actions.
func (c *Change) Len() int { return len(c.actions) }

func (c *Change) add(a Action) { c.actions = append(c.actions, a) }
