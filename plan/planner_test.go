// Package plan_test contains tests for the plan package.
package plan_test

import (
	"reflect"
	"testing"

	"github.com/code19m/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-and-shine/aggregate/plan"
	"github.com/rise-and-shine/aggregate/schema"
)

type Order struct {
	schema.BaseEntity `rel:"table:orders"`

	ID      int64 `rel:"id,pk,autoincrement"`
	Ref     string
	Payment *Payment
	Items   []Item
	Labels  []string
	Attrs   map[string]Attribute
	Legacy  []string `rel:"legacy,unordered"`
}

type Payment struct {
	ID     string `rel:"id,pk,genuuid"`
	Method string
}

type Item struct {
	ID      int64 `rel:"id,pk,autoincrement"`
	Product string
	Subs    []SubItem
}

type SubItem struct {
	Name string
}

type Attribute struct {
	Label string
}

// Receipt is a minimal aggregate with a single nested reference, used
// for the plans that are easier to assert action by action.
type Receipt struct {
	ID      int64 `rel:"id,pk,autoincrement"`
	Payment *Payment
}

func newPlanner(t *testing.T) *plan.Planner {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register((*Order)(nil), (*Receipt)(nil)))
	return plan.New(reg)
}

// describe renders an action list into a compact readable form.
func describe(c *plan.Change) []string {
	out := make([]string, 0, c.Len())
	for _, a := range c.Actions() {
		out = append(out, a.String())
	}
	return out
}

func TestSave_NewAggregate(t *testing.T) {
	p := newPlanner(t)

	order := &Order{
		Ref:     "ord-1",
		Payment: &Payment{Method: "card"},
		Items: []Item{
			{Product: "beans", Subs: []SubItem{{Name: "s1"}, {Name: "s2"}}},
			{Product: "paper"},
		},
		Labels: []string{"priority"},
		Attrs:  map[string]Attribute{"b": {Label: "two"}, "a": {Label: "one"}},
	}

	change, err := p.Save(order)
	require.NoError(t, err)

	assert.Equal(t, plan.KindSave, change.Kind)
	assert.Equal(t, []string{
		"InsertRoot(Order)",
		"Insert(Payment)",
		"Insert(Items[0])",
		"Insert(Items.Subs[0])",
		"Insert(Items.Subs[1])",
		"Insert(Items[1])",
		"Insert(Labels[0])",
		"Insert(Attrs[a])",
		"Insert(Attrs[b])",
	}, describe(change))
}

func TestSave_NewAggregate_DependsOnChain(t *testing.T) {
	p := newPlanner(t)

	order := &Order{
		Payment: &Payment{Method: "card"},
		Items:   []Item{{Product: "beans", Subs: []SubItem{{Name: "s1"}}}},
	}

	change, err := p.Save(order)
	require.NoError(t, err)
	actions := change.Actions()
	require.Len(t, actions, 4)

	root, ok := actions[0].(*plan.InsertRoot)
	require.True(t, ok)

	payment := actions[1].(*plan.Insert)
	item := actions[2].(*plan.Insert)
	sub := actions[3].(*plan.Insert)

	// Top-level inserts anchor at the root action, nested ones at
	// their element's insert.
	assert.Same(t, plan.Action(root), payment.DependsOn)
	assert.Same(t, plan.Action(root), item.DependsOn)
	assert.Same(t, plan.Action(item), sub.DependsOn)
}

func TestSave_ExistingAggregate(t *testing.T) {
	p := newPlanner(t)

	order := &Order{
		ID:      7,
		Ref:     "ord-7",
		Payment: &Payment{ID: "pay-1", Method: "card"},
	}

	change, err := p.Save(order)
	require.NoError(t, err)

	// Nested rows are dropped bottom-up, the root row is updated in
	// place, then the current nested state is re-inserted top-down.
	assert.Equal(t, []string{
		"Delete(Items.Subs)",
		"Delete(Payment)",
		"Delete(Items)",
		"Delete(Labels)",
		"Delete(Attrs)",
		"Delete(Legacy)",
		"UpdateRoot(Order)",
		"Insert(Payment)",
	}, describe(change))

	for _, a := range change.Actions() {
		if del, ok := a.(*plan.Delete); ok {
			assert.Equal(t, int64(7), del.RootID)
		}
	}
}

func TestSave_ExistingAggregate_NestedContainers(t *testing.T) {
	p := newPlanner(t)

	order := &Order{
		ID:  12,
		Ref: "ord-12",
		Items: []Item{
			{ID: 31, Product: "beans", Subs: []SubItem{{Name: "s1"}, {Name: "s2"}}},
			{ID: 32, Product: "paper"},
		},
	}

	change, err := p.Save(order)
	require.NoError(t, err)

	// Two container levels in one plan: deepest deletes first, then the
	// root update, then each element re-inserted before its children.
	assert.Equal(t, []string{
		"Delete(Items.Subs)",
		"Delete(Payment)",
		"Delete(Items)",
		"Delete(Labels)",
		"Delete(Attrs)",
		"Delete(Legacy)",
		"UpdateRoot(Order)",
		"Insert(Items[0])",
		"Insert(Items.Subs[0])",
		"Insert(Items.Subs[1])",
		"Insert(Items[1])",
	}, describe(change))

	actions := change.Actions()
	update := actions[6].(*plan.UpdateRoot)
	item0 := actions[7].(*plan.Insert)
	sub0 := actions[8].(*plan.Insert)

	// Re-inserts anchor at the root update, nested rows at their element.
	assert.Same(t, plan.Action(update), item0.DependsOn)
	assert.Same(t, plan.Action(item0), sub0.DependsOn)
}

func TestSave_SingleReferenceRewrite(t *testing.T) {
	p := newPlanner(t)

	receipt := &Receipt{ID: 3, Payment: &Payment{ID: "pay-9", Method: "cash"}}

	change, err := p.Save(receipt)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Delete(Payment)",
		"UpdateRoot(Receipt)",
		"Insert(Payment)",
	}, describe(change))
}

func TestSave_EmptyCollections(t *testing.T) {
	p := newPlanner(t)

	t.Run("new aggregate", func(t *testing.T) {
		change, err := p.Save(&Order{Ref: "empty"})
		require.NoError(t, err)
		assert.Equal(t, []string{"InsertRoot(Order)"}, describe(change))
	})

	t.Run("existing aggregate", func(t *testing.T) {
		change, err := p.Save(&Order{ID: 1, Ref: "empty"})
		require.NoError(t, err)

		// Deletes still run for every path: the previous state is
		// unknown and must be cleared either way.
		actions := describe(change)
		assert.Equal(t, "UpdateRoot(Order)", actions[len(actions)-1])
		for _, s := range actions[:len(actions)-1] {
			assert.Contains(t, s, "Delete(")
		}
	})
}

func TestSave_SliceKeys(t *testing.T) {
	p := newPlanner(t)

	order := &Order{
		Labels: []string{"a", "b"},
		Legacy: []string{"x", "y"},
	}

	change, err := p.Save(order)
	require.NoError(t, err)

	var labelKeys, legacyKeys []plan.Key
	for _, a := range change.Actions() {
		ins, ok := a.(*plan.Insert)
		if !ok {
			continue
		}
		switch ins.Path.String() {
		case "Labels":
			labelKeys = append(labelKeys, ins.Key)
		case "Legacy":
			legacyKeys = append(legacyKeys, ins.Key)
		}
	}

	assert.Equal(t, []plan.Key{plan.Index(0), plan.Index(1)}, labelKeys)
	assert.Equal(t, []plan.Key{plan.NoKey{}, plan.NoKey{}}, legacyKeys)
}

func TestSave_MapEntries(t *testing.T) {
	p := newPlanner(t)

	order := &Order{
		Attrs: map[string]Attribute{
			"color": {Label: "red"},
			"size":  {Label: "xl"},
			"brand": {Label: "acme"},
		},
	}

	change, err := p.Save(order)
	require.NoError(t, err)

	var keys []plan.Key
	var inserts []*plan.Insert
	for _, a := range change.Actions() {
		if ins, ok := a.(*plan.Insert); ok && ins.Path.String() == "Attrs" {
			keys = append(keys, ins.Key)
			inserts = append(inserts, ins)
		}
	}

	// Entries appear in ascending key order, independent of map
	// iteration order.
	assert.Equal(t, []plan.Key{
		plan.MapKey{Value: "brand"},
		plan.MapKey{Value: "color"},
		plan.MapKey{Value: "size"},
	}, keys)

	// Map values are planned as copies; WriteBack propagates executor
	// mutations into the original map entry.
	brand := inserts[0]
	brand.Value.FieldByName("Label").SetString("updated")
	brand.WriteBack()
	assert.Equal(t, "updated", order.Attrs["brand"].Label)
}

func TestSave_NilElementsSkipped(t *testing.T) {
	reg := schema.NewRegistry()

	type Shelf struct {
		ID    int64 `rel:"id,pk,autoincrement"`
		Books []*Payment
	}
	require.NoError(t, reg.Register((*Shelf)(nil)))
	p := plan.New(reg)

	shelf := &Shelf{Books: []*Payment{{Method: "a"}, nil, {Method: "c"}}}

	change, err := p.Save(shelf)
	require.NoError(t, err)

	// The nil element contributes no action but its index is not reused.
	assert.Equal(t, []string{
		"InsertRoot(Shelf)",
		"Insert(Books[0])",
		"Insert(Books[2])",
	}, describe(change))
}

func TestDelete(t *testing.T) {
	p := newPlanner(t)

	change, err := p.Delete(&Order{ID: 9})
	require.NoError(t, err)

	assert.Equal(t, plan.KindDelete, change.Kind)
	assert.Equal(t, []string{
		"Delete(Items.Subs)",
		"Delete(Payment)",
		"Delete(Items)",
		"Delete(Labels)",
		"Delete(Attrs)",
		"Delete(Legacy)",
		"DeleteRoot(Order, id=9)",
	}, describe(change))
}

func TestDelete_ZeroIdentifier(t *testing.T) {
	p := newPlanner(t)

	_, err := p.Delete(&Order{})
	require.Error(t, err)
	assert.Equal(t, plan.CodeInvalidAggregate, errx.AsErrorX(err).Code())
}

func TestDeleteByID(t *testing.T) {
	p := newPlanner(t)

	change, err := p.DeleteByID((*Receipt)(nil), int64(4))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Delete(Payment)",
		"DeleteRoot(Receipt, id=4)",
	}, describe(change))

	del := change.Actions()[0].(*plan.Delete)
	assert.Equal(t, int64(4), del.RootID)
}

func TestSave_InvalidRoots(t *testing.T) {
	p := newPlanner(t)

	tests := []struct {
		name string
		root any
	}{
		{name: "non-pointer", root: Order{}},
		{name: "nil pointer", root: (*Order)(nil)},
		{name: "pointer to non-struct", root: new(int)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Save(tt.root)
			require.Error(t, err)
			assert.Equal(t, plan.CodeInvalidAggregate, errx.AsErrorX(err).Code())
		})
	}
}

func TestSave_RootValueIsAddressable(t *testing.T) {
	p := newPlanner(t)

	order := &Order{Ref: "before"}
	change, err := p.Save(order)
	require.NoError(t, err)

	root := change.Actions()[0].(*plan.InsertRoot)
	require.Equal(t, reflect.Struct, root.Value.Kind())
	require.True(t, root.Value.CanSet())

	root.Value.FieldByName("ID").SetInt(11)
	assert.Equal(t, int64(11), order.ID)
}
