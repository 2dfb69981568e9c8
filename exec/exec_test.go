package exec

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-and-shine/aggregate/schema"
)

type order struct {
	schema.BaseEntity `rel:"table:orders"`

	ID      int64    `rel:"id,pk,autoincrement"`
	Ref     string   `rel:"ref"`
	Addr    address  `rel:"addr,embedded:addr_"`
	Billing *address `rel:"billing,embedded:bill_"`
	Note    *string  `rel:"note"`
	Items   []item
}

type address struct {
	City   string
	Street string
}

type item struct {
	ID      int64 `rel:"id,pk,autoincrement"`
	Product string
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register((*order)(nil)))
	return reg
}

func TestRowValues(t *testing.T) {
	reg := testRegistry(t)
	entity, err := reg.EntityOf((*order)(nil))
	require.NoError(t, err)

	note := "gift wrap"
	value := reflect.ValueOf(&order{
		ID:      5,
		Ref:     "ord-5",
		Addr:    address{City: "Tashkent", Street: "Navoi 7"},
		Billing: &address{City: "Samarkand"},
		Note:    &note,
		Items:   []item{{Product: "ignored, not a column"}},
	}).Elem()

	row, err := rowValues(reg, entity, value)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"ref":         "ord-5",
		"addr_city":   "Tashkent",
		"addr_street": "Navoi 7",
		"bill_city":   "Samarkand",
		"bill_street": "",
		"note":        &note,
	}, row)

	// Database-assigned identifiers are never part of the row.
	assert.NotContains(t, row, "id")
}

func TestRowValues_NilEmbeddedContributesNulls(t *testing.T) {
	reg := testRegistry(t)
	entity, err := reg.EntityOf((*order)(nil))
	require.NoError(t, err)

	value := reflect.ValueOf(&order{Ref: "bare"}).Elem()

	row, err := rowValues(reg, entity, value)
	require.NoError(t, err)

	// A nil embedded pointer still overwrites its columns, so updates
	// clear stale values.
	assert.Contains(t, row, "bill_city")
	assert.Nil(t, row["bill_city"])
	assert.Contains(t, row, "bill_street")
	assert.Nil(t, row["bill_street"])
	assert.Nil(t, row["note"])
}

func TestAssignUUID(t *testing.T) {
	t.Run("string identifier", func(t *testing.T) {
		type payment struct {
			ID string `rel:"id,pk,genuuid"`
		}
		reg := schema.NewRegistry()
		require.NoError(t, reg.Register((*payment)(nil)))
		entity, err := reg.EntityOf((*payment)(nil))
		require.NoError(t, err)

		value := reflect.ValueOf(&payment{}).Elem()
		require.NoError(t, assignUUID(entity.ID, value))

		id, parseErr := uuid.Parse(value.Interface().(payment).ID)
		require.NoError(t, parseErr)
		assert.NotEqual(t, uuid.Nil, id)
	})

	t.Run("uuid identifier", func(t *testing.T) {
		type payment struct {
			ID uuid.UUID `rel:"id,pk,genuuid"`
		}
		reg := schema.NewRegistry()
		require.NoError(t, reg.Register((*payment)(nil)))
		entity, err := reg.EntityOf((*payment)(nil))
		require.NoError(t, err)

		value := reflect.ValueOf(&payment{}).Elem()
		require.NoError(t, assignUUID(entity.ID, value))
		assert.NotEqual(t, uuid.Nil, value.Interface().(payment).ID)
	})

	t.Run("unsupported identifier type", func(t *testing.T) {
		type payment struct {
			ID int64 `rel:"id,pk,genuuid"`
		}
		reg := schema.NewRegistry()
		require.NoError(t, reg.Register((*payment)(nil)))
		entity, err := reg.EntityOf((*payment)(nil))
		require.NoError(t, err)

		value := reflect.ValueOf(&payment{}).Elem()
		assert.Error(t, assignUUID(entity.ID, value))
	})
}

func TestConvertColumn(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()

	tests := []struct {
		name     string
		value    any
		target   reflect.Type
		expected any
	}{
		{name: "identity", value: "abc", target: reflect.TypeOf(""), expected: "abc"},
		{name: "int64 to int", value: int64(7), target: reflect.TypeOf(int(0)), expected: 7},
		{name: "int64 to int16", value: int64(7), target: reflect.TypeOf(int16(0)), expected: int16(7)},
		{name: "int64 to uint32", value: int64(7), target: reflect.TypeOf(uint32(0)), expected: uint32(7)},
		{name: "float64 to float32", value: float64(1.5), target: reflect.TypeOf(float32(0)), expected: float32(1.5)},
		{name: "bytes to string", value: []byte("hi"), target: reflect.TypeOf(""), expected: "hi"},
		{name: "bool", value: true, target: reflect.TypeOf(false), expected: true},
		{name: "time passthrough", value: now, target: reflect.TypeOf(time.Time{}), expected: now},
		{name: "uuid via scanner", value: id.String(), target: reflect.TypeOf(uuid.UUID{}), expected: id},
		{name: "nil to zero", value: nil, target: reflect.TypeOf(int64(0)), expected: int64(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertColumn(tt.value, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Interface())
		})
	}
}

func TestConvertColumn_PointerTarget(t *testing.T) {
	got, err := convertColumn(int64(42), reflect.TypeOf((*int)(nil)))
	require.NoError(t, err)
	require.Equal(t, reflect.Pointer, got.Kind())
	assert.Equal(t, 42, got.Elem().Interface())
}

func TestConvertColumn_Unconvertible(t *testing.T) {
	_, err := convertColumn([]string{"a"}, reflect.TypeOf(struct{ X int }{}))
	assert.Error(t, err)
}
