package schema

import (
	"fmt"
	"reflect"

	"github.com/code19m/errx"
)

// BaseEntity is an optional marker that can be embedded into entity
// structs to override the derived table name:
//
//	type Order struct {
//	    schema.BaseEntity `rel:"table:purchase_orders"`
//	    ID int64 `rel:"id,pk,autoincrement"`
//	}
type BaseEntity struct{}

var baseEntityType = reflect.TypeOf(BaseEntity{})

// Entity is the relational description of one Go struct type.
type Entity struct {
	// Type is the described struct type.
	Type reflect.Type
	// Table is the table the entity's rows live in.
	Table string
	// Properties holds the persistent properties in declaration order.
	Properties []*Property

	// ID is the identifier property, nil for identifier-less child entities.
	ID *Property

	byName map[string]*Property
}

// Name returns the Go type name of the entity.
func (e *Entity) Name() string { return e.Type.Name() }

// Property returns the named property or nil.
func (e *Entity) Property(name string) *Property {
	return e.byName[name]
}

// IsNew reports whether value represents a never-persisted aggregate,
// which is the case when its identifier holds the zero value.
// Entities without an identifier property are always considered new.
func (e *Entity) IsNew(value reflect.Value) bool {
	if e.ID == nil {
		return true
	}
	return e.ID.IsZero(value)
}

// IDValue returns the identifier of value as a plain interface value.
func (e *Entity) IDValue(value reflect.Value) any {
	if e.ID == nil {
		return nil
	}
	v := e.ID.GetRaw(value)
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// newEntity builds the Entity metadata for t. Only struct shapes are
// accepted; everything else is an INVALID_SCHEMA configuration error.
func newEntity(t reflect.Type) (*Entity, error) {
	if t.Kind() != reflect.Struct {
		return nil, errx.New(
			fmt.Sprintf("entity type must be a struct, got %s", t),
			errx.WithCode(CodeInvalidSchema),
		)
	}

	e := &Entity{
		Type:   t,
		Table:  SnakeCase(t.Name()),
		byName: map[string]*Property{},
	}

	for i := range t.NumField() {
		field := t.Field(i)

		if field.Type == baseEntityType {
			tag := parseRelTag(field.Tag.Get("rel"))
			if table, ok := tag.options["table"]; ok && table != "" {
				e.Table = table
			}
			continue
		}

		if !field.IsExported() {
			continue
		}

		prop, err := newProperty(t, field, i)
		if err != nil {
			return nil, err
		}
		if prop == nil {
			continue
		}

		e.Properties = append(e.Properties, prop)
		e.byName[prop.Name] = prop

		if prop.PK {
			if e.ID != nil {
				return nil, errx.New(
					fmt.Sprintf("entity %s declares more than one identifier property", t.Name()),
					errx.WithCode(CodeInvalidSchema),
				)
			}
			e.ID = prop
		}
	}

	return e, nil
}

func newProperty(owner reflect.Type, field reflect.StructField, index int) (*Property, error) {
	tag := parseRelTag(field.Tag.Get("rel"))
	if tag.skip {
		return nil, nil
	}

	prop := &Property{
		Name:       field.Name,
		Column:     tag.column,
		fieldIndex: index,
		typ:        field.Type,
	}
	if prop.Column == "" {
		prop.Column = SnakeCase(field.Name)
	}

	prop.PK = tag.has("pk")
	prop.AutoIncrement = tag.has("autoincrement")
	prop.GenUUID = tag.has("genuuid")
	prop.Unordered = tag.has("unordered")
	prop.FKColumn = tag.options["fk"]
	prop.KeyColumn = tag.options["key"]

	ft := field.Type
	if ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}

	switch {
	case tag.has("embedded"):
		if ft.Kind() != reflect.Struct {
			return nil, errx.New(
				fmt.Sprintf("embedded property %s.%s must be a struct, got %s", owner.Name(), field.Name, ft),
				errx.WithCode(CodeInvalidSchema),
			)
		}
		prop.Kind = KindEmbedded
		prop.structType = ft
		prop.EmbeddedPrefix = tag.options["embedded"]

	case isSimple(ft):
		prop.Kind = KindValue

	case ft.Kind() == reflect.Struct:
		prop.Kind = KindEntity
		prop.structType = ft

	case ft.Kind() == reflect.Slice:
		prop.Kind = KindSlice
		prop.elemType = ft.Elem()
		if st := structBehind(ft.Elem()); st != nil {
			prop.structType = st
		}

	case ft.Kind() == reflect.Map:
		prop.Kind = KindMap
		prop.keyType = ft.Key()
		prop.elemType = ft.Elem()
		if st := structBehind(ft.Elem()); st != nil {
			prop.structType = st
		}

	default:
		return nil, errx.New(
			fmt.Sprintf("unsupported property shape %s.%s (%s)", owner.Name(), field.Name, field.Type),
			errx.WithCode(CodeInvalidSchema),
		)
	}

	if prop.PK && prop.Kind != KindValue {
		return nil, errx.New(
			fmt.Sprintf("identifier property %s.%s must be a plain value", owner.Name(), field.Name),
			errx.WithCode(CodeInvalidSchema),
		)
	}

	return prop, nil
}

// structBehind returns the entity struct type behind t, stripping one
// level of pointer, or nil when t is a simple column value.
func structBehind(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct && !isSimple(t) {
		return t
	}
	return nil
}
