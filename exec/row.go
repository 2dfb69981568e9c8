package exec

import (
	"reflect"

	"github.com/rise-and-shine/aggregate/schema"
)

// elementValueColumn holds simple container elements (e.g. []string),
// which have no entity metadata and therefore no mapped columns.
const elementValueColumn = "value"

// rowValues flattens one entity value into a column -> value map.
// Embedded structs contribute their columns under the configured
// prefix; a nil embedded pointer still contributes explicit NULLs so
// that updates overwrite stale columns. Database-assigned identifiers
// are never included: cascaded re-inserts receive fresh ones.
func rowValues(reg *schema.Registry, entity *schema.Entity, value reflect.Value) (map[string]any, error) {
	row := make(map[string]any, len(entity.Properties))
	if err := appendColumns(reg, row, entity, value, ""); err != nil {
		return nil, err
	}
	return row, nil
}

func appendColumns(reg *schema.Registry, row map[string]any, entity *schema.Entity, value reflect.Value, prefix string) error {
	for _, prop := range entity.Properties {
		switch prop.Kind {
		case schema.KindValue:
			if prop.PK && prop.AutoIncrement {
				continue
			}
			row[prefix+prop.Column] = columnValue(prop, value)

		case schema.KindEmbedded:
			nested, err := reg.Entity(prop.StructType())
			if err != nil {
				return err
			}
			nestedValue := reflect.Value{}
			if value.IsValid() {
				nestedValue = prop.Get(value)
			}
			if err := appendColumns(reg, row, nested, nestedValue, prefix+prop.EmbeddedPrefix); err != nil {
				return err
			}
		}
	}
	return nil
}

func columnValue(prop *schema.Property, owner reflect.Value) any {
	if !owner.IsValid() {
		return nil
	}
	v := prop.GetRaw(owner)
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil
	}
	return v.Interface()
}
