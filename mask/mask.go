// Package mask hides sensitive struct fields before they are logged.
// Aggregates and config structs tag secrets with `mask:"true"`; the
// rest of the struct is flattened into an ordered map so log output
// keeps the declaration order of fields.
package mask

import (
	"fmt"
	"reflect"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const tagName = "mask"

// nameTags lists the struct tags consulted for display names, in
// priority order. rel is last so aggregate roots log under the same
// names their columns use.
var nameTags = []string{"json", "yaml", "rel"}

// StructToOrdMap returns an ordered map of fields with sensitive values masked.
// Fields tagged with `mask:"true"` have their values replaced; fields
// tagged "-" in any of the name tags are omitted entirely.
func StructToOrdMap(v any) *orderedmap.OrderedMap[string, any] {
	if v == nil {
		return nil
	}
	return maskToOrdMap(reflect.ValueOf(v), "")
}

func maskToOrdMap(val reflect.Value, prefix string) *orderedmap.OrderedMap[string, any] {
	if val.Kind() == reflect.Pointer {
		if val.IsNil() {
			om := orderedmap.New[string, any]()
			om.Set(prefix, nil)
			return om
		}
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		om := orderedmap.New[string, any]()
		om.Set(prefix, val.Interface())
		return om
	}

	om := orderedmap.New[string, any]()
	typ := val.Type()

	for i := range val.NumField() {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !fieldType.IsExported() {
			continue
		}

		fieldName, skip := displayName(fieldType)
		if skip {
			continue
		}

		name := fieldName
		if prefix != "" {
			name = prefix + "." + name
		}

		switch {
		case shouldMask(fieldType):
			om.Set(name, maskValue(field))
		case isExpandable(field):
			nested := maskToOrdMap(field, name)
			for pair := nested.Oldest(); pair != nil; pair = pair.Next() {
				om.Set(pair.Key, pair.Value)
			}
		default:
			om.Set(name, field.Interface())
		}
	}

	return om
}

func isExpandable(val reflect.Value) bool {
	kind := val.Kind()
	if kind == reflect.Pointer {
		if val.IsNil() {
			return false
		}
		kind = val.Elem().Kind()
	}
	return kind == reflect.Struct
}

func shouldMask(field reflect.StructField) bool {
	return strings.EqualFold(field.Tag.Get(tagName), "true")
}

func maskValue(val reflect.Value) any {
	switch val.Kind() { //nolint:exhaustive // Default case handles remaining types
	case reflect.Pointer:
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	case reflect.Slice, reflect.Map:
		if val.IsNil() {
			return nil
		}
	}

	// Zero values carry no secret worth hiding.
	if val.IsZero() {
		return val.Interface()
	}

	return maskByKind(val)
}

func maskByKind(val reflect.Value) any {
	//nolint:exhaustive // Default case handles remaining types
	switch val.Kind() {
	case reflect.String:
		return "***masked-string***"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "***masked-int***"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "***masked-uint***"
	case reflect.Float32, reflect.Float64:
		return "***masked-float***"
	case reflect.Bool:
		return "***masked-bool***"
	case reflect.Struct:
		return "***masked-struct***"
	case reflect.Slice, reflect.Array:
		return "***masked-slice***"
	case reflect.Map:
		return "***masked-map***"
	default:
		return fmt.Sprintf("***masked-%s***", val.Kind())
	}
}

// displayName picks the logged name of a field from its tags, falling
// back to the Go field name. It reports skip for fields tagged "-".
func displayName(field reflect.StructField) (string, bool) {
	for _, tag := range nameTags {
		value, ok := field.Tag.Lookup(tag)
		if !ok {
			continue
		}
		if value == "-" {
			return "", true
		}
		name := strings.SplitN(value, ",", 2)[0]
		if name != "" && !strings.Contains(name, ":") {
			return name, false
		}
	}
	return field.Name, false
}
