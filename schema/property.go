package schema

import (
	"database/sql/driver"
	"reflect"
	"strings"
	"time"
)

// Kind classifies how a property is persisted.
type Kind int

const (
	// KindValue is a plain column value (primitive, time.Time, uuid, []byte, ...).
	KindValue Kind = iota
	// KindEmbedded is a struct whose columns are flattened into the owner's table.
	KindEmbedded
	// KindEntity is a single child entity stored in its own table.
	KindEntity
	// KindSlice is an ordered collection of child rows.
	KindSlice
	// KindMap is a keyed collection of child rows.
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindEmbedded:
		return "embedded"
	case KindEntity:
		return "entity"
	case KindSlice:
		return "slice"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Property describes one persistent field of an entity struct.
//
// Accessors are built once at registration time and reuse the captured
// field index on every call, so traversal never looks fields up by name.
type Property struct {
	// Name is the Go field name.
	Name string
	// Column is the column name without embedded prefixes.
	Column string
	// Kind classifies the persistence shape of the field.
	Kind Kind

	// PK marks the identifier property of the entity.
	PK bool
	// AutoIncrement marks a database-assigned identifier.
	AutoIncrement bool
	// GenUUID marks an application-assigned uuid identifier,
	// generated right before insert when zero.
	GenUUID bool
	// Unordered marks a slice that carries no ordering key column.
	Unordered bool

	// EmbeddedPrefix is prepended to the columns of an embedded struct.
	EmbeddedPrefix string
	// FKColumn overrides the derived reverse column on the child table.
	FKColumn string
	// KeyColumn overrides the derived ordering/map-key column.
	KeyColumn string

	fieldIndex int
	typ        reflect.Type // declared field type
	structType reflect.Type // entity/embedded struct type (pointers stripped), nil otherwise
	elemType   reflect.Type // element type for slices and maps
	keyType    reflect.Type // key type for maps
}

// Type returns the declared Go type of the field.
func (p *Property) Type() reflect.Type { return p.typ }

// StructType returns the struct type behind an entity, embedded or
// container-of-entity property, nil for plain values.
func (p *Property) StructType() reflect.Type { return p.structType }

// ElemType returns the element type for slice and map properties.
func (p *Property) ElemType() reflect.Type { return p.elemType }

// KeyType returns the key type for map properties.
func (p *Property) KeyType() reflect.Type { return p.keyType }

// Get reads the field from owner. The owner may be a struct or a
// pointer to one; pointers on the field itself are dereferenced, so an
// unset *Child comes back as an invalid reflect.Value.
func (p *Property) Get(owner reflect.Value) reflect.Value {
	v := indirect(owner)
	if !v.IsValid() {
		return reflect.Value{}
	}
	f := v.Field(p.fieldIndex)
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return reflect.Value{}
		}
		return f.Elem()
	}
	return f
}

// GetRaw reads the field without dereferencing pointer fields.
func (p *Property) GetRaw(owner reflect.Value) reflect.Value {
	v := indirect(owner)
	if !v.IsValid() {
		return reflect.Value{}
	}
	return v.Field(p.fieldIndex)
}

// Set writes value into the field of owner. The owner must be
// addressable (a pointer to the entity struct). Pointer fields are
// allocated on demand.
func (p *Property) Set(owner reflect.Value, value reflect.Value) {
	v := indirect(owner)
	f := v.Field(p.fieldIndex)
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			f.Set(reflect.New(f.Type().Elem()))
		}
		f = f.Elem()
	}
	f.Set(value.Convert(f.Type()))
}

// IsZero reports whether the field of owner holds its zero value.
// Used for new-aggregate detection on identifier properties.
func (p *Property) IsZero(owner reflect.Value) bool {
	f := p.GetRaw(owner)
	return !f.IsValid() || f.IsZero()
}

// isSimple reports whether t maps to a single column value.
func isSimple(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8 // []byte
	case reflect.Struct:
		return t == timeType || t.Implements(valuerType) || reflect.PointerTo(t).Implements(valuerType) ||
			(t.Kind() == reflect.Struct && isUUID(t))
	case reflect.Array:
		return isUUID(t)
	default:
		return false
	}
}

// isUUID matches [16]byte based uuid types (google/uuid and compatible).
func isUUID(t reflect.Type) bool {
	return (t.Kind() == reflect.Array && t.Len() == 16 && t.Elem().Kind() == reflect.Uint8) ||
		(t.Kind() == reflect.Struct && t.String() == "uuid.UUID")
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

var (
	timeType   = reflect.TypeOf(time.Time{})
	valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// relTag is the parsed form of a `rel:"..."` struct tag.
type relTag struct {
	skip    bool
	column  string
	options map[string]string
}

func parseRelTag(tag string) relTag {
	parsed := relTag{options: map[string]string{}}
	if tag == "-" {
		parsed.skip = true
		return parsed
	}

	for i, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, value, found := strings.Cut(part, ":"); found {
			parsed.options[name] = value
			continue
		}
		if i == 0 {
			parsed.column = part
			continue
		}
		parsed.options[part] = ""
	}

	return parsed
}

func (t relTag) has(option string) bool {
	_, ok := t.options[option]
	return ok
}
