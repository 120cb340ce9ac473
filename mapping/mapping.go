// ABOUTME: Declarative field mapping between canonical records and provider-native shapes
// ABOUTME: A Table applies per-field transforms in the direction a field is allowed to flow
package mapping

import (
	"reflect"
	"strings"
	"time"

	"github.com/harperreed/crmsync/models"
)

// Fields is a canonical record as a flat attribute map.
type Fields map[string]any

// TransformFunc converts one value. It must be total: a value it cannot
// convert yields nil, which drops the field from the output.
type TransformFunc func(any) any

// FieldMapping binds one canonical attribute to one provider attribute.
// Provider may be a dotted path (Account.Name) for nested read-only values.
type FieldMapping struct {
	Canonical string
	Provider  string
	Direction models.Direction
	ToCRM     TransformFunc
	FromCRM   TransformFunc
}

// Table is the mapping set for one provider and object type.
type Table struct {
	Provider models.Provider
	Object   models.ObjectType
	Mappings []FieldMapping
}

// NewTable builds a Table. Mappings without a direction are bidirectional.
func NewTable(provider models.Provider, object models.ObjectType, mappings ...FieldMapping) *Table {
	for i := range mappings {
		if mappings[i].Direction == "" {
			mappings[i].Direction = models.DirectionBidirectional
		}
	}
	return &Table{Provider: provider, Object: object, Mappings: mappings}
}

// ToCRM translates canonical fields into the provider's native attributes.
// Empty canonical values are skipped so partial updates never blank a field.
func (t *Table) ToCRM(fields Fields) map[string]any {
	out := make(map[string]any)
	for _, m := range t.Mappings {
		if !m.Direction.IncludesToCRM() {
			continue
		}
		v, ok := fields[m.Canonical]
		if !ok || IsEmpty(v) {
			continue
		}
		if m.ToCRM != nil {
			v = m.ToCRM(v)
		}
		if IsEmpty(v) {
			continue
		}
		out[m.Provider] = v
	}
	return out
}

// FromCRM translates provider-native attributes into canonical fields.
func (t *Table) FromCRM(native map[string]any) Fields {
	out := make(Fields)
	for _, m := range t.Mappings {
		if !m.Direction.IncludesFromCRM() {
			continue
		}
		v, ok := lookup(native, m.Provider)
		if !ok || IsEmpty(v) {
			continue
		}
		if m.FromCRM != nil {
			v = m.FromCRM(v)
		}
		if IsEmpty(v) {
			continue
		}
		out[m.Canonical] = v
	}
	return out
}

// ProviderField returns the native attribute mapped to canonical, if any.
func (t *Table) ProviderField(canonical string) (string, bool) {
	for _, m := range t.Mappings {
		if m.Canonical == canonical {
			return m.Provider, true
		}
	}
	return "", false
}

// ProviderFields lists the native attributes read in the from_crm direction,
// in table order. Providers use it to build field selections.
func (t *Table) ProviderFields() []string {
	var out []string
	for _, m := range t.Mappings {
		if m.Direction.IncludesFromCRM() {
			out = append(out, m.Provider)
		}
	}
	return out
}

func lookup(native map[string]any, path string) (any, bool) {
	if v, ok := native[path]; ok {
		return v, true
	}

	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		return nil, false
	}

	var cur any = native
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// IsEmpty reports whether v carries no information worth sending.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case time.Time:
		return val.IsZero()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}
