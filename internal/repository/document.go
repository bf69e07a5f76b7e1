package repository

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// IDField is the stable external identifier every stored document carries.
const IDField = "id"

// Document is one stored record: field name to JSON-compatible value.
type Document map[string]any

// Filter selects documents by equality on top-level fields. An empty filter
// matches every document.
type Filter map[string]any

// ByID returns a filter matching the document with the given id.
func ByID(id string) Filter {
	return Filter{IDField: id}
}

// ID returns the document's id, or "" when missing or not a string.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Clone returns a deep copy of d. Nested maps and slices are copied so the
// caller can never mutate stored state.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge overwrites the top-level fields of patch onto d, skipping "id".
func (d Document) Merge(patch Document) {
	for k, v := range patch {
		if k == IDField {
			continue
		}
		d[k] = cloneValue(v)
	}
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(Document(val).Clone())
	case Document:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Keys returns the filter's field names in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IDOnly reports whether the filter selects by id and nothing else.
func (f Filter) IDOnly() (string, bool) {
	if len(f) != 1 {
		return "", false
	}
	id, ok := f[IDField].(string)
	return id, ok
}

// Matches reports whether doc satisfies every equality in the filter.
// A nil filter value matches a missing or null field.
func (f Filter) Matches(doc Document) bool {
	for k, want := range f {
		got, ok := doc[k]
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// ValidateField rejects field names no backend can store or query safely.
func ValidateField(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty field name", ErrInvalidInput)
	case strings.HasPrefix(name, "$"):
		return fmt.Errorf("%w: field %q starts with '$'", ErrInvalidInput, name)
	case strings.ContainsAny(name, ".\"\x00"):
		return fmt.Errorf("%w: field %q contains a reserved character", ErrInvalidInput, name)
	}
	return nil
}

// ValidateDocument checks every top-level field name of doc.
func ValidateDocument(doc Document) error {
	for k := range doc {
		if err := ValidateField(k); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFilter checks field names and rejects non-scalar values.
func ValidateFilter(f Filter) error {
	for k, v := range f {
		if err := ValidateField(k); err != nil {
			return err
		}
		switch v.(type) {
		case nil, string, bool, int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("%w: filter on %q must be a scalar, got %T", ErrInvalidInput, k, v)
		}
	}
	return nil
}
