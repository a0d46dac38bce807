package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Filters narrows a query to records whose fields hold one of the accepted
// values. Fields are combined with AND, the values of one field with OR.
//
//	Filters{"name": {"some", "more"}, "category": {"only_one"}}
//
// A field with an empty value list matches nothing.
type Filters map[string][]string

// Keys returns the filtered field names in sorted order.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty returns true if no field is filtered.
func (f Filters) IsEmpty() bool {
	return len(f) == 0
}

// Accepts reports whether value is one of the accepted values for field.
func (f Filters) Accepts(field string, value any) bool {
	rendered := FilterValue(value)
	for _, accepted := range f[field] {
		if accepted == rendered {
			return true
		}
	}
	return false
}

// Match reports whether the document satisfies every filtered field.
func (f Filters) Match(doc Document) bool {
	return f.match(doc.Field)
}

// MatchLabel reports whether the label satisfies every filtered field.
func (f Filters) MatchLabel(l Label) bool {
	return f.match(l.Field)
}

func (f Filters) match(field func(string) (any, bool)) bool {
	for name := range f {
		v, ok := field(name)
		if !ok || !f.Accepts(name, v) {
			return false
		}
	}
	return true
}

// Without returns a copy of the filters minus the named fields.
func (f Filters) Without(fields ...string) Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	for _, name := range fields {
		delete(out, name)
	}
	return out
}

// Only returns a copy holding just the named fields that are filtered.
func (f Filters) Only(fields ...string) Filters {
	out := make(Filters)
	for _, name := range fields {
		if v, ok := f[name]; ok {
			out[name] = v
		}
	}
	return out
}

// FilterValue renders a field value for comparison with filter values.
// Integral floats render without a fraction so JSON numbers match "42".
func FilterValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return FilterValue(float64(t))
	default:
		return fmt.Sprint(v)
	}
}

// ParseFilters parses "field=value" pairs. Repeated fields accumulate values.
func ParseFilters(pairs []string) (Filters, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(Filters)
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: filter %q, expected field=value", ErrInvalidArgument, pair)
		}
		filters[field] = append(filters[field], value)
	}
	return filters, nil
}
