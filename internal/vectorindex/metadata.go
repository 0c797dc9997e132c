package vectorindex

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// FlattenMetadata reduces each top-level value of meta to the
// primitive-only shape Qdrant's payload accepts: strings, ints, floats, and
// bools. Per §4.H: null/empty-sequence values are dropped, sequences are
// joined with " > ", enums and timestamps are stringified, and any
// remaining complex type falls back to fmt.Sprintf("%v", ...). Nested maps
// are not traversed: a non-empty map value is stringified whole.
func FlattenMetadata(meta map[string]interface{}) map[string]interface{} {
	flat := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		fv, keep := flattenValue(v)
		if !keep {
			continue
		}
		flat[k] = fv
	}
	return flat
}

func flattenValue(v interface{}) (interface{}, bool) {
	if v == nil {
		return nil, false
	}

	switch tv := v.(type) {
	case string:
		return tv, true
	case int, int32, int64, float32, float64, bool:
		return tv, true
	case time.Time:
		return tv.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		return tv.String(), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return nil, false
		}
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, fmt.Sprintf("%v", rv.Index(i).Interface()))
		}
		return strings.Join(parts, " > "), true
	case reflect.Map:
		if rv.Len() == 0 {
			return nil, false
		}
		return fmt.Sprintf("%v", v), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}
