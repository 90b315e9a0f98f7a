// Package canon flattens nested records into the scalar-or-JSON-text column
// shape the raw landing tables accept, and holds the shared natural-key helpers
package canon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Flatten returns a copy of rec with every nested mapping or sequence encoded
// as JSON text and every time.Time encoded as ISO-8601 UTC text. Scalars pass
// through unchanged. The input is not modified
func Flatten(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = flattenValue(v)
	}
	return out
}

func flattenValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, json.Number:
		return v
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			// unmarshalable values degrade to their Go string form
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Str renders a scalar as its row-key text form. Numbers print without an
// exponent or trailing zeros so float64-decoded JSON ids stay stable
func Str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// First returns the text form of the first key in keys whose value is present
// and non-empty
func First(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := rec[k]; ok {
			if s := Str(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// Nested walks a path of nested mappings and returns the value at the end,
// or nil when any hop is missing or not a mapping
func Nested(rec map[string]any, path ...string) any {
	var cur any = rec
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}
