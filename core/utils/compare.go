package utils

import (
	"bytes"
	"encoding/json"
)

// Canonical returns a stable JSON encoding of val. Map keys are sorted and
// numbers of equal value encode identically regardless of their Go type.
func Canonical(val any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalizeTree(val)); err != nil {
		return ToString(val)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// Equal reports whether a and b have the same canonical encoding.
func Equal(a, b any) bool {
	return Canonical(a) == Canonical(b)
}

func normalizeTree(val any) any {
	switch v := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalizeTree(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeTree(item)
		}
		return out
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		if f, ok := ToFloat(v); ok {
			if _, isString := v.(string); !isString {
				if _, isBytes := v.([]byte); !isBytes {
					return f
				}
			}
		}
		return NormalizeValue(v)
	}
}
