package message

import (
	"encoding/json"
)

// Deserialize walks v and replaces every string that holds a JSON object or
// array with its decoded form, recursively. Strings holding JSON scalars, or
// not holding JSON at all, are left as they are.
func Deserialize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Deserialize(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Deserialize(child)
		}
		return out
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err != nil {
			return t
		}
		switch decoded.(type) {
		case map[string]any, []any:
			return Deserialize(decoded)
		default:
			return t
		}
	default:
		return v
	}
}
