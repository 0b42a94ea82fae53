package attrs

import "fmt"

// ExtractString extracts a value from a key-value attribute slice as a string.
// The slice should be formatted as [key1, value1, key2, value2, ...].
// Typed identifiers are rendered through fmt.Stringer. Returns empty string if
// the key is not found or the value has no string form.
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		switch v := attrs[i+1].(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		}
	}
	return ""
}
