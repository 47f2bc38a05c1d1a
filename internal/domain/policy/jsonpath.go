package policy

import "strings"

// resolveJSONPath resolves a dot-separated path against payload. Traversal
// fails (returns ok=false) on a nil value, a non-object intermediate, or an
// absent key. Arrays are not indexable by numeric segments in v1.
func resolveJSONPath(payload map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var cur any = payload
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok || m == nil {
			return nil, false
		}
		v, present := m[seg]
		if !present {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
