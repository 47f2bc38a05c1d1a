package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize renders a PolicySpec as JSON with object keys sorted
// lexicographically at every depth. Round-tripping through encoding/json
// first normalizes the value shape (map ordering, number formatting, field
// omission), then appendCanonical writes every object's keys in sorted order.
func Canonicalize(spec PolicySpec) ([]byte, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("policy: marshal spec: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("policy: unmarshal for canonicalization: %w", err)
	}
	var buf []byte
	buf, err = appendCanonical(buf, v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Hash returns the hex SHA-256 of the canonical serialization of spec.
func Hash(spec PolicySpec) (string, error) {
	canon, err := Canonicalize(spec)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

func appendCanonical(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			var err2 error
			buf, err2 = appendCanonical(buf, val[k])
			if err2 != nil {
				return nil, err2
			}
		}
		buf = append(buf, '}')
		return buf, nil
	case []any:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendCanonical(buf, item)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
		return buf, nil
	}
}
