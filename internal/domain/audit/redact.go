package audit

import (
	"regexp"
	"strings"
)

// sensitiveKeywords lists substrings that mark a key as sensitive
// (case-insensitive containment match). Grounded on the teacher's
// isSensitiveKey keyword list, extended per spec §4.8's fuller set.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "bearer", "ssn", "social_security",
	"card", "cvv", "cvc", "private_key", "privatekey", "cookie", "jwt",
}

var (
	ccPattern  = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
	ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{9}\b`)
	jwtPattern = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)
)

const redacted = "[REDACTED]"

// Redact deep-clones payload and scrubs sensitive fields and patterns,
// never mutating the original (spec §4.8). A key is sensitive if its
// lowercase form equals or contains any sensitiveKeywords entry; its value
// becomes redacted regardless of type. Non-sensitive string leaves are
// checked against value-based patterns (credit-card-shaped, SSN-shaped,
// JWT-shaped) independently of key name.
func Redact(payload map[string]any) map[string]any {
	return redactObject(payload).(map[string]any)
}

func redactObject(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			if isSensitiveKey(k) {
				out[k] = redacted
				continue
			}
			out[k] = redactObject(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactObject(item)
		}
		return out
	case string:
		return redactString(val)
	default:
		return val
	}
}

func redactString(s string) string {
	if jwtPattern.MatchString(s) {
		return jwtPattern.ReplaceAllString(s, "[REDACTED:JWT]")
	}
	if ssnPattern.MatchString(s) {
		s = ssnPattern.ReplaceAllString(s, "[REDACTED:SSN]")
	}
	if ccPattern.MatchString(s) {
		s = ccPattern.ReplaceAllString(s, "[REDACTED:CC]")
	}
	return s
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
