// Package auth validates API keys in constant time against a
// prefix-indexed hash store (C5, credential half).
package auth

// ApiKey is a credential row. The raw secret is never stored: only its
// prefix (for indexed lookup) and hash (for comparison).
type ApiKey struct {
	ID        string
	EnvID     string
	KeyPrefix string
	KeyHash   string
	// HashAlgo is "sha256" (spec's normative constant-time fast path) or
	// "argon2id" (an additive alternate for operator-provisioned keys
	// hashed with higher cost; see SPEC_FULL DOMAIN STACK).
	HashAlgo string
	// RevokedAt is nil for an active key.
	RevokedAt *int64 // epoch millis
}

// Revoked reports whether the key has been revoked.
func (k *ApiKey) Revoked() bool {
	return k.RevokedAt != nil
}
