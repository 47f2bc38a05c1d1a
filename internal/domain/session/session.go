package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateID creates a cryptographically random session row identifier:
// 64 hex characters (32 bytes) from crypto/rand.
func GenerateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
