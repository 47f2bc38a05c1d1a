// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/sentinelpolicy/policygate/internal/domain/auth"
)

// AuthStore implements auth.Store with an in-memory, prefix-indexed map.
// Thread-safe for concurrent access; development/test implementation of
// the credential half of C5.
type AuthStore struct {
	mu   sync.Mutex
	keys map[string][]*auth.ApiKey // prefix -> candidate rows, any env
}

// NewAuthStore creates an empty in-memory auth store.
func NewAuthStore() *AuthStore {
	return &AuthStore{keys: make(map[string][]*auth.ApiKey)}
}

// CandidatesByPrefix implements auth.Store.
func (s *AuthStore) CandidatesByPrefix(ctx context.Context, keyPrefix string, maxCandidates int) ([]*auth.ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.keys[keyPrefix]
	if len(rows) > maxCandidates {
		rows = rows[:maxCandidates]
	}
	out := make([]*auth.ApiKey, len(rows))
	for i, k := range rows {
		cp := *k
		out[i] = &cp
	}
	return out, nil
}

// AddKey registers an API key row for lookup (for seeding/testing).
func (s *AuthStore) AddKey(key *auth.ApiKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *key
	s.keys[key.KeyPrefix] = append(s.keys[key.KeyPrefix], &cp)
}

// Compile-time interface verification.
var _ auth.Store = (*AuthStore)(nil)
