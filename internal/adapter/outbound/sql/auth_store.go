package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sentinelpolicy/policygate/internal/domain/auth"
)

// AuthStore implements auth.Store against the sqlite schema (C5, credential half).
type AuthStore struct {
	db *sql.DB
}

// NewAuthStore wraps db as an auth.Store.
func NewAuthStore(db *DB) *AuthStore {
	return &AuthStore{db: db.conn}
}

// CandidatesByPrefix implements auth.Store: at most maxCandidates
// non-revoked rows for keyPrefix, left for the caller to compare in
// constant time. Lookup is global on keyPrefix per spec §6's index;
// env_id is not known until a candidate's hash matches.
func (s *AuthStore) CandidatesByPrefix(ctx context.Context, keyPrefix string, maxCandidates int) ([]*auth.ApiKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, env_id, key_prefix, key_hash, hash_algo, revoked_at
		FROM api_keys
		WHERE key_prefix = ? AND revoked_at IS NULL
		LIMIT ?`, keyPrefix, maxCandidates,
	)
	if err != nil {
		return nil, fmt.Errorf("sql: load candidates: %w", err)
	}
	defer rows.Close()

	var out []*auth.ApiKey
	for rows.Next() {
		var k auth.ApiKey
		var revokedAt sql.NullInt64
		if err := rows.Scan(&k.ID, &k.EnvID, &k.KeyPrefix, &k.KeyHash, &k.HashAlgo, &revokedAt); err != nil {
			return nil, fmt.Errorf("sql: scan candidate: %w", err)
		}
		if revokedAt.Valid {
			k.RevokedAt = &revokedAt.Int64
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

// InsertKey provisions a new ApiKey row — used by the hash-key operator
// command's non-interactive seeding path, not part of the decision path.
func (s *AuthStore) InsertKey(ctx context.Context, key *auth.ApiKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, env_id, key_prefix, key_hash, hash_algo)
		VALUES (?, ?, ?, ?, ?)`,
		key.ID, key.EnvID, key.KeyPrefix, key.KeyHash, key.HashAlgo,
	)
	if err != nil {
		return fmt.Errorf("sql: insert api key: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var _ auth.Store = (*AuthStore)(nil)
