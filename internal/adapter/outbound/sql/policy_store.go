package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelpolicy/policygate/internal/domain/policy"
)

// PolicyStore implements policy.Store against the sqlite schema (C3).
type PolicyStore struct {
	db *sql.DB
}

// NewPolicyStore wraps db as a policy.Store.
func NewPolicyStore(db *DB) *PolicyStore {
	return &PolicyStore{db: db.conn}
}

// CreateDraft implements policy.Store.
func (s *PolicyStore) CreateDraft(ctx context.Context, envID, name string) (*policy.PolicyRecord, error) {
	rec := &policy.PolicyRecord{
		ID:      uuid.NewString(),
		EnvID:   envID,
		Name:    name,
		Version: 0,
		Status:  policy.StatusDraft,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy_records (id, env_id, name, version, status, spec_json, hash)
		VALUES (?, ?, ?, 0, 'draft', '{}', '')`,
		rec.ID, rec.EnvID, rec.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("sql: create draft: %w", err)
	}
	return rec, nil
}

// SaveDraft implements policy.Store.
func (s *PolicyStore) SaveDraft(ctx context.Context, id string, spec policy.PolicySpec) ([]policy.ValidationError, error) {
	if errs := policy.Validate(spec); len(errs) > 0 {
		return errs, nil
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("sql: marshal spec: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE policy_records SET spec_json = ? WHERE id = ?`, string(specJSON), id)
	if err != nil {
		return nil, fmt.Errorf("sql: save draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, policy.ErrNotFound
	}
	return nil, nil
}

// Publish implements policy.Store: the version increment and publication
// flag move together inside one transaction, so a concurrent publish on the
// same policy id serializes on sqlite's single writer rather than racing.
func (s *PolicyStore) Publish(ctx context.Context, id string, publishedBy string) (*policy.PolicyRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sql: begin publish: %w", err)
	}
	defer tx.Rollback()

	var envID, name, specJSON string
	var version int64
	err = tx.QueryRowContext(ctx, `SELECT env_id, name, version, spec_json FROM policy_records WHERE id = ?`, id).
		Scan(&envID, &name, &version, &specJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, policy.ErrNotFound
		}
		return nil, fmt.Errorf("sql: load draft: %w", err)
	}

	var spec policy.PolicySpec
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		return nil, fmt.Errorf("sql: unmarshal spec: %w", err)
	}
	if errs := policy.Validate(spec); len(errs) > 0 {
		return nil, policy.ErrInvalidSpec(errs)
	}
	hash, err := policy.Hash(spec)
	if err != nil {
		return nil, err
	}

	newVersion := version + 1
	now := time.Now().UTC().UnixMilli()

	if _, err := tx.ExecContext(ctx, `
		UPDATE policy_records SET version = ?, status = 'published', hash = ?, published_at = ?
		WHERE id = ?`, newVersion, hash, now, id,
	); err != nil {
		return nil, fmt.Errorf("sql: mark published: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO policy_versions (policy_id, version, spec_json, hash, published_at, published_by)
		VALUES (?, ?, ?, ?, ?, ?)`, id, newVersion, specJSON, hash, now, publishedBy,
	); err != nil {
		return nil, fmt.Errorf("sql: insert version: %w", err)
	}

	// Archive any previously-published policy for this env so GetPublished's
	// (env_id, status='published') lookup resolves to exactly one row.
	if _, err := tx.ExecContext(ctx, `
		UPDATE policy_records SET status = 'archived'
		WHERE env_id = ? AND id != ? AND status = 'published'`, envID, id,
	); err != nil {
		return nil, fmt.Errorf("sql: archive prior published: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sql: commit publish: %w", err)
	}

	return &policy.PolicyRecord{
		ID: id, EnvID: envID, Name: name, Version: newVersion,
		Status: policy.StatusPublished, Spec: spec, Hash: hash, PublishedAt: &now,
	}, nil
}

// GetPublished implements policy.Store.
func (s *PolicyStore) GetPublished(ctx context.Context, envID string) (*policy.PolicyRecord, error) {
	var rec policy.PolicyRecord
	var specJSON string
	var publishedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, env_id, name, version, status, spec_json, hash, published_at
		FROM policy_records WHERE env_id = ? AND status = 'published'
		ORDER BY version DESC LIMIT 1`, envID,
	).Scan(&rec.ID, &rec.EnvID, &rec.Name, &rec.Version, &rec.Status, &specJSON, &rec.Hash, &publishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, policy.ErrNotFound
		}
		return nil, fmt.Errorf("sql: get published: %w", err)
	}
	if err := json.Unmarshal([]byte(specJSON), &rec.Spec); err != nil {
		return nil, fmt.Errorf("sql: unmarshal spec: %w", err)
	}
	if publishedAt.Valid {
		rec.PublishedAt = &publishedAt.Int64
	}
	return &rec, nil
}

// GetByIDAndVersion implements policy.Store.
func (s *PolicyStore) GetByIDAndVersion(ctx context.Context, policyID string, version int64) (*policy.PolicyVersionRecord, error) {
	var rec policy.PolicyVersionRecord
	var specJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT policy_id, version, spec_json, hash, published_at, published_by
		FROM policy_versions WHERE policy_id = ? AND version = ?`, policyID, version,
	).Scan(&rec.PolicyID, &rec.Version, &specJSON, &rec.Hash, &rec.PublishedAt, &rec.PublishedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, policy.ErrNotFound
		}
		return nil, fmt.Errorf("sql: get version: %w", err)
	}
	if err := json.Unmarshal([]byte(specJSON), &rec.Spec); err != nil {
		return nil, fmt.Errorf("sql: unmarshal spec: %w", err)
	}
	return &rec, nil
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)
