package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelpolicy/policygate/internal/domain/policy"
)

// PolicyStore implements policy.Store with in-memory maps. Thread-safe for
// concurrent access; development/test implementation of C3.
type PolicyStore struct {
	mu        sync.Mutex
	records   map[string]*policy.PolicyRecord           // id -> record (current draft/published state)
	versions  map[string]map[int64]*policy.PolicyVersionRecord // policyId -> version -> immutable record
	published map[string]string                          // envId -> policyId currently published
}

// NewPolicyStore creates an empty in-memory policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		records:   make(map[string]*policy.PolicyRecord),
		versions:  make(map[string]map[int64]*policy.PolicyVersionRecord),
		published: make(map[string]string),
	}
}

// CreateDraft implements policy.Store.
func (s *PolicyStore) CreateDraft(ctx context.Context, envID, name string) (*policy.PolicyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &policy.PolicyRecord{
		ID:      uuid.NewString(),
		EnvID:   envID,
		Name:    name,
		Version: 0,
		Status:  policy.StatusDraft,
	}
	s.records[rec.ID] = rec
	return copyRecord(rec), nil
}

// SaveDraft implements policy.Store.
func (s *PolicyStore) SaveDraft(ctx context.Context, id string, spec policy.PolicySpec) ([]policy.ValidationError, error) {
	if errs := policy.Validate(spec); len(errs) > 0 {
		return errs, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, policy.ErrNotFound
	}
	rec.Spec = spec
	return nil, nil
}

// Publish implements policy.Store.
func (s *PolicyStore) Publish(ctx context.Context, id string, publishedBy string) (*policy.PolicyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, policy.ErrNotFound
	}
	if errs := policy.Validate(rec.Spec); len(errs) > 0 {
		return nil, policy.ErrInvalidSpec(errs)
	}
	hash, err := policy.Hash(rec.Spec)
	if err != nil {
		return nil, err
	}

	rec.Version++
	rec.Status = policy.StatusPublished
	rec.Hash = hash
	now := time.Now().UTC().UnixMilli()
	rec.PublishedAt = &now

	if s.versions[rec.ID] == nil {
		s.versions[rec.ID] = make(map[int64]*policy.PolicyVersionRecord)
	}
	s.versions[rec.ID][rec.Version] = &policy.PolicyVersionRecord{
		PolicyID:    rec.ID,
		Version:     rec.Version,
		Spec:        rec.Spec,
		Hash:        hash,
		PublishedAt: now,
		PublishedBy: publishedBy,
	}
	s.published[rec.EnvID] = rec.ID

	return copyRecord(rec), nil
}

// GetPublished implements policy.Store: the highest-versioned published
// policy for envID.
func (s *PolicyStore) GetPublished(ctx context.Context, envID string) (*policy.PolicyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.published[envID]
	if !ok {
		return nil, policy.ErrNotFound
	}
	rec, ok := s.records[id]
	if !ok || rec.Status != policy.StatusPublished {
		return nil, policy.ErrNotFound
	}
	return copyRecord(rec), nil
}

// GetByIDAndVersion implements policy.Store: the exact immutable spec.
func (s *PolicyStore) GetByIDAndVersion(ctx context.Context, policyID string, version int64) (*policy.PolicyVersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.versions[policyID]
	if !ok {
		return nil, policy.ErrNotFound
	}
	v, ok := versions[version]
	if !ok {
		return nil, policy.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func copyRecord(rec *policy.PolicyRecord) *policy.PolicyRecord {
	cp := *rec
	if rec.PublishedAt != nil {
		pa := *rec.PublishedAt
		cp.PublishedAt = &pa
	}
	return &cp
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)
