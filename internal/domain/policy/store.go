package policy

import (
	"context"
	"errors"
)

// ErrNotFound is returned by PolicyStore lookups that find nothing.
var ErrNotFound = errors.New("policy: not found")

// ErrConflict is returned by Publish when a concurrent publish on the same
// policy id won the race; the caller should re-read and may retry.
var ErrConflict = errors.New("policy: publish conflict")

// Store persists policies, assigns monotonic versions on publish, and
// produces immutable PolicyVersionRecords (C3).
type Store interface {
	// CreateDraft creates a new unpublished PolicyRecord for envId.
	CreateDraft(ctx context.Context, envID, name string) (*PolicyRecord, error)

	// SaveDraft validates spec and, if valid, overwrites the draft's spec.
	// Returns the validation errors (and makes no change) if invalid.
	SaveDraft(ctx context.Context, id string, spec PolicySpec) ([]ValidationError, error)

	// Publish validates the current draft spec, computes its canonical
	// hash, atomically increments the policy's version, marks it
	// published, and writes an immutable PolicyVersionRecord. Concurrent
	// publishes on the same (envId, policyId) are serialized: the loser
	// observes ErrConflict or re-reads and retries, but versions never
	// gap or collide.
	Publish(ctx context.Context, id string, publishedBy string) (*PolicyRecord, error)

	// GetPublished returns the highest-versioned published policy for envId.
	GetPublished(ctx context.Context, envID string) (*PolicyRecord, error)

	// GetByIDAndVersion returns the exact immutable spec for (policyId, version).
	GetByIDAndVersion(ctx context.Context, policyID string, version int64) (*PolicyVersionRecord, error)
}
