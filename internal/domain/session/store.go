package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a session row does not exist.
var ErrNotFound = errors.New("session: not found")

// Store creates, locks, reads, and atomically mutates per-session state; it
// enforces uniqueness on (envId, sessionId) (C4).
type Store interface {
	// GetOrCreate returns the existing row for (envId, sessionId), or
	// inserts one using defaults. On a uniqueness violation raised by
	// concurrent creation, it re-reads and returns the winning row;
	// created is true only for the caller that actually inserted.
	GetOrCreate(ctx context.Context, envID, sessionID string, defaults CreationDefaults) (sess *Session, created bool, err error)

	// Lock acquires a row-level write lock on the session for the
	// duration of one request's evaluate-then-commit critical section.
	// The returned release function must be called exactly once.
	Lock(ctx context.Context, id string) (release func(), err error)

	// UpdateState atomically applies mutation's five fields together and
	// advances UpdatedAt. Must be called while the session is locked.
	UpdateState(ctx context.Context, id string, mutation Mutation) (*Session, error)

	// Get returns the session by its internal row id.
	Get(ctx context.Context, id string) (*Session, error)
}
