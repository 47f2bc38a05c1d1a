// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sentinelpolicy/policygate/internal/domain/session"
)

// SessionStore implements session.Store with in-memory maps. Thread-safe
// for concurrent access. Intended for development and tests; the
// SQL-backed store is the production implementation of C4.
type SessionStore struct {
	mu       sync.Mutex
	byKey    map[string]string // (envId, sessionId) -> row id
	sessions map[string]*session.Session
	locks    map[string]*sync.Mutex
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		byKey:    make(map[string]string),
		sessions: make(map[string]*session.Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

func sessionKey(envID, sessionID string) string {
	return envID + "\x00" + sessionID
}

// GetOrCreate implements session.Store.
func (s *SessionStore) GetOrCreate(ctx context.Context, envID, sessionID string, defaults session.CreationDefaults) (*session.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(envID, sessionID)
	if id, ok := s.byKey[key]; ok {
		return copySession(s.sessions[id]), false, nil
	}

	id, err := session.GenerateID()
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()
	sess := &session.Session{
		ID:                  id,
		EnvID:               envID,
		SessionID:           sessionID,
		AgentID:             defaults.AgentID,
		PolicyID:            defaults.PolicyID,
		PolicyVersionLocked: defaults.PolicyVersionLocked,
		InitialState:        defaults.InitialState,
		CurrentState:        defaults.InitialState,
		Counters:            cloneInt64Map(defaults.Counters),
		ToolCallsHistory:    []string{},
		ToolCallCounts:      map[string]int64{},
		LastToolCallTimes:   map[string]int64{},
		Metadata:            defaults.Metadata,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.byKey[key] = id
	s.sessions[id] = sess
	s.locks[id] = &sync.Mutex{}
	return copySession(sess), true, nil
}

// Lock implements session.Store.
func (s *SessionStore) Lock(ctx context.Context, id string) (func(), error) {
	s.mu.Lock()
	lk, ok := s.locks[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("memory: lock unknown session %s: %w", id, session.ErrNotFound)
	}
	lk.Lock()
	return lk.Unlock, nil
}

// Get implements session.Store.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return copySession(sess), nil
}

// UpdateState implements session.Store: the five state fields move together.
func (s *SessionStore) UpdateState(ctx context.Context, id string, mutation session.Mutation) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	sess.CurrentState = mutation.NewState
	sess.Counters = mutation.NewCounters
	sess.ToolCallsHistory = mutation.NewToolCallsHistory
	sess.ToolCallCounts = mutation.NewToolCallCounts
	sess.LastToolCallTimes = mutation.NewLastToolCallTimes
	sess.UpdatedAt = time.Now().UTC()
	return copySession(sess), nil
}

func copySession(sess *session.Session) *session.Session {
	c := *sess
	c.Counters = cloneInt64Map(sess.Counters)
	c.ToolCallCounts = cloneInt64Map(sess.ToolCallCounts)
	c.LastToolCallTimes = cloneInt64Map(sess.LastToolCallTimes)
	c.ToolCallsHistory = append([]string(nil), sess.ToolCallsHistory...)
	return &c
}

func cloneInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Compile-time interface verification.
var _ session.Store = (*SessionStore)(nil)
