package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/sentinelpolicy/policygate/internal/domain/session"
)

// lockStripes bounds the number of in-process mutexes guarding row-level
// session locks. A session id hashes to one stripe, so two unrelated
// sessions only contend when they collide in the same bucket (spec §5).
const lockStripes = 256

// SessionStore implements session.Store against the sqlite schema (C4).
// sqlite has no native advisory row lock reachable through database/sql, so
// Lock is enforced in-process with an xxhash-sharded stripe of mutexes —
// sufficient because every process sharing one sqlite file is this service.
type SessionStore struct {
	db      *sql.DB
	stripes [lockStripes]sync.Mutex
}

// NewSessionStore wraps db as a session.Store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db.conn}
}

func (s *SessionStore) stripe(id string) *sync.Mutex {
	return &s.stripes[xxhash.Sum64String(id)%lockStripes]
}

// GetOrCreate implements session.Store.
func (s *SessionStore) GetOrCreate(ctx context.Context, envID, sessionID string, defaults session.CreationDefaults) (*session.Session, bool, error) {
	if sess, err := s.getByKey(ctx, envID, sessionID); err == nil {
		return sess, false, nil
	} else if !errors.Is(err, session.ErrNotFound) {
		return nil, false, err
	}

	id, err := session.GenerateID()
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()
	metadataJSON, err := marshalOptional(defaults.Metadata)
	if err != nil {
		return nil, false, err
	}
	initialCounters := defaults.Counters
	if initialCounters == nil {
		initialCounters = map[string]int64{}
	}
	countersJSON, err := json.Marshal(initialCounters)
	if err != nil {
		return nil, false, fmt.Errorf("sql: marshal initial counters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, env_id, session_id, agent_id, policy_id, policy_version_locked,
			initial_state, current_state, counters_json, tool_calls_history_json,
			tool_call_counts_json, last_tool_call_times_json, metadata_json,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', '{}', '{}', ?, ?, ?)`,
		id, envID, sessionID, defaults.AgentID, defaults.PolicyID, defaults.PolicyVersionLocked,
		defaults.InitialState, defaults.InitialState, string(countersJSON), metadataJSON,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		// A concurrent creator may have won the (env_id, session_id) unique
		// index race; re-read rather than propagate the conflict.
		if sess, rerr := s.getByKey(ctx, envID, sessionID); rerr == nil {
			return sess, false, nil
		}
		return nil, false, fmt.Errorf("sql: create session: %w", err)
	}

	sess, err := s.getByKey(ctx, envID, sessionID)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Lock implements session.Store via an in-process stripe mutex keyed by id.
func (s *SessionStore) Lock(ctx context.Context, id string) (func(), error) {
	m := s.stripe(id)
	m.Lock()
	return m.Unlock, nil
}

// Get implements session.Store.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	return s.scanRow(s.db.QueryRowContext(ctx, `
		SELECT id, env_id, session_id, agent_id, policy_id, policy_version_locked,
		       initial_state, current_state, counters_json, tool_calls_history_json,
		       tool_call_counts_json, last_tool_call_times_json, metadata_json,
		       created_at, updated_at
		FROM sessions WHERE id = ?`, id))
}

func (s *SessionStore) getByKey(ctx context.Context, envID, sessionID string) (*session.Session, error) {
	return s.scanRow(s.db.QueryRowContext(ctx, `
		SELECT id, env_id, session_id, agent_id, policy_id, policy_version_locked,
		       initial_state, current_state, counters_json, tool_calls_history_json,
		       tool_call_counts_json, last_tool_call_times_json, metadata_json,
		       created_at, updated_at
		FROM sessions WHERE env_id = ? AND session_id = ?`, envID, sessionID))
}

// UpdateState implements session.Store: all five mutation fields move
// together in a single UPDATE statement.
func (s *SessionStore) UpdateState(ctx context.Context, id string, mutation session.Mutation) (*session.Session, error) {
	countersJSON, err := json.Marshal(mutation.NewCounters)
	if err != nil {
		return nil, fmt.Errorf("sql: marshal counters: %w", err)
	}
	historyJSON, err := json.Marshal(mutation.NewToolCallsHistory)
	if err != nil {
		return nil, fmt.Errorf("sql: marshal history: %w", err)
	}
	countsJSON, err := json.Marshal(mutation.NewToolCallCounts)
	if err != nil {
		return nil, fmt.Errorf("sql: marshal counts: %w", err)
	}
	timesJSON, err := json.Marshal(mutation.NewLastToolCallTimes)
	if err != nil {
		return nil, fmt.Errorf("sql: marshal times: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			current_state = ?, counters_json = ?, tool_calls_history_json = ?,
			tool_call_counts_json = ?, last_tool_call_times_json = ?, updated_at = ?
		WHERE id = ?`,
		mutation.NewState, string(countersJSON), string(historyJSON),
		string(countsJSON), string(timesJSON), time.Now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sql: update state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, session.ErrNotFound
	}
	return s.Get(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SessionStore) scanRow(row rowScanner) (*session.Session, error) {
	var sess session.Session
	var countersJSON, historyJSON, countsJSON, timesJSON string
	var metadataJSON sql.NullString
	var createdAtMs, updatedAtMs int64

	err := row.Scan(
		&sess.ID, &sess.EnvID, &sess.SessionID, &sess.AgentID, &sess.PolicyID, &sess.PolicyVersionLocked,
		&sess.InitialState, &sess.CurrentState, &countersJSON, &historyJSON,
		&countsJSON, &timesJSON, &metadataJSON, &createdAtMs, &updatedAtMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("sql: scan session: %w", err)
	}

	if err := json.Unmarshal([]byte(countersJSON), &sess.Counters); err != nil {
		return nil, fmt.Errorf("sql: unmarshal counters: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &sess.ToolCallsHistory); err != nil {
		return nil, fmt.Errorf("sql: unmarshal history: %w", err)
	}
	if err := json.Unmarshal([]byte(countsJSON), &sess.ToolCallCounts); err != nil {
		return nil, fmt.Errorf("sql: unmarshal counts: %w", err)
	}
	if err := json.Unmarshal([]byte(timesJSON), &sess.LastToolCallTimes); err != nil {
		return nil, fmt.Errorf("sql: unmarshal times: %w", err)
	}
	if metadataJSON.Valid {
		if err := json.Unmarshal([]byte(metadataJSON.String), &sess.Metadata); err != nil {
			return nil, fmt.Errorf("sql: unmarshal metadata: %w", err)
		}
	}
	sess.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	sess.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
	return &sess, nil
}

func marshalOptional(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sql: marshal metadata: %w", err)
	}
	return string(b), nil
}

// Compile-time interface verification.
var _ session.Store = (*SessionStore)(nil)
