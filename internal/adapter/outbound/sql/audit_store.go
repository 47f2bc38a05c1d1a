package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sentinelpolicy/policygate/internal/domain/audit"
)

// AuditStore implements audit.Store against the sqlite schema (C6).
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore wraps db as an audit.Store.
func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db.conn}
}

// Append implements audit.Store.
func (s *AuditStore) Append(ctx context.Context, entry audit.Entry) error {
	payloadJSON, err := json.Marshal(entry.RedactedPayload)
	if err != nil {
		return fmt.Errorf("sql: marshal payload: %w", err)
	}
	reasonsJSON, err := json.Marshal(entry.Reasons)
	if err != nil {
		return fmt.Errorf("sql: marshal reasons: %w", err)
	}
	countersBeforeJSON, err := json.Marshal(entry.CountersBefore)
	if err != nil {
		return fmt.Errorf("sql: marshal counters before: %w", err)
	}
	countersAfterJSON, err := json.Marshal(entry.CountersAfter)
	if err != nil {
		return fmt.Errorf("sql: marshal counters after: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			execution_session_id, timestamp, tool_name, action_type,
			redacted_payload_json, decision, reasons_json, error_code,
			policy_version_used, policy_hash, state_before, state_after,
			counters_before_json, counters_after_json, execution_duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.Timestamp, entry.ToolName, entry.ActionType,
		string(payloadJSON), string(entry.Decision), string(reasonsJSON), entry.ErrorCode,
		entry.PolicyVersionUsed, entry.PolicyHash, entry.StateBefore, entry.StateAfter,
		string(countersBeforeJSON), string(countersAfterJSON), entry.ExecutionDurationMs,
	)
	if err != nil {
		return fmt.Errorf("sql: append audit entry: %w", err)
	}
	return nil
}

// Close implements audit.Store. The underlying *sql.DB is owned by DB, not
// by the store, so there is nothing to release here.
func (s *AuditStore) Close() error {
	return nil
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
