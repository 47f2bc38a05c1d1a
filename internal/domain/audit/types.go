// Package audit is the append-only record of every decision (C6) plus the
// payload redactor (C8).
package audit

import "github.com/sentinelpolicy/policygate/internal/domain/policy"

// DecisionLabel mirrors the two allowed AuditEntry.decision values.
type DecisionLabel string

const (
	Allowed DecisionLabel = "allowed"
	Blocked DecisionLabel = "blocked"
)

// Entry is one immutable audit row (spec §3). Once written, never mutated.
type Entry struct {
	SessionID           string
	Timestamp           int64 // epoch millis
	ToolName            string
	ActionType          string
	RedactedPayload     map[string]any
	Decision            DecisionLabel
	Reasons             []policy.Reason
	ErrorCode           *string
	PolicyVersionUsed   int64
	PolicyHash          string
	StateBefore         string
	StateAfter          string
	CountersBefore      map[string]int64
	CountersAfter       map[string]int64
	ExecutionDurationMs int64
}
