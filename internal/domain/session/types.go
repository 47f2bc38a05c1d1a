// Package session manages the per-agent, per-sessionId execution context:
// creation, policy-version locking, and atomic state mutation (C4).
package session

import (
	"time"

	"github.com/sentinelpolicy/policygate/internal/domain/policy"
)

// Session is the per-(envId, sessionId) execution context. policyVersionLocked
// and initialState are set once at creation and never change.
type Session struct {
	// ID is the store-internal row identifier (distinct from the
	// caller-supplied SessionID).
	ID string
	// EnvID is the owning environment.
	EnvID string
	// SessionID is the caller-supplied session identifier.
	SessionID string
	// AgentID identifies the agent acting within this session.
	AgentID string
	// PolicyID is the policy this session was created against.
	PolicyID string
	// PolicyVersionLocked is the published policy version frozen at
	// session creation; it never changes for the lifetime of the session.
	PolicyVersionLocked int64
	// InitialState is the state machine's initial state at creation time
	// (or "initial" if the locked policy has no state machine).
	InitialState string
	// CurrentState is always a member of the locked policy's state set
	// (or "initial" if no state machine).
	CurrentState string
	// Counters maps counter name to its current value.
	Counters map[string]int64
	// ToolCallsHistory is the ordered sequence of allowed tool names,
	// tail-truncated to a configured maximum length.
	ToolCallsHistory []string
	// ToolCallCounts maps tool name to the count of allowed calls.
	ToolCallCounts map[string]int64
	// LastToolCallTimes maps tool name to the epoch-ms time of its most
	// recent allowed call.
	LastToolCallTimes map[string]int64
	// Metadata is an opaque pass-through the evaluator never reads.
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot produces the read-only view the evaluator (policy.Evaluate) consumes.
func (s *Session) Snapshot() policy.SessionSnapshot {
	return policy.SessionSnapshot{
		CurrentState:      s.CurrentState,
		Counters:          cloneInt64Map(s.Counters),
		ToolCallsHistory:  append([]string(nil), s.ToolCallsHistory...),
		ToolCallCounts:    cloneInt64Map(s.ToolCallCounts),
		LastToolCallTimes: cloneInt64Map(s.LastToolCallTimes),
	}
}

func cloneInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CreationDefaults carries the values a GetOrCreate call writes if (and
// only if) it creates a new row; they come from the currently-published
// policy at the moment of first contact (spec §4.4).
type CreationDefaults struct {
	AgentID             string
	PolicyID            string
	PolicyVersionLocked int64
	InitialState        string
	// Counters seeds the new row's counter map from the locked policy's
	// declared CounterDef.InitialValue entries (spec §3). Nil or missing
	// entries default to zero.
	Counters map[string]int64
	Metadata map[string]any
}

// Mutation is the single atomic update applied by UpdateState: all five
// fields move together (spec §4.4, §5).
type Mutation struct {
	NewState             string
	NewCounters          map[string]int64
	NewToolCallsHistory  []string
	NewToolCallCounts    map[string]int64
	NewLastToolCallTimes map[string]int64
}
