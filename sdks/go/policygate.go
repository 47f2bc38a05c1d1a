// Package policygate is a thin reference client for the policygate runtime
// decision API (POST /runtime-check). It is meant to be embedded in an
// agent runtime at the point a tool call is about to execute: call Check
// before the tool runs, and never invoke the tool if Check returns a
// *BlockedError.
//
// Quick start:
//
//	// Set POLICYGATE_SERVER_ADDR and POLICYGATE_API_KEY env vars, then:
//	client := policygate.NewClient()
//
//	resp, err := client.Check(ctx, policygate.CheckRequest{
//	    SessionID: sessionID,
//	    AgentID:   "agent-1",
//	    ToolName:  "read_file",
//	    Payload:   map[string]any{"path": "/tmp/test.txt"},
//	})
//	if err != nil {
//	    var blocked *policygate.BlockedError
//	    if errors.As(err, &blocked) {
//	        fmt.Printf("blocked by %s: %s\n", blocked.ErrorCode, blocked.Error())
//	    }
//	    return err
//	}
package policygate

// CheckRequest is the wire shape of the POST /runtime-check request body.
// Authentication travels out-of-band as the x-api-key header, not in the body.
type CheckRequest struct {
	// SessionID scopes state (counters, call history) across repeated calls
	// from the same agent run.
	SessionID string `json:"sessionId"`
	// AgentID identifies the agent acting within the session.
	AgentID string `json:"agentId"`
	// ToolName is the tool about to be invoked.
	ToolName string `json:"toolName"`
	// ActionType is one of "read", "write", or "side_effect". Optional.
	ActionType string `json:"actionType,omitempty"`
	// Payload carries the tool call's arguments; it is redacted server-side
	// before being written to the audit log, never mutated by this client.
	Payload map[string]any `json:"payload"`
	// Metadata is an opaque pass-through the policy engine never reads.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Reason is one entry in a decision's reason chain.
type Reason struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	RuleRef *string `json:"ruleRef,omitempty"`
}

// CheckResponse is the wire shape of a /runtime-check response.
type CheckResponse struct {
	Allowed             bool             `json:"allowed"`
	ErrorCode           string           `json:"errorCode,omitempty"`
	DecisionReasons     []Reason         `json:"decisionReasons"`
	PolicyVersionUsed   int64            `json:"policyVersionUsed,omitempty"`
	PolicyHash          string           `json:"policyHash,omitempty"`
	StateBefore         string           `json:"stateBefore,omitempty"`
	StateAfter          string           `json:"stateAfter,omitempty"`
	Counters            map[string]int64 `json:"counters,omitempty"`
	ExecutionDurationMs int64            `json:"executionDurationMs"`
}
