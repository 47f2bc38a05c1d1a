package policygate

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrBlocked is returned when a runtime check results in a blocked decision.
	ErrBlocked = errors.New("policygate: blocked")

	// ErrServerUnreachable is returned when the decision endpoint cannot be
	// contacted; the client always fails closed in that case.
	ErrServerUnreachable = errors.New("policygate: server unreachable")
)

// ClientError is the error type for a non-2xx HTTP response from the
// server. A malformed response body is reported as a plain error, not a
// ClientError.
type ClientError struct {
	// Code is a machine-readable error code.
	Code string
	// Err is the underlying error.
	Err error
}

// Error returns the error message.
func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policygate [%s]: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("policygate [%s]", e.Code)
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// BlockedError is returned when Check's decision is allowed=false. It
// carries the tool that was blocked, the machine-readable error code, the
// full reason chain, the policy version evaluated against, and the
// session state on either side of the call.
type BlockedError struct {
	// ToolName is the tool that was blocked.
	ToolName string
	// ErrorCode is the machine-readable reason (e.g. "MAX_CALLS_EXCEEDED").
	ErrorCode string
	// Reasons is the full reason chain returned by the decision endpoint.
	Reasons []Reason
	// PolicyVersionUsed is the published policy version the decision was
	// evaluated against.
	PolicyVersionUsed int64
	// StateBefore and StateAfter are the session's state-machine state
	// immediately before and after this call.
	StateBefore string
	StateAfter  string
}

// Error returns a human-readable description of the blocked decision.
func (e *BlockedError) Error() string {
	if len(e.Reasons) > 0 {
		return fmt.Sprintf("policygate: tool %q blocked (%s): %s", e.ToolName, e.ErrorCode, e.Reasons[0].Message)
	}
	return fmt.Sprintf("policygate: tool %q blocked (%s)", e.ToolName, e.ErrorCode)
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrBlocked).
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// ServerUnreachableError is returned when the decision endpoint cannot be
// contacted. Per the decision contract, a client seeing this error must
// treat the call as blocked rather than letting the tool run.
type ServerUnreachableError struct {
	// Cause is the underlying error that caused the server to be unreachable.
	Cause error
}

// Error returns a human-readable description of the server unreachable error.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
