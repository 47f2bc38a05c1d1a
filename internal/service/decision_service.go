// Package service orchestrates the decision endpoint (C7): authentication,
// rate limiting, policy and session lookup, evaluation, audit, and the
// post-decision state commit, in the order spec §4.7 prescribes.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sentinelpolicy/policygate/internal/domain/audit"
	"github.com/sentinelpolicy/policygate/internal/domain/auth"
	"github.com/sentinelpolicy/policygate/internal/domain/policy"
	"github.com/sentinelpolicy/policygate/internal/domain/ratelimit"
	"github.com/sentinelpolicy/policygate/internal/domain/session"
	"github.com/sentinelpolicy/policygate/internal/observability"
)

// DecisionRequest is the parsed, as-yet-unvalidated body of POST /runtime-check.
type DecisionRequest struct {
	SessionID  string               `json:"sessionId"`
	AgentID    string               `json:"agentId"`
	ToolName   string               `json:"toolName"`
	ActionType *policy.ActionType   `json:"actionType,omitempty"`
	Payload    map[string]any       `json:"payload"`
	Metadata   map[string]any       `json:"metadata,omitempty"`
}

// ReasonDTO is the wire shape of policy.Reason.
type ReasonDTO struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	RuleRef *string `json:"ruleRef,omitempty"`
}

// DecisionResponse is the wire shape of a /runtime-check response (spec §6).
type DecisionResponse struct {
	Allowed             bool             `json:"allowed"`
	ErrorCode           *string          `json:"errorCode,omitempty"`
	DecisionReasons     []ReasonDTO      `json:"decisionReasons"`
	PolicyVersionUsed   int64            `json:"policyVersionUsed,omitempty"`
	PolicyHash          string           `json:"policyHash,omitempty"`
	StateBefore         string           `json:"stateBefore,omitempty"`
	StateAfter          string           `json:"stateAfter,omitempty"`
	Counters            map[string]int64 `json:"counters,omitempty"`
	ExecutionDurationMs int64            `json:"executionDurationMs"`
}

// DecisionError is a fail-closed error: every field needed to produce the
// uniform {allowed:false, errorCode, decisionReasons, executionDurationMs}
// failure shape (spec §6, §7).
type DecisionError struct {
	HTTPStatus int
	ErrorCode  string
	Message    string
	// RetryAfterSeconds is set only for RATE_LIMITED.
	RetryAfterSeconds int
}

func (e *DecisionError) Error() string { return e.Message }

func newDecisionError(status int, code, msg string) *DecisionError {
	return &DecisionError{HTTPStatus: status, ErrorCode: code, Message: msg}
}

// DecisionService implements the orchestration described in spec §4.7.
type DecisionService struct {
	authGate    *auth.Gate
	rateLimiter ratelimit.Limiter
	policyStore policy.Store
	sessionStore session.Store
	auditStore  audit.Store
	logger      *slog.Logger
	metrics     *Metrics

	rateLimitPerMinute int64
	maxHistoryLength   int
}

// Deps bundles the DecisionService's outbound collaborators.
type Deps struct {
	AuthGate           *auth.Gate
	RateLimiter        ratelimit.Limiter
	PolicyStore        policy.Store
	SessionStore       session.Store
	AuditStore         audit.Store
	Logger             *slog.Logger
	Metrics            *Metrics
	RateLimitPerMinute int64
	MaxHistoryLength   int
}

// NewDecisionService builds a DecisionService from its dependencies.
func NewDecisionService(d Deps) *DecisionService {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionService{
		authGate:           d.AuthGate,
		rateLimiter:        d.RateLimiter,
		policyStore:        d.PolicyStore,
		sessionStore:       d.SessionStore,
		auditStore:         d.AuditStore,
		logger:             logger,
		metrics:            d.Metrics,
		rateLimitPerMinute: d.RateLimitPerMinute,
		maxHistoryLength:   d.MaxHistoryLength,
	}
}

// Decide runs the full orchestration for one tool-call request, authenticating
// presentedKey, enforcing the rate limit, evaluating the request against the
// environment's locked policy, appending the audit entry, and — if allowed —
// committing the session-state mutation. It never returns a nil response
// without also returning a non-nil *DecisionError.
func (s *DecisionService) Decide(ctx context.Context, presentedKey string, req DecisionRequest) (*DecisionResponse, error) {
	t0 := time.Now()
	ctx, rootSpan := observability.StartSpan(ctx, "policygate.decide",
		observability.AttrSessionID.String(req.SessionID),
		observability.AttrAgentID.String(req.AgentID),
		observability.AttrToolName.String(req.ToolName),
	)
	defer rootSpan.End()

	resp, decErr := s.decide(ctx, presentedKey, req, t0)
	if decErr != nil {
		rootSpan.SetAttributes(observability.AttrErrorCode.String(decErr.ErrorCode))
		s.recordResult(decErr.ErrorCode, t0)
		return nil, decErr
	}
	errCodeLabel := "allowed"
	if !resp.Allowed {
		errCodeLabel = derefString(resp.ErrorCode, "blocked")
	}
	rootSpan.SetAttributes(observability.AttrDecision.Bool(resp.Allowed))
	s.recordResult(errCodeLabel, t0)
	return resp, nil
}

func (s *DecisionService) decide(ctx context.Context, presentedKey string, req DecisionRequest, t0 time.Time) (*DecisionResponse, *DecisionError) {
	apiKey, decErr := s.authenticate(ctx, presentedKey)
	if decErr != nil {
		return nil, decErr
	}

	if decErr := s.enforceRateLimit(ctx, apiKey.ID, t0); decErr != nil {
		return nil, decErr
	}

	if decErr := validateDecisionRequest(req); decErr != nil {
		return nil, decErr
	}

	publishedPolicy, decErr := s.loadPublishedPolicy(ctx, apiKey.EnvID)
	if decErr != nil {
		return nil, decErr
	}

	sess, decErr := s.getOrCreateSession(ctx, apiKey.EnvID, req, publishedPolicy)
	if decErr != nil {
		return nil, decErr
	}

	release, err := s.sessionStore.Lock(ctx, sess.ID)
	if err != nil {
		return nil, newDecisionError(500, string(policy.ErrSessionCorrupted), "failed to lock session")
	}
	defer release()

	// Re-read the row now that the lock is held: the GetOrCreate above ran
	// before acquiring it, so sess may already be stale if another request
	// committed a mutation while we were waiting for the lock.
	sess, err = s.sessionStore.Get(ctx, sess.ID)
	if err != nil {
		return nil, newDecisionError(500, string(policy.ErrDatabaseUnavailable), "session store unavailable")
	}

	lockedSpec, decErr := s.loadLockedSpec(ctx, sess)
	if decErr != nil {
		return nil, decErr
	}

	_, evalSpan := observability.StartSpan(ctx, "policygate.evaluate")
	result := policy.Evaluate(lockedSpec.Spec, sess.Snapshot(), policy.CallRequest{
		ToolName:   req.ToolName,
		ActionType: req.ActionType,
		Payload:    req.Payload,
	}, t0.UnixMilli())
	evalSpan.End()

	durationMs := time.Since(t0).Milliseconds()

	actionType := ""
	if req.ActionType != nil {
		actionType = string(*req.ActionType)
	}
	redacted := audit.Redact(req.Payload)
	entry := buildAuditEntry(sess, req.ToolName, actionType, result, redacted, lockedSpec.Hash, t0, durationMs)
	if err := s.auditStore.Append(ctx, entry); err != nil {
		s.logger.Error("audit write failed", "error", err, "session_id", req.SessionID)
		if s.metrics != nil {
			s.metrics.AuditWriteFailures.Inc()
		}
	}

	if result.Allowed {
		s.commitState(ctx, sess, req.ToolName, result, t0)
	}

	resp := &DecisionResponse{
		Allowed:             result.Allowed,
		DecisionReasons:     toReasonDTOs(result.Reasons),
		PolicyVersionUsed:   sess.PolicyVersionLocked,
		PolicyHash:          lockedSpec.Hash,
		StateBefore:         sess.CurrentState,
		StateAfter:          result.NewState,
		Counters:            result.NewCounters,
		ExecutionDurationMs: durationMs,
	}
	if result.ErrorCode != nil {
		code := string(*result.ErrorCode)
		resp.ErrorCode = &code
	}
	return resp, nil
}

func (s *DecisionService) authenticate(ctx context.Context, presentedKey string) (*auth.ApiKey, *DecisionError) {
	_, span := observability.StartSpan(ctx, "policygate.authenticate")
	defer span.End()

	if s.authGate == nil {
		return nil, newDecisionError(500, string(policy.ErrInternal), "auth gate not configured")
	}

	// The presented key alone does not carry an environment scope; envID
	// is resolved from whichever candidate row's hash matches (apiKey.EnvID
	// below), per spec §6's keyPrefix-only index.
	apiKey, err := s.authGate.Validate(ctx, presentedKey)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMalformedKey), errors.Is(err, auth.ErrInvalidKey):
			return nil, newDecisionError(401, string(policy.ErrInvalidAPIKey), "invalid api key")
		case errors.Is(err, auth.ErrKeyRevoked):
			return nil, newDecisionError(401, string(policy.ErrAPIKeyRevoked), "api key revoked")
		default:
			return nil, newDecisionError(500, string(policy.ErrDatabaseUnavailable), "auth store unavailable")
		}
	}
	return apiKey, nil
}

func (s *DecisionService) enforceRateLimit(ctx context.Context, apiKeyID string, t0 time.Time) *DecisionError {
	_, span := observability.StartSpan(ctx, "policygate.rate_limit")
	defer span.End()

	if s.rateLimiter == nil {
		return nil
	}
	result, err := s.rateLimiter.Increment(ctx, apiKeyID, t0.UnixMilli(), s.rateLimitPerMinute)
	if err != nil {
		return newDecisionError(500, string(policy.ErrDatabaseUnavailable), "rate limiter unavailable")
	}
	if !result.Allowed {
		if s.metrics != nil {
			s.metrics.RateLimitRejections.Inc()
		}
		return &DecisionError{
			HTTPStatus:        429,
			ErrorCode:         string(policy.ErrRateLimited),
			Message:           "rate limit exceeded",
			RetryAfterSeconds: result.RetryAfterSeconds,
		}
	}
	return nil
}

func validateDecisionRequest(req DecisionRequest) *DecisionError {
	if l := len(req.SessionID); l == 0 || l > 256 {
		return newDecisionError(400, string(policy.ErrInvalidInput), "sessionId must be 1..256 characters")
	}
	if l := len(req.AgentID); l == 0 || l > 256 {
		return newDecisionError(400, string(policy.ErrInvalidInput), "agentId must be 1..256 characters")
	}
	if l := len(req.ToolName); l == 0 || l > 256 {
		return newDecisionError(400, string(policy.ErrInvalidInput), "toolName must be 1..256 characters")
	}
	if req.ActionType != nil {
		switch *req.ActionType {
		case policy.ActionRead, policy.ActionWrite, policy.ActionSideEffect:
		default:
			return newDecisionError(400, string(policy.ErrInvalidInput), "actionType must be read, write, or side_effect")
		}
	}
	return nil
}

func (s *DecisionService) loadPublishedPolicy(ctx context.Context, envID string) (*policy.PolicyRecord, *DecisionError) {
	_, span := observability.StartSpan(ctx, "policygate.policy_fetch")
	defer span.End()

	rec, err := s.policyStore.GetPublished(ctx, envID)
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			return nil, newDecisionError(404, string(policy.ErrPolicyNotFound), "no published policy for this environment")
		}
		return nil, newDecisionError(500, string(policy.ErrDatabaseUnavailable), "policy store unavailable")
	}
	return rec, nil
}

func (s *DecisionService) getOrCreateSession(ctx context.Context, envID string, req DecisionRequest, publishedPolicy *policy.PolicyRecord) (*session.Session, *DecisionError) {
	_, span := observability.StartSpan(ctx, "policygate.session_get_or_create")
	defer span.End()

	initialState := "initial"
	if publishedPolicy.Spec.StateMachine != nil && publishedPolicy.Spec.StateMachine.InitialState != "" {
		initialState = publishedPolicy.Spec.StateMachine.InitialState
	}

	initialCounters := make(map[string]int64, len(publishedPolicy.Spec.Counters))
	for _, c := range publishedPolicy.Spec.Counters {
		initialCounters[c.Name] = c.InitialValue
	}

	sess, _, err := s.sessionStore.GetOrCreate(ctx, envID, req.SessionID, session.CreationDefaults{
		AgentID:             req.AgentID,
		PolicyID:            publishedPolicy.ID,
		PolicyVersionLocked: publishedPolicy.Version,
		InitialState:        initialState,
		Counters:            initialCounters,
		Metadata:            req.Metadata,
	})
	if err != nil {
		return nil, newDecisionError(500, string(policy.ErrDatabaseUnavailable), "session store unavailable")
	}
	return sess, nil
}

func (s *DecisionService) loadLockedSpec(ctx context.Context, sess *session.Session) (*policy.PolicyVersionRecord, *DecisionError) {
	rec, err := s.policyStore.GetByIDAndVersion(ctx, sess.PolicyID, sess.PolicyVersionLocked)
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			return nil, newDecisionError(404, string(policy.ErrPolicyNotFound), "locked policy version unavailable")
		}
		return nil, newDecisionError(500, string(policy.ErrDatabaseUnavailable), "policy store unavailable")
	}
	return rec, nil
}

func (s *DecisionService) commitState(ctx context.Context, sess *session.Session, toolName string, result policy.EvalResult, t0 time.Time) {
	_, span := observability.StartSpan(ctx, "policygate.session_commit")
	defer span.End()

	newHistory := appendOrTruncate(sess.ToolCallsHistory, toolName, s.maxHistoryLength)
	lastCallTimes := cloneInt64Map(sess.LastToolCallTimes)
	lastCallTimes[toolName] = t0.UnixMilli()

	_, err := s.sessionStore.UpdateState(ctx, sess.ID, session.Mutation{
		NewState:             result.NewState,
		NewCounters:          result.NewCounters,
		NewToolCallsHistory:  newHistory,
		NewToolCallCounts:    result.NewToolCallCounts,
		NewLastToolCallTimes: lastCallTimes,
	})
	if err != nil {
		// Per spec §7: a failed state write does not change the response
		// already computed and returned to the caller.
		s.logger.Error("session state commit failed", "error", err, "session_id", sess.SessionID)
	}
}

func (s *DecisionService) recordResult(label string, t0 time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.DecisionRequestsTotal.WithLabelValues(label).Inc()
	s.metrics.DecisionDuration.Observe(time.Since(t0).Seconds())
}

func appendOrTruncate(history []string, toolName string, max int) []string {
	out := append(append([]string(nil), history...), toolName)
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

func cloneInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toReasonDTOs(reasons []policy.Reason) []ReasonDTO {
	out := make([]ReasonDTO, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, ReasonDTO{Code: r.Code, Message: r.Message, RuleRef: r.RuleRef})
	}
	return out
}

func buildAuditEntry(sess *session.Session, toolName, actionType string, result policy.EvalResult, redacted map[string]any, policyHash string, t0 time.Time, durationMs int64) audit.Entry {
	decisionLabel := audit.Blocked
	if result.Allowed {
		decisionLabel = audit.Allowed
	}
	var errCode *string
	if result.ErrorCode != nil {
		code := string(*result.ErrorCode)
		errCode = &code
	}
	return audit.Entry{
		SessionID:           sess.SessionID,
		Timestamp:           t0.UnixMilli(),
		ToolName:            toolName,
		ActionType:          actionType,
		RedactedPayload:     redacted,
		Decision:            decisionLabel,
		Reasons:             result.Reasons,
		ErrorCode:           errCode,
		PolicyVersionUsed:   sess.PolicyVersionLocked,
		PolicyHash:          policyHash,
		StateBefore:         sess.CurrentState,
		StateAfter:          result.NewState,
		CountersBefore:      sess.Counters,
		CountersAfter:       result.NewCounters,
		ExecutionDurationMs: durationMs,
	}
}

func derefString(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
