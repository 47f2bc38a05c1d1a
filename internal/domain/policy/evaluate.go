package policy

import (
	"fmt"
	"regexp"
	"strconv"
)

// Reason is one entry in a decision's reason chain. Informational reasons
// (ALLOWED, STATE_TRANSITION) never block; every other code does.
type Reason struct {
	Code          string  `json:"code"`
	Message       string  `json:"message"`
	RuleRef       *string `json:"ruleRef,omitempty"`
	Informational bool    `json:"-"`
}

// SessionSnapshot is the read-only view of session state the evaluator
// consumes. It never mutates the caller's session.
type SessionSnapshot struct {
	CurrentState      string
	Counters          map[string]int64
	ToolCallsHistory  []string
	ToolCallCounts    map[string]int64
	LastToolCallTimes map[string]int64 // tool -> epoch ms of last allowed call
}

// CallRequest is the caller's requested tool invocation.
type CallRequest struct {
	ToolName   string
	ActionType *ActionType
	Payload    map[string]any
}

// EvalResult is the evaluator's full output: the decision, its reason
// chain, and the session-state deltas the caller should commit if allowed.
type EvalResult struct {
	Allowed           bool
	ErrorCode         *ErrorCode
	Reasons           []Reason
	NewState          string
	NewCounters       map[string]int64
	NewToolCallCounts map[string]int64
}

// Evaluate is the pure, side-effect-free deterministic evaluator (C2).
// It performs the ordered sequence of checks in spec §4.2; the order is
// normative. nowMs is the only time input.
func Evaluate(spec PolicySpec, snap SessionSnapshot, req CallRequest, nowMs int64) EvalResult {
	workingCounters := cloneCounters(snap.Counters)
	workingState := snap.CurrentState
	var reasons []Reason
	allowed := true
	var errorCode *ErrorCode

	fail := func(code ErrorCode, msg string) {
		if errorCode == nil {
			errorCode = &code
		}
		allowed = false
		reasons = append(reasons, Reason{Code: string(code), Message: msg})
	}

	// 1. Unknown tool (terminal).
	rule, found := spec.RuleByName(req.ToolName)
	if !found {
		if spec.DefaultDecision == Deny {
			fail(ErrUnknownToolDenied, fmt.Sprintf("no rule for tool %q and default decision is deny", req.ToolName))
			return finalize(false, errorCode, reasons, snap.CurrentState, workingCounters, snap.ToolCallCounts)
		}
		reasons = append(reasons, Reason{Code: ReasonAllowed, Message: "no rule for tool; default decision is allow", Informational: true})
		return finalize(true, nil, reasons, snap.CurrentState, workingCounters, snap.ToolCallCounts)
	}

	// 2. Explicit deny (terminal).
	if rule.Effect == Deny {
		fail(ErrToolExplicitlyDenied, fmt.Sprintf("tool %q is explicitly denied", req.ToolName))
		return finalize(false, errorCode, reasons, workingState, workingCounters, snap.ToolCallCounts)
	}

	// 3. Side-effect gate (terminal).
	effectiveActionType := rule.ActionType
	if req.ActionType != nil {
		effectiveActionType = req.ActionType
	}
	if effectiveActionType != nil && (*effectiveActionType == ActionWrite || *effectiveActionType == ActionSideEffect) && rule.Effect != Allow {
		fail(ErrSideEffectNotAllowed, "side-effect action requires an allow-effect rule")
		return finalize(false, errorCode, reasons, workingState, workingCounters, snap.ToolCallCounts)
	}

	// 4. Required state (non-terminal).
	if rule.RequireState != nil && *rule.RequireState != snap.CurrentState {
		fail(ErrRequiredStateNotMet, fmt.Sprintf("requires state %q, currently %q", *rule.RequireState, snap.CurrentState))
	}

	// 5. Required previous tools (non-terminal).
	if len(rule.RequirePreviousToolCalls) > 0 {
		called := toSet(snap.ToolCallsHistory)
		for _, t := range rule.RequirePreviousToolCalls {
			if !called[t] {
				fail(ErrRequiredToolsNotCalled, fmt.Sprintf("required prior tool call missing: %s", t))
			}
		}
	}

	// 6. Max calls per session.
	if rule.MaxCallsPerSession != nil {
		count := snap.ToolCallCounts[req.ToolName]
		if count >= *rule.MaxCallsPerSession {
			fail(ErrMaxCallsExceeded, fmt.Sprintf("tool %q already called %d times (max %d)", req.ToolName, count, *rule.MaxCallsPerSession))
		}
	}

	// 7. Cooldown.
	if rule.CooldownMs != nil {
		if last, ok := snap.LastToolCallTimes[req.ToolName]; ok {
			elapsed := nowMs - last
			if elapsed < *rule.CooldownMs {
				remaining := *rule.CooldownMs - elapsed
				fail(ErrCooldownActive, fmt.Sprintf("cooldown active, %d ms remaining", remaining))
			}
		}
	}

	// 8. Required fields.
	for _, path := range rule.RequireFields {
		if _, ok := resolveJSONPath(req.Payload, path); !ok {
			fail(ErrRequiredFieldMissing, fmt.Sprintf("required field missing: %s", path))
		}
	}

	// 9. Forbidden fields.
	for _, path := range rule.DenyIfFieldsPresent {
		if _, ok := resolveJSONPath(req.Payload, path); ok {
			fail(ErrForbiddenFieldPresent, fmt.Sprintf("forbidden field present: %s", path))
		}
	}

	// 10. Deny-if-regex.
	for _, rc := range rule.DenyIfRegexMatch {
		re, err := regexp.Compile(rc.Pattern)
		if err != nil {
			continue // uncompilable patterns are silently skipped
		}
		v, ok := resolveJSONPath(req.Payload, rc.JSONPath)
		if !ok {
			continue
		}
		s, isStr := v.(string)
		if isStr && re.MatchString(s) {
			fail(ErrRegexMatchDenied, fmt.Sprintf("field %s matches denied pattern", rc.JSONPath))
		}
	}

	// 11. Allow-only-if-regex.
	for _, rc := range rule.AllowOnlyIfRegexMatch {
		re, err := regexp.Compile(rc.Pattern)
		v, ok := resolveJSONPath(req.Payload, rc.JSONPath)
		s, isStr := "", false
		if ok {
			s, isStr = v.(string)
		}
		if err != nil || !ok || !isStr || !re.MatchString(s) {
			fail(ErrRegexMatchRequired, fmt.Sprintf("field %s must match required pattern", rc.JSONPath))
		}
	}

	// 11b. Additive requireExpression extension (SPEC_FULL domain-stack wiring).
	if rule.RequireExpression != nil {
		ok, evalErr := evaluateExpression(*rule.RequireExpression, workingCounters, req.Payload)
		if evalErr != nil || !ok {
			fail(ErrGuardConditionFailed, "requireExpression not satisfied")
		}
	}

	// 12. State-machine transition.
	if allowed && spec.StateMachine != nil {
		if t, ok := findTransition(spec.StateMachine, snap.CurrentState, req.ToolName); ok {
			stillOk := true
			called := toSet(snap.ToolCallsHistory)
			for _, required := range t.RequiresToolsCalledBefore {
				if !called[required] {
					fail(ErrRequiredToolsNotCalled, fmt.Sprintf("transition requires prior tool call: %s", required))
					stillOk = false
				}
			}
			if stillOk && t.Guard != nil {
				if !evaluateGuard(*t.Guard, workingCounters) {
					fail(ErrGuardConditionFailed, "transition guard failed")
					stillOk = false
				}
			}
			if stillOk {
				workingState = t.ToState
				for name, delta := range t.SetsCounters {
					workingCounters[name] += delta
				}
				reasons = append(reasons, Reason{Code: ReasonStateTransition, Message: fmt.Sprintf("transitioned %s -> %s", snap.CurrentState, t.ToState), Informational: true})
			}
		}
	}

	// 13. Counter ceiling.
	for _, c := range spec.Counters {
		if c.MaxValue == nil {
			continue
		}
		if workingCounters[c.Name] > *c.MaxValue {
			fail(ErrCounterLimitExceeded, fmt.Sprintf("counter %s exceeds max %d", c.Name, *c.MaxValue))
		}
	}

	newToolCallCounts := cloneCounters(snap.ToolCallCounts)
	if allowed {
		newToolCallCounts[req.ToolName]++
		if len(reasons) == 0 {
			reasons = append(reasons, Reason{Code: ReasonAllowed, Message: "allowed", Informational: true})
		}
	}

	return finalize(allowed, errorCode, reasons, workingState, workingCounters, newToolCallCounts)
}

func finalize(allowed bool, code *ErrorCode, reasons []Reason, state string, counters, toolCallCounts map[string]int64) EvalResult {
	return EvalResult{
		Allowed:           allowed,
		ErrorCode:         code,
		Reasons:           reasons,
		NewState:          state,
		NewCounters:       counters,
		NewToolCallCounts: toolCallCounts,
	}
}

func findTransition(sm *StateMachine, fromState, tool string) (Transition, bool) {
	for _, t := range sm.Transitions {
		if t.FromState == fromState && t.TriggeredByTool == tool {
			return t, true
		}
	}
	return Transition{}, false
}

// evaluateGuard implements the normative grammar
// ^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(<=|<|>=|>|==|!=)\s*(-?\d+)\s*$.
// A missing counter is treated as 0. Any syntactic failure evaluates false.
func evaluateGuard(expr string, counters map[string]int64) bool {
	m := guardPattern.FindStringSubmatch(expr)
	if m == nil {
		return false
	}
	name, op, numStr := m[1], m[2], m[3]
	n, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return false
	}
	val := counters[name]
	switch op {
	case "<":
		return val < n
	case "<=":
		return val <= n
	case ">":
		return val > n
	case ">=":
		return val >= n
	case "==":
		return val == n
	case "!=":
		return val != n
	default:
		return false
	}
}

func cloneCounters(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}
