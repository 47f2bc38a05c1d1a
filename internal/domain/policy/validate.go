package policy

import (
	"fmt"
	"regexp"
	"sort"
)

// ValidationError is one structural or semantic defect found in a PolicySpec.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Message, e.Code)
}

// InvalidSpecError wraps the full list of validation errors rejecting a
// publish attempt (spec §4.1: "the hash is computed after validation").
type InvalidSpecError struct {
	Errors []ValidationError
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("policy: invalid spec (%d errors)", len(e.Errors))
}

// ErrInvalidSpec builds an *InvalidSpecError from a validation run.
func ErrInvalidSpec(errs []ValidationError) error {
	return &InvalidSpecError{Errors: errs}
}

var guardPattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(<=|<|>=|>|==|!=)\s*(-?\d+)\s*$`)

// Validate checks a PolicySpec against every rule in spec §4.1. It never
// panics and never partially validates: it always walks the whole spec and
// returns every defect found, in a stable deterministic order (document
// order), not just the first.
func Validate(spec PolicySpec) []ValidationError {
	var errs []ValidationError

	if spec.Version == "" {
		errs = append(errs, ValidationError{"version", "missing version", "MISSING_VERSION"})
	}
	if spec.DefaultDecision != Allow && spec.DefaultDecision != Deny {
		errs = append(errs, ValidationError{"defaultDecision", "must be allow or deny", "INVALID_DEFAULT_DECISION"})
	}
	if spec.ToolRules == nil {
		errs = append(errs, ValidationError{"toolRules", "must be a sequence", "INVALID_TOOL_RULES"})
	}

	seenTool := map[string]bool{}
	declaredCounters := map[string]bool{}
	for _, c := range spec.Counters {
		declaredCounters[c.Name] = true
	}

	declaredStates := map[string]bool{}
	if spec.StateMachine != nil {
		for _, s := range spec.StateMachine.States {
			declaredStates[s] = true
		}
	}

	for i, rule := range spec.ToolRules {
		path := fmt.Sprintf("toolRules[%d]", i)
		if rule.ToolName == "" {
			errs = append(errs, ValidationError{path + ".toolName", "must not be empty", "INVALID_TOOL_NAME"})
		} else if seenTool[rule.ToolName] {
			errs = append(errs, ValidationError{path + ".toolName", "duplicate toolName: " + rule.ToolName, "DUPLICATE_TOOL_NAME"})
		}
		seenTool[rule.ToolName] = true

		if rule.Effect != Allow && rule.Effect != Deny {
			errs = append(errs, ValidationError{path + ".effect", "must be allow or deny", "INVALID_EFFECT"})
		}
		if rule.ActionType != nil {
			switch *rule.ActionType {
			case ActionRead, ActionWrite, ActionSideEffect:
			default:
				errs = append(errs, ValidationError{path + ".actionType", "outside the enum", "INVALID_ACTION_TYPE"})
			}
		}
		if rule.MaxCallsPerSession != nil && *rule.MaxCallsPerSession < 0 {
			errs = append(errs, ValidationError{path + ".maxCallsPerSession", "must be non-negative", "INVALID_MAX_CALLS"})
		}
		if rule.CooldownMs != nil && *rule.CooldownMs < 0 {
			errs = append(errs, ValidationError{path + ".cooldownMs", "must be non-negative", "INVALID_COOLDOWN"})
		}
		if rule.RequireState != nil && spec.StateMachine != nil && !declaredStates[*rule.RequireState] {
			errs = append(errs, ValidationError{path + ".requireState", "references undeclared state: " + *rule.RequireState, "UNDECLARED_STATE"})
		}
		for j, rc := range rule.DenyIfRegexMatch {
			if _, err := regexp.Compile(rc.Pattern); err != nil {
				errs = append(errs, ValidationError{fmt.Sprintf("%s.denyIfRegexMatch[%d].pattern", path, j), "invalid regex: " + err.Error(), "INVALID_REGEX"})
			}
		}
		for j, rc := range rule.AllowOnlyIfRegexMatch {
			if _, err := regexp.Compile(rc.Pattern); err != nil {
				errs = append(errs, ValidationError{fmt.Sprintf("%s.allowOnlyIfRegexMatch[%d].pattern", path, j), "invalid regex: " + err.Error(), "INVALID_REGEX"})
			}
		}
	}

	for i, c := range spec.Counters {
		path := fmt.Sprintf("counters[%d]", i)
		if c.Scope != "session" {
			errs = append(errs, ValidationError{path + ".scope", `must be "session"`, "INVALID_COUNTER_SCOPE"})
		}
	}

	if spec.StateMachine != nil {
		sm := spec.StateMachine
		smPath := "stateMachine"
		if len(sm.States) == 0 {
			errs = append(errs, ValidationError{smPath + ".states", "must not be empty", "EMPTY_STATE_SET"})
		}
		seenState := map[string]bool{}
		for _, s := range sm.States {
			if seenState[s] {
				errs = append(errs, ValidationError{smPath + ".states", "duplicate state: " + s, "DUPLICATE_STATE"})
			}
			seenState[s] = true
		}
		if !declaredStates[sm.InitialState] {
			errs = append(errs, ValidationError{smPath + ".initialState", "not in state set", "INVALID_INITIAL_STATE"})
		}
		for i, t := range sm.Transitions {
			tPath := fmt.Sprintf("%s.transitions[%d]", smPath, i)
			if !declaredStates[t.FromState] {
				errs = append(errs, ValidationError{tPath + ".fromState", "undeclared state: " + t.FromState, "UNDECLARED_STATE"})
			}
			if !declaredStates[t.ToState] {
				errs = append(errs, ValidationError{tPath + ".toState", "undeclared state: " + t.ToState, "UNDECLARED_STATE"})
			}
			if !seenTool[t.TriggeredByTool] {
				errs = append(errs, ValidationError{tPath + ".triggeredByTool", "undeclared tool: " + t.TriggeredByTool, "UNDECLARED_TOOL"})
			}
			if t.FromState == t.ToState && t.Guard == nil {
				errs = append(errs, ValidationError{tPath, "self-loop transition without guard", "UNGUARDED_SELF_LOOP"})
			}
			if t.Guard != nil {
				m := guardPattern.FindStringSubmatch(*t.Guard)
				if m == nil {
					errs = append(errs, ValidationError{tPath + ".guard", "fails guard grammar", "INVALID_GUARD"})
				} else if !declaredCounters[m[1]] {
					errs = append(errs, ValidationError{tPath + ".guard", "references undeclared counter: " + m[1], "UNDECLARED_COUNTER"})
				}
			}
			counterNames := make([]string, 0, len(t.SetsCounters))
			for counterName := range t.SetsCounters {
				counterNames = append(counterNames, counterName)
			}
			sort.Strings(counterNames)
			for _, counterName := range counterNames {
				if !declaredCounters[counterName] {
					errs = append(errs, ValidationError{tPath + ".setsCounters", "references undeclared counter: " + counterName, "UNDECLARED_COUNTER"})
				}
			}
		}
	}

	return errs
}
