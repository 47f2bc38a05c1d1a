package policy

import "testing"

func hasCode(errs []ValidationError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestValidate_ValidSpecHasNoErrors(t *testing.T) {
	t.Parallel()

	spec := PolicySpec{
		Version:         "1",
		DefaultDecision: Deny,
		ToolRules:       []ToolRule{{ToolName: "search", Effect: Allow}},
	}
	if errs := Validate(spec); len(errs) != 0 {
		t.Fatalf("Validate() on a valid spec = %v, want none", errs)
	}
}

func TestValidate_MissingVersionAndBadDefaultDecision(t *testing.T) {
	t.Parallel()

	spec := PolicySpec{DefaultDecision: "maybe", ToolRules: []ToolRule{{ToolName: "a", Effect: Allow}}}
	errs := Validate(spec)
	if !hasCode(errs, "MISSING_VERSION") {
		t.Error("expected MISSING_VERSION")
	}
	if !hasCode(errs, "INVALID_DEFAULT_DECISION") {
		t.Error("expected INVALID_DEFAULT_DECISION")
	}
}

func TestValidate_NilToolRules(t *testing.T) {
	t.Parallel()

	spec := PolicySpec{Version: "1", DefaultDecision: Deny}
	errs := Validate(spec)
	if !hasCode(errs, "INVALID_TOOL_RULES") {
		t.Error("expected INVALID_TOOL_RULES for a nil toolRules slice")
	}
}

func TestValidate_DuplicateToolName(t *testing.T) {
	t.Parallel()

	spec := PolicySpec{
		Version:         "1",
		DefaultDecision: Deny,
		ToolRules: []ToolRule{
			{ToolName: "a", Effect: Allow},
			{ToolName: "a", Effect: Deny},
		},
	}
	errs := Validate(spec)
	if !hasCode(errs, "DUPLICATE_TOOL_NAME") {
		t.Error("expected DUPLICATE_TOOL_NAME")
	}
}

func TestValidate_InvalidRegex(t *testing.T) {
	t.Parallel()

	spec := PolicySpec{
		Version:         "1",
		DefaultDecision: Deny,
		ToolRules: []ToolRule{
			{ToolName: "a", Effect: Allow, DenyIfRegexMatch: []RegexConstraint{{JSONPath: "x", Pattern: "(unclosed"}}},
		},
	}
	errs := Validate(spec)
	if !hasCode(errs, "INVALID_REGEX") {
		t.Error("expected INVALID_REGEX for an uncompilable denyIfRegexMatch pattern")
	}
}

func TestValidate_UndeclaredRequireState(t *testing.T) {
	t.Parallel()

	state := "active"
	spec := PolicySpec{
		Version:         "1",
		DefaultDecision: Deny,
		ToolRules:       []ToolRule{{ToolName: "a", Effect: Allow, RequireState: &state}},
		StateMachine:    &StateMachine{States: []string{"idle"}, InitialState: "idle"},
	}
	errs := Validate(spec)
	if !hasCode(errs, "UNDECLARED_STATE") {
		t.Error("expected UNDECLARED_STATE for a requireState outside the declared set")
	}
}

func TestValidate_StateMachineTransitionRules(t *testing.T) {
	t.Parallel()

	guard := "not a guard"
	spec := PolicySpec{
		Version:         "1",
		DefaultDecision: Deny,
		ToolRules:       []ToolRule{{ToolName: "a", Effect: Allow}},
		StateMachine: &StateMachine{
			States:       []string{"idle"},
			InitialState: "missing-state",
			Transitions: []Transition{
				{FromState: "idle", ToState: "unknown", TriggeredByTool: "unknown-tool", Guard: &guard},
			},
		},
	}
	errs := Validate(spec)
	for _, code := range []string{"INVALID_INITIAL_STATE", "UNDECLARED_STATE", "UNDECLARED_TOOL", "INVALID_GUARD"} {
		if !hasCode(errs, code) {
			t.Errorf("expected %s among %v", code, errs)
		}
	}
}

func TestValidate_UnguardedSelfLoop(t *testing.T) {
	t.Parallel()

	spec := PolicySpec{
		Version:         "1",
		DefaultDecision: Deny,
		ToolRules:       []ToolRule{{ToolName: "a", Effect: Allow}},
		StateMachine: &StateMachine{
			States:       []string{"idle"},
			InitialState: "idle",
			Transitions:  []Transition{{FromState: "idle", ToState: "idle", TriggeredByTool: "a"}},
		},
	}
	errs := Validate(spec)
	if !hasCode(errs, "UNGUARDED_SELF_LOOP") {
		t.Error("expected UNGUARDED_SELF_LOOP for a self-loop transition with no guard")
	}
}

func TestValidate_UndeclaredCounterInGuardAndSetsCounters(t *testing.T) {
	t.Parallel()

	guard := "calls < 3"
	spec := PolicySpec{
		Version:         "1",
		DefaultDecision: Deny,
		ToolRules:       []ToolRule{{ToolName: "a", Effect: Allow}},
		StateMachine: &StateMachine{
			States:       []string{"idle", "active"},
			InitialState: "idle",
			Transitions: []Transition{
				{FromState: "idle", ToState: "active", TriggeredByTool: "a", Guard: &guard, SetsCounters: map[string]int64{"other": 1}},
			},
		},
	}
	errs := Validate(spec)
	count := 0
	for _, e := range errs {
		if e.Code == "UNDECLARED_COUNTER" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 UNDECLARED_COUNTER errors (guard + setsCounters), got %d: %v", count, errs)
	}
}

func TestValidate_CounterScopeMustBeSession(t *testing.T) {
	t.Parallel()

	spec := PolicySpec{
		Version:         "1",
		DefaultDecision: Deny,
		ToolRules:       []ToolRule{{ToolName: "a", Effect: Allow}},
		Counters:        []CounterDef{{Name: "c", Scope: "global"}},
	}
	errs := Validate(spec)
	if !hasCode(errs, "INVALID_COUNTER_SCOPE") {
		t.Error("expected INVALID_COUNTER_SCOPE")
	}
}

func TestErrInvalidSpec_WrapsValidationErrors(t *testing.T) {
	t.Parallel()

	errs := Validate(PolicySpec{})
	err := ErrInvalidSpec(errs)
	if err == nil {
		t.Fatal("ErrInvalidSpec must not return nil")
	}
	if err.Error() == "" {
		t.Error("InvalidSpecError.Error() must not be empty")
	}
}
