package policy

import "testing"

func TestEvaluateExpression_TrueBooleanAgainstCounters(t *testing.T) {
	t.Parallel()

	ok, err := evaluateExpression(`counters["calls"] < 3`, map[string]int64{"calls": 1}, nil)
	if err != nil {
		t.Fatalf("evaluateExpression() error: %v", err)
	}
	if !ok {
		t.Error("expected true when calls (1) < 3")
	}
}

func TestEvaluateExpression_FalseBooleanAgainstCounters(t *testing.T) {
	t.Parallel()

	ok, err := evaluateExpression(`counters["calls"] < 3`, map[string]int64{"calls": 5}, nil)
	if err != nil {
		t.Fatalf("evaluateExpression() error: %v", err)
	}
	if ok {
		t.Error("expected false when calls (5) is not < 3")
	}
}

func TestEvaluateExpression_AgainstPayload(t *testing.T) {
	t.Parallel()

	ok, err := evaluateExpression(`payload["region"] == "us"`, nil, map[string]any{"region": "us"})
	if err != nil {
		t.Fatalf("evaluateExpression() error: %v", err)
	}
	if !ok {
		t.Error("expected true when payload.region == us")
	}
}

func TestEvaluateExpression_MissingCounterTreatedAsAbsentKey(t *testing.T) {
	t.Parallel()

	_, err := evaluateExpression(`counters["missing"] < 3`, map[string]int64{}, nil)
	if err == nil {
		t.Error("expected an error: CEL map indexing on a missing key fails rather than defaulting to zero")
	}
}

func TestEvaluateExpression_CompileErrorFailsClosed(t *testing.T) {
	t.Parallel()

	ok, err := evaluateExpression("this is not valid cel (((", nil, nil)
	if err == nil {
		t.Error("expected a compile error")
	}
	if ok {
		t.Error("a compile error must fail closed (ok=false)")
	}
}

func TestEvaluateExpression_NonBooleanResultFailsClosed(t *testing.T) {
	t.Parallel()

	ok, err := evaluateExpression(`1 + 1`, nil, nil)
	if err == nil {
		t.Error("expected an error for a non-boolean result")
	}
	if ok {
		t.Error("a non-boolean result must fail closed (ok=false)")
	}
}

func TestEvaluateExpression_NilPayloadDoesNotPanic(t *testing.T) {
	t.Parallel()

	ok, err := evaluateExpression("true", map[string]int64{"x": 1}, nil)
	if err != nil {
		t.Fatalf("evaluateExpression() error: %v", err)
	}
	if !ok {
		t.Error("expected true for a literal true expression")
	}
}
