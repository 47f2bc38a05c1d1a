package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// maxExpressionCost bounds CEL program evaluation cost, mirroring the
// cost-limited construction the teacher's CEL evaluator used for rule
// conditions (adapted here for the narrower requireExpression extension).
const maxExpressionCost = 1_000

var exprEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("counters", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		// The environment is fixed and known-good at compile time; a
		// construction failure here would be a programming error, not a
		// runtime condition, so requireExpression degenerates to "always
		// fails closed" rather than panicking.
		exprEnv = nil
		return
	}
	exprEnv = env
}

// evaluateExpression evaluates a restricted CEL boolean expression against
// the working counters and the request payload. It is purely additive to
// the guard grammar: any compile or runtime error is treated as "not
// satisfied" so the caller can fail closed, never as an engine crash.
func evaluateExpression(expr string, counters map[string]int64, payload map[string]any) (bool, error) {
	if exprEnv == nil {
		return false, fmt.Errorf("policy: CEL environment unavailable")
	}
	ast, issues := exprEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("policy: compile requireExpression: %w", issues.Err())
	}
	prg, err := exprEnv.Program(ast, cel.CostLimit(maxExpressionCost))
	if err != nil {
		return false, fmt.Errorf("policy: build requireExpression program: %w", err)
	}

	countersAny := make(map[string]any, len(counters))
	for k, v := range counters {
		countersAny[k] = v
	}
	if payload == nil {
		payload = map[string]any{}
	}

	out, _, err := prg.Eval(map[string]any{
		"counters": countersAny,
		"payload":  payload,
	})
	if err != nil {
		return false, fmt.Errorf("policy: evaluate requireExpression: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy: requireExpression did not evaluate to a boolean")
	}
	return b, nil
}
