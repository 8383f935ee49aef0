package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// newCELEnv creates the CEL environment for expression conditions. The full
// document is exposed as `doc`; common invoice fields get flat convenience
// variables so expressions stay short.
func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("document_type", cel.StringType),
		cel.Variable("sender_country", cel.StringType),
		cel.Variable("receiver_country", cel.StringType),
		cel.Variable("business_type", cel.StringType),
	)
}

// compileExpression compiles a CEL expression and checks its output type.
// Expressions must return bool (pass/fail) or a numeric score.
func compileExpression(env *cel.Env, ruleID, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", ruleID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", ruleID, outputType)
	}

	return env.Program(ast)
}

// exprPassed converts a CEL result to a pass/fail verdict. Numeric results
// pass when positive.
func exprPassed(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) > 0
	case types.Int:
		return int64(v) > 0
	}
	return false
}
