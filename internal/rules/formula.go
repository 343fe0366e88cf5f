// Package rules validates compensation rules and evaluates their formulas.
package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/compenso/internal/domain"
)

// Formula expressions per rule kind. Variables are bound from the rule payload.
const (
	percentageExpr = `amount * value / 100.0`
	tieredExpr     = `amount <= threshold_x ? amount : threshold_x + (amount - threshold_x) * threshold_y / 100.0`
	fixedExpr      = `threshold_y > 0.0 && amount * threshold_y / 100.0 > threshold_x ? amount * threshold_y / 100.0 : threshold_x`
)

// FormulaEngine evaluates rule formulas as pre-compiled CEL programs.
// It is immutable after construction and safe for concurrent use.
type FormulaEngine struct {
	programs map[domain.RuleKind]cel.Program
}

// NewFormulaEngine compiles the formula of every rule kind.
func NewFormulaEngine() (*FormulaEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("value", cel.DoubleType),
		cel.Variable("threshold_x", cel.DoubleType),
		cel.Variable("threshold_y", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	exprs := map[domain.RuleKind]string{
		domain.KindPercentage: percentageExpr,
		domain.KindTiered:     tieredExpr,
		domain.KindFixed:      fixedExpr,
	}

	programs := make(map[domain.RuleKind]cel.Program, len(exprs))
	for kind, expr := range exprs {
		prg, err := compile(env, expr)
		if err != nil {
			return nil, fmt.Errorf("formula %s: %w", kind, err)
		}
		programs[kind] = prg
	}

	return &FormulaEngine{programs: programs}, nil
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile: %w", issues.Err())
	}

	if ast.OutputType() != cel.DoubleType {
		return nil, fmt.Errorf("expression must return double, got %s", ast.OutputType())
	}

	return env.Program(ast)
}

// Apply computes the compensation the rule yields on amount.
// The rule must be valid; invalid rules are rejected with domain.ErrInvalidRule.
func (e *FormulaEngine) Apply(rule domain.Rule, amount float64) (float64, error) {
	if err := Validate(rule); err != nil {
		return 0, err
	}

	activation := map[string]any{
		"amount":      amount,
		"value":       0.0,
		"threshold_x": 0.0,
		"threshold_y": 0.0,
	}

	switch f := rule.Formula.(type) {
	case domain.Percentage:
		activation["value"] = f.Value
	case domain.Tiered:
		activation["threshold_x"] = f.Threshold
		activation["threshold_y"] = f.Percent
	case domain.Fixed:
		activation["threshold_x"] = f.Amount
		activation["threshold_y"] = f.Percent
	}

	prg, ok := e.programs[rule.Kind()]
	if !ok {
		return 0, fmt.Errorf("%w: no formula for kind %q", domain.ErrInvalidRule, rule.Kind())
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return 0, fmt.Errorf("evaluation error: %w", err)
	}

	return toAmount(out)
}

// toAmount converts a CEL value to a float amount.
func toAmount(val ref.Val) (float64, error) {
	switch v := val.(type) {
	case types.Double:
		return float64(v), nil
	case types.Int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unexpected formula result type %s", val.Type())
	}
}
