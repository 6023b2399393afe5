package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/specetl/dataset"
)

// DefaultExpressionCostLimit bounds a single CEL evaluation of a custom
// validation rule.
const DefaultExpressionCostLimit = 1000000

// customChecker evaluates the CEL predicate in parameters.expression once per
// row. The cell is bound to `value` and the whole row to `row`; any row for
// which the predicate is not true counts as a violation.
type customChecker struct {
	costLimit uint64

	envOnce sync.Once
	env     *cel.Env
	envErr  error

	programs map[string]cel.Program // expression -> compiled program
	mu       sync.RWMutex
}

func newCustomChecker(costLimit uint64) *customChecker {
	return &customChecker{
		costLimit: costLimit,
		programs:  make(map[string]cel.Program),
	}
}

func (c *customChecker) environment() (*cel.Env, error) {
	c.envOnce.Do(func() {
		c.env, c.envErr = cel.NewEnv(
			cel.Variable("value", cel.DynType),
			cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
			cel.CrossTypeNumericComparisons(true),
		)
	})
	return c.env, c.envErr
}

// compile returns the cached program for expr, compiling it on first use.
func (c *customChecker) compile(expr string) (cel.Program, error) {
	c.mu.RLock()
	prog, ok := c.programs[expr]
	c.mu.RUnlock()
	if ok {
		return prog, nil
	}

	env, err := c.environment()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must be boolean, got %s", t)
	}
	prog, err = env.Program(ast, cel.CostLimit(c.costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	c.mu.Lock()
	c.programs[expr] = prog
	c.mu.Unlock()
	return prog, nil
}

func (c *customChecker) Check(ds *dataset.Dataset, values []dataset.Value, rule ValidationRule) []string {
	expr, ok := rule.Parameters["expression"].(string)
	if !ok || expr == "" {
		return []string{fmt.Sprintf("Column '%s' custom rule requires a string 'expression' parameter", rule.Column)}
	}
	prog, err := c.compile(expr)
	if err != nil {
		return []string{fmt.Sprintf("Column '%s' custom rule is invalid: %v", rule.Column, err)}
	}

	violations := 0
	var firstErr error
	for i, v := range values {
		out, _, err := prog.Eval(map[string]any{
			"value": v.Native(),
			"row":   nativeRow(ds.Row(i)),
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			violations++
			continue
		}
		if b, ok := out.Value().(bool); !ok || !b {
			violations++
		}
	}
	if violations == 0 {
		return nil
	}

	label := expr
	if msg, ok := rule.Parameters["message"].(string); ok && msg != "" {
		label = msg
	}
	finding := fmt.Sprintf("Column '%s' has %d values failing custom rule: %s", rule.Column, violations, label)
	if firstErr != nil {
		finding += fmt.Sprintf(" (first error: %v)", firstErr)
	}
	return []string{finding}
}

func nativeRow(row map[string]dataset.Value) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v.Native()
	}
	return out
}

// CheckExpression reports whether expr compiles as a custom validation
// predicate.
func CheckExpression(expr string) error {
	_, err := newCustomChecker(DefaultExpressionCostLimit).compile(expr)
	return err
}
