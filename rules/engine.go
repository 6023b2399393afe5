package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/formula"
	"github.com/liamcoop/specetl/internal/metrics"
)

// ErrCoercion is returned in RuleResult.Error when a formula produced a value
// that cannot become a column.
var ErrCoercion = errors.New("result cannot be coerced to a column")

// Engine applies business rules to datasets. Compiled formulas are memoised
// by their text, so one Engine can serve many runs of the same specification.
type Engine struct {
	logger    *slog.Logger
	metrics   metrics.Recorder
	costLimit int
	programs  map[string]*formula.Program // formula text -> compiled program
	mu        sync.RWMutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for rule failures.
func WithLogger(l *slog.Logger) EngineOption {
	return func(en *Engine) {
		if l != nil {
			en.logger = l
		}
	}
}

// WithMetrics sets the recorder that observes rule outcomes.
func WithMetrics(m metrics.Recorder) EngineOption {
	return func(en *Engine) {
		if m != nil {
			en.metrics = m
		}
	}
}

// WithCostLimit sets the per-row evaluation step budget of each formula.
func WithCostLimit(steps int) EngineOption {
	return func(en *Engine) { en.costLimit = steps }
}

// NewEngine creates an engine. Without options it discards logs, records no
// metrics and uses formula.DefaultCostLimit.
func NewEngine(opts ...EngineOption) *Engine {
	en := &Engine{
		logger:    slog.New(slog.DiscardHandler),
		metrics:   metrics.Nop{},
		costLimit: formula.DefaultCostLimit,
		programs:  make(map[string]*formula.Program),
	}
	for _, opt := range opts {
		opt(en)
	}
	return en
}

// CompileRule compiles a formula, reusing an earlier compilation of the same
// text.
func (en *Engine) CompileRule(text string) (*formula.Program, error) {
	en.mu.RLock()
	prog, ok := en.programs[text]
	en.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := formula.Compile(text, formula.CostLimit(en.costLimit))
	if err != nil {
		return nil, err
	}

	en.mu.Lock()
	en.programs[text] = prog
	en.mu.Unlock()
	return prog, nil
}

// Evaluate runs one rule's formula against ds without producing a column.
func (en *Engine) Evaluate(ds *dataset.Dataset, rule BusinessRule, constants map[string]dataset.Value) (formula.Result, error) {
	prog, err := en.CompileRule(rule.Formula)
	if err != nil {
		return formula.Result{Kind: formula.Unrepresentable}, err
	}
	return prog.Eval(formula.Bindings{Frame: ds, Constants: constants})
}

// Apply evaluates rules in declared order and returns a new dataset holding
// the input columns plus every rule's output column. Each rule sees the
// columns written by the rules before it. A failing rule gets an output
// column of missing values and a RuleResult with Error set; the remaining
// rules still run. ds itself is never modified.
func (en *Engine) Apply(ds *dataset.Dataset, rules []BusinessRule, constants map[string]dataset.Value) (*dataset.Dataset, []*RuleResult) {
	out := ds
	results := make([]*RuleResult, 0, len(rules))

	for _, rule := range rules {
		start := time.Now()
		en.logger.Debug("applying business rule", "rule", rule.Name, "output_column", rule.OutputColumn)

		res := &RuleResult{RuleName: rule.Name, OutputColumn: rule.OutputColumn, Shape: formula.Unrepresentable}
		column, err := en.column(out, rule, constants, res)
		if err != nil {
			res.Error = err
			column = missingColumn(out.Len())
		}

		next, werr := out.WithColumn(rule.OutputColumn, column)
		if werr != nil {
			// Only reachable with an empty output name, which Parse rejects.
			res.Error = fmt.Errorf("rule %s: %w", rule.Name, werr)
		} else {
			out = next
		}
		res.Applied = res.Error == nil

		if res.Error != nil {
			en.logger.Warn("business rule failed, output filled with missing values",
				"rule", rule.Name,
				"output_column", rule.OutputColumn,
				"error", res.Error,
			)
		}
		en.metrics.RuleApplied(rule.Name, res.Applied, time.Since(start))
		results = append(results, res)
	}

	return out, results
}

// column evaluates rule and coerces the result to len(ds) values: a sequence
// of matching length is used row by row and a scalar is broadcast.
func (en *Engine) column(ds *dataset.Dataset, rule BusinessRule, constants map[string]dataset.Value, res *RuleResult) ([]dataset.Value, error) {
	result, err := en.Evaluate(ds, rule, constants)
	if err != nil {
		return nil, err
	}
	res.Shape = result.Kind

	switch result.Kind {
	case formula.Sequence:
		if len(result.Sequence) != ds.Len() {
			return nil, fmt.Errorf("%w: sequence of length %d for %d rows", ErrCoercion, len(result.Sequence), ds.Len())
		}
		return append([]dataset.Value(nil), result.Sequence...), nil
	case formula.Scalar:
		col := make([]dataset.Value, ds.Len())
		for i := range col {
			col[i] = result.Scalar
		}
		return col, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCoercion, result.Type)
}

func missingColumn(n int) []dataset.Value {
	col := make([]dataset.Value, n)
	for i := range col {
		col[i] = dataset.Missing()
	}
	return col
}
