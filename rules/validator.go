package rules

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/liamcoop/specetl/dataset"
)

// Checker implements one validation rule type. It returns the findings for
// rule against values, the already resolved column. Checkers must not modify
// the dataset.
type Checker interface {
	Check(ds *dataset.Dataset, values []dataset.Value, rule ValidationRule) []string
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ds *dataset.Dataset, values []dataset.Value, rule ValidationRule) []string

// Check calls f.
func (f CheckerFunc) Check(ds *dataset.Dataset, values []dataset.Value, rule ValidationRule) []string {
	return f(ds, values, rule)
}

// Validator checks datasets against validation rules. Dispatch goes through
// a registry keyed by rule type, so new types are added with Register.
type Validator struct {
	checkers map[RuleType]Checker
	mu       sync.RWMutex
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*validatorConfig)

type validatorConfig struct {
	costLimit uint64
}

// WithExpressionCostLimit caps the CEL cost of a single custom rule
// evaluation.
func WithExpressionCostLimit(limit uint64) ValidatorOption {
	return func(c *validatorConfig) { c.costLimit = limit }
}

// NewValidator returns a validator with the built-in not_null, range, unique
// and custom checkers registered.
func NewValidator(opts ...ValidatorOption) *Validator {
	cfg := validatorConfig{costLimit: DefaultExpressionCostLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	v := &Validator{checkers: make(map[RuleType]Checker)}
	v.Register(NotNull, CheckerFunc(checkNotNull))
	v.Register(Range, CheckerFunc(checkRange))
	v.Register(Unique, CheckerFunc(checkUnique))
	v.Register(Custom, newCustomChecker(cfg.costLimit))
	return v
}

// Register installs c for rule type t, replacing any existing checker.
func (v *Validator) Register(t RuleType, c Checker) {
	v.mu.Lock()
	v.checkers[t] = c
	v.mu.Unlock()
}

// Validate runs every rule against ds. A rule that cannot be checked, because
// its column is missing, its type is unknown or its parameters are bad,
// becomes a finding under its column instead of stopping the run.
func (v *Validator) Validate(ds *dataset.Dataset, rules []ValidationRule) ValidationReport {
	report := make(ValidationReport)
	for _, rule := range rules {
		findings := v.check(ds, rule)
		if len(findings) > 0 {
			report[rule.Column] = append(report[rule.Column], findings...)
		}
	}
	return report
}

func (v *Validator) check(ds *dataset.Dataset, rule ValidationRule) (findings []string) {
	defer func() {
		if r := recover(); r != nil {
			findings = []string{fmt.Sprintf("Column '%s' %s check failed: %v", rule.Column, rule.Type, r)}
		}
	}()

	v.mu.RLock()
	c, ok := v.checkers[rule.Type]
	v.mu.RUnlock()
	if !ok {
		return []string{fmt.Sprintf("Column '%s' has unknown rule type '%s'", rule.Column, rule.Type)}
	}

	values, ok := ds.Column(rule.Column)
	if !ok {
		return []string{fmt.Sprintf("Column '%s' not found in dataset", rule.Column)}
	}
	return c.Check(ds, values, rule)
}

func checkNotNull(_ *dataset.Dataset, values []dataset.Value, rule ValidationRule) []string {
	n := 0
	for _, v := range values {
		if v.IsNull() {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return []string{fmt.Sprintf("Column '%s' has %d null values", rule.Column, n)}
}

func checkRange(_ *dataset.Dataset, values []dataset.Value, rule ValidationRule) []string {
	var findings []string
	min, hasMin, err := bound(rule.Parameters, "min")
	if err != nil {
		findings = append(findings, fmt.Sprintf("Column '%s' %v", rule.Column, err))
	}
	max, hasMax, err := bound(rule.Parameters, "max")
	if err != nil {
		findings = append(findings, fmt.Sprintf("Column '%s' %v", rule.Column, err))
	}

	below, above := 0, 0
	for _, v := range values {
		if v.Kind() != dataset.KindNumber || v.IsNull() {
			continue
		}
		f, _ := v.Float()
		if hasMin && f < min {
			below++
		}
		if hasMax && f > max {
			above++
		}
	}
	if below > 0 {
		findings = append(findings, fmt.Sprintf("Column '%s' has %d values below minimum %s", rule.Column, below, formatBound(min)))
	}
	if above > 0 {
		findings = append(findings, fmt.Sprintf("Column '%s' has %d values above maximum %s", rule.Column, above, formatBound(max)))
	}
	return findings
}

// bound reads an optional numeric range parameter.
func bound(params map[string]any, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	v, ok := dataset.FromNative(raw)
	f, _ := v.Float()
	if !ok || v.Kind() != dataset.KindNumber || math.IsNaN(f) {
		return 0, false, fmt.Errorf("range parameter '%s' must be a number, got %v", key, raw)
	}
	return f, true, nil
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func checkUnique(_ *dataset.Dataset, values []dataset.Value, rule ValidationRule) []string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v.Key()] = struct{}{}
	}
	dups := len(values) - len(seen)
	if dups == 0 {
		return nil
	}
	return []string{fmt.Sprintf("Column '%s' has %d duplicate values", rule.Column, dups)}
}
