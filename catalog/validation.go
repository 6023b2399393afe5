package catalog

import (
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/formula"
	"github.com/liamcoop/specetl/rules"
)

// Limits applied by ValidateSpecification.
const (
	MaxValidationRules = 500
	MaxBusinessRules   = 200
	MaxConstants       = 100
	MaxIdentifierLen   = 100
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LintOption configures ValidateSpecification.
type LintOption func(*lintConfig)

type lintConfig struct {
	columns map[string]bool
}

// WithDatasetColumns names the columns of the dataset the specification will
// run against. Every business rule dependency must then be one of them or
// the output_column of an earlier rule.
func WithDatasetColumns(cols ...string) LintOption {
	return func(c *lintConfig) {
		if c.columns == nil {
			c.columns = make(map[string]bool, len(cols))
		}
		for _, col := range cols {
			c.columns[col] = true
		}
	}
}

// ValidateSpecification checks a specification document more strictly than
// rules.Parse does: constant names must be usable in formulas, every formula
// and custom expression must compile, rule types must be known and business
// rule dependencies must be available when the rule runs. Rules still run in
// declaration order; dependencies are only checked, never used to reorder.
// All problems are returned joined in one error; nil means the document is
// acceptable.
func ValidateSpecification(doc rules.Document, opts ...LintOption) error {
	var cfg lintConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var errs []error

	if n := len(doc.ValidationRules); n > MaxValidationRules {
		errs = append(errs, fmt.Errorf("specification contains %d validation rules, maximum allowed is %d", n, MaxValidationRules))
	}
	if n := len(doc.BusinessRules); n > MaxBusinessRules {
		errs = append(errs, fmt.Errorf("specification contains %d business rules, maximum allowed is %d", n, MaxBusinessRules))
	}
	if n := len(doc.Constants); n > MaxConstants {
		errs = append(errs, fmt.Errorf("specification contains %d constants, maximum allowed is %d", n, MaxConstants))
	}

	for name := range doc.Constants {
		if err := validateIdentifier(name); err != nil {
			errs = append(errs, fmt.Errorf("invalid constant name %q: %w", name, err))
		}
	}

	for i, vr := range doc.ValidationRules {
		if err := validateRule(vr); err != nil {
			errs = append(errs, fmt.Errorf("validation_rules[%d] (%s): %w", i, vr.Column, err))
		}
	}

	inputs := make(map[string]bool, len(cfg.columns)+len(doc.ValidationRules))
	for col := range cfg.columns {
		inputs[col] = true
	}
	for _, vr := range doc.ValidationRules {
		inputs[vr.Column] = true
	}
	outputs := make(map[string]int, len(doc.BusinessRules))
	for i, br := range doc.BusinessRules {
		if _, ok := outputs[br.OutputColumn]; !ok {
			outputs[br.OutputColumn] = i
		}
	}
	produced := make(map[string]bool, len(doc.BusinessRules))

	seen := make(map[string]int, len(doc.BusinessRules))
	for i, br := range doc.BusinessRules {
		if j, dup := seen[br.Name]; dup {
			errs = append(errs, fmt.Errorf("business_rules[%d]: name %q already used by business_rules[%d]", i, br.Name, j))
		} else {
			seen[br.Name] = i
		}
		if br.OutputColumn == "" {
			errs = append(errs, fmt.Errorf("business_rules[%d] (%s): output_column cannot be empty", i, br.Name))
		}
		if _, err := formula.Compile(br.Formula); err != nil {
			errs = append(errs, fmt.Errorf("business_rules[%d] (%s): %w", i, br.Name, err))
		}
		for _, dep := range br.Dependencies {
			if produced[dep] || inputs[dep] {
				continue
			}
			if j, ok := outputs[dep]; ok {
				errs = append(errs, fmt.Errorf("business_rules[%d] (%s): dependency %q is not produced until business_rules[%d]", i, br.Name, dep, j))
			} else if cfg.columns != nil {
				errs = append(errs, fmt.Errorf("business_rules[%d] (%s): dependency %q is neither a dataset column nor an earlier output_column", i, br.Name, dep))
			}
		}
		produced[br.OutputColumn] = true
	}

	if _, err := rules.FromDocument(doc); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Problems splits an error returned by ValidateSpecification into one
// message per problem.
func Problems(err error) []string {
	if err == nil {
		return nil
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range joined.Unwrap() {
		out = append(out, e.Error())
	}
	return out
}

func validateRule(vr rules.ValidationRuleDoc) error {
	switch rules.RuleType(vr.Type) {
	case rules.NotNull, rules.Unique:
		return nil
	case rules.Range:
		lo, hasLo, err := numberParam(vr.Parameters, "min")
		if err != nil {
			return err
		}
		hi, hasHi, err := numberParam(vr.Parameters, "max")
		if err != nil {
			return err
		}
		if hasLo && hasHi && lo > hi {
			return fmt.Errorf("range min %v is greater than max %v", lo, hi)
		}
		return nil
	case rules.Custom:
		expr, ok := vr.Parameters["expression"].(string)
		if !ok || expr == "" {
			return fmt.Errorf("custom rule requires a string 'expression' parameter")
		}
		return rules.CheckExpression(expr)
	}
	return fmt.Errorf("unknown rule type %q (must be one of: not_null, range, unique, custom)", vr.Type)
}

func numberParam(params map[string]any, key string) (float64, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	n, ok := dataset.FromNative(v)
	f, _ := n.Float()
	if !ok || n.Kind() != dataset.KindNumber || math.IsNaN(f) {
		return 0, false, fmt.Errorf("range parameter %q must be a number, got %v", key, v)
	}
	return f, true, nil
}

// validateIdentifier checks that a constant name can be referenced from a
// formula.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > MaxIdentifierLen {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), MaxIdentifierLen)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}
	if formula.IsReserved(name) || isKeyword(name) {
		return fmt.Errorf("cannot use reserved name %q as identifier", name)
	}
	return nil
}

func isKeyword(name string) bool {
	switch name {
	case "if", "else", "for", "while", "in", "is", "lambda", "return", "import", "def", "class":
		return true
	}
	return false
}
