package rules

import (
	"sort"

	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/formula"
)

// RuleType selects the check a ValidationRule performs.
type RuleType string

const (
	NotNull RuleType = "not_null"
	Range   RuleType = "range"
	Unique  RuleType = "unique"
	Custom  RuleType = "custom"
)

// ValidationRule is a declarative constraint on one column.
type ValidationRule struct {
	Column     string
	Type       RuleType
	Parameters map[string]any
}

// BusinessRule derives one column from a formula.
type BusinessRule struct {
	Name        string
	Description string
	Formula     string
	// Dependencies documents which columns the formula reads. It does not
	// change execution order; rules run in declaration order.
	Dependencies []string
	OutputColumn string
}

// ValidationReport maps a column name to its findings, in rule order. It is
// advisory and never blocks processing.
type ValidationReport map[string][]string

// Count returns the total number of findings.
func (r ValidationReport) Count() int {
	n := 0
	for _, msgs := range r {
		n += len(msgs)
	}
	return n
}

// Columns returns the columns that have findings, sorted by name.
func (r ValidationReport) Columns() []string {
	cols := make([]string, 0, len(r))
	for col := range r {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// RuleResult records what happened to one business rule during Apply.
type RuleResult struct {
	RuleName     string
	OutputColumn string
	// Shape is the kind of value the formula produced.
	Shape formula.ResultKind
	// Applied is false when the output column was filled with the missing
	// sentinel.
	Applied bool
	Error   error
}

// Specification is the parsed, immutable rule set for a run.
type Specification struct {
	validation []ValidationRule
	business   []BusinessRule
	constants  map[string]dataset.Value
	doc        Document
}

// ValidationRules returns a copy of the validation rules in declared order.
func (s *Specification) ValidationRules() []ValidationRule {
	out := make([]ValidationRule, len(s.validation))
	for i, r := range s.validation {
		r.Parameters = copyParams(r.Parameters)
		out[i] = r
	}
	return out
}

// BusinessRules returns a copy of the business rules in declared order.
func (s *Specification) BusinessRules() []BusinessRule {
	out := make([]BusinessRule, len(s.business))
	for i, r := range s.business {
		r.Dependencies = append([]string{}, r.Dependencies...)
		out[i] = r
	}
	return out
}

// Constants returns a copy of the named constants.
func (s *Specification) Constants() map[string]dataset.Value {
	out := make(map[string]dataset.Value, len(s.constants))
	for k, v := range s.constants {
		out[k] = v
	}
	return out
}

// Document returns the document the specification was built from.
func (s *Specification) Document() Document { return s.doc }

func copyParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
