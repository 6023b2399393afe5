// Package formula implements the restricted expression language used by
// business rules. Formulas are parsed into a small AST and interpreted
// against explicit bindings: the dataset frame, the specification constants
// and a fixed whitelist of pure functions. No other name resolves, and every
// evaluation runs under a step budget.
package formula

import (
	"errors"
	"math"

	"github.com/liamcoop/specetl/dataset"
)

// FrameName is the identifier the dataset is bound to inside formulas.
const FrameName = "df"

// DefaultCostLimit is the per-row step budget applied when no CostLimit
// option is given.
const DefaultCostLimit = 10000

// ResultKind tags the shape of an evaluation result.
type ResultKind int

const (
	Scalar ResultKind = iota
	Sequence
	Unrepresentable
)

func (k ResultKind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Sequence:
		return "sequence"
	default:
		return "unrepresentable"
	}
}

// Result is the value of a formula.
type Result struct {
	Kind     ResultKind
	Scalar   dataset.Value
	Sequence []dataset.Value
	// Type names the value when Kind is Unrepresentable.
	Type string
}

// Frame is the read-only view of the dataset a formula sees.
type Frame interface {
	Column(name string) ([]dataset.Value, bool)
	Len() int
}

// Bindings is everything a formula can reference besides the builtins.
type Bindings struct {
	Frame     Frame
	Constants map[string]dataset.Value
}

// Program is a compiled formula. It is immutable and safe for concurrent use.
type Program struct {
	src       string
	root      node
	costLimit int
}

// Option configures a Program.
type Option func(*Program)

// CostLimit caps the number of evaluation steps per dataset row. Each AST node
// costs one step and each element touched by an elementwise operation or
// aggregate costs one step; the total may not exceed steps times the frame's
// row count (at least one row). A non-positive limit disables the cap.
func CostLimit(steps int) Option {
	return func(p *Program) { p.costLimit = steps }
}

// Compile parses src. Names are not resolved until evaluation.
func Compile(src string, opts ...Option) (*Program, error) {
	root, err := parse(src)
	if err != nil {
		return nil, withFormula(err, src)
	}
	p := &Program{src: src, root: root, costLimit: DefaultCostLimit}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Source returns the formula text.
func (p *Program) Source() string { return p.src }

// Eval evaluates the program. Any failure is returned as *Error.
func (p *Program) Eval(b Bindings) (Result, error) {
	ev := &evaluator{b: b, limit: p.budget(b.Frame)}
	v, err := ev.eval(p.root)
	if err != nil {
		return Result{Kind: Unrepresentable}, withFormula(err, p.src)
	}
	return toResult(v), nil
}

// budget scales the per-row limit to the frame. Zero means no cap.
func (p *Program) budget(f Frame) int {
	if p.costLimit <= 0 {
		return 0
	}
	rows := 1
	if f != nil && f.Len() > 1 {
		rows = f.Len()
	}
	if p.costLimit > math.MaxInt/rows {
		return 0
	}
	return p.costLimit * rows
}

// Evaluate compiles and evaluates src in one call.
func Evaluate(src string, b Bindings, opts ...Option) (Result, error) {
	p, err := Compile(src, opts...)
	if err != nil {
		return Result{Kind: Unrepresentable}, err
	}
	return p.Eval(b)
}

func withFormula(err error, src string) error {
	var fe *Error
	if errors.As(err, &fe) {
		fe.Formula = src
		return fe
	}
	return &Error{Formula: src, Pos: -1, Msg: err.Error(), Err: err}
}

func toResult(v value) Result {
	switch t := v.(type) {
	case dataset.Value:
		return Result{Kind: Scalar, Scalar: t}
	case seq:
		return Result{Kind: Sequence, Sequence: []dataset.Value(t)}
	case frameRef:
		return Result{Kind: Unrepresentable, Type: "frame"}
	case *builtin:
		return Result{Kind: Unrepresentable, Type: "function " + t.name}
	case boundMethod:
		return Result{Kind: Unrepresentable, Type: "method " + t.name}
	case namespace:
		return Result{Kind: Unrepresentable, Type: "namespace " + string(t)}
	}
	return Result{Kind: Unrepresentable, Type: "unknown"}
}
