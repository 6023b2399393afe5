package formula

import (
	"math"

	"github.com/liamcoop/specetl/dataset"
)

// value is one of: dataset.Value, seq, frameRef, *builtin, boundMethod,
// namespace.
type value any

type (
	seq         []dataset.Value
	frameRef    struct{ f Frame }
	namespace   string
	boundMethod struct {
		name string
		recv seq
	}
)

type evaluator struct {
	b     Bindings
	steps int
	limit int
}

func (e *evaluator) charge(pos, n int) error {
	e.steps += n
	if e.limit > 0 && e.steps > e.limit {
		return newError(ErrBudgetExceeded, pos, "more than %d steps", e.limit)
	}
	return nil
}

func (e *evaluator) eval(n node) (value, error) {
	if err := e.charge(n.offset(), 1); err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case *numberLit:
		return dataset.Number(n.val), nil
	case *stringLit:
		return dataset.String(n.val), nil
	case *boolLit:
		return dataset.Bool(n.val), nil
	case *noneLit:
		return dataset.Null(), nil
	case *ident:
		return e.resolve(n)
	case *attrExpr:
		return e.evalAttr(n)
	case *indexExpr:
		return e.evalIndex(n)
	case *callExpr:
		return e.evalCall(n)
	case *unaryExpr:
		return e.evalUnary(n)
	case *binaryExpr:
		return e.evalBinary(n)
	}
	return nil, newError(ErrSyntax, n.offset(), "unsupported expression")
}

func (e *evaluator) resolve(n *ident) (value, error) {
	if v, ok := e.b.Constants[n.name]; ok {
		return v, nil
	}
	if n.name == FrameName && e.b.Frame != nil {
		return frameRef{f: e.b.Frame}, nil
	}
	if fn, ok := builtins[n.name]; ok {
		return fn, nil
	}
	if _, ok := namespaces[n.name]; ok {
		return namespace(n.name), nil
	}
	return nil, newError(ErrUndefined, n.pos, "name %q is not defined", n.name)
}

func (e *evaluator) evalAttr(n *attrExpr) (value, error) {
	x, err := e.eval(n.x)
	if err != nil {
		return nil, err
	}
	switch t := x.(type) {
	case namespace:
		member, ok := namespaces[string(t)][n.name]
		if !ok {
			return nil, newError(ErrUndefined, n.pos, "%s has no member %q", t, n.name)
		}
		return member, nil
	case frameRef:
		col, ok := t.f.Column(n.name)
		if !ok {
			return nil, newError(ErrUndefined, n.pos, "column %q not found", n.name)
		}
		return seq(col), nil
	case seq:
		if _, ok := methods[n.name]; !ok {
			return nil, newError(ErrUndefined, n.pos, "column has no method %q", n.name)
		}
		return boundMethod{name: n.name, recv: t}, nil
	}
	return nil, newError(ErrType, n.pos, "%s has no attribute %q", typeName(x), n.name)
}

func (e *evaluator) evalIndex(n *indexExpr) (value, error) {
	x, err := e.eval(n.x)
	if err != nil {
		return nil, err
	}
	frame, ok := x.(frameRef)
	if !ok {
		return nil, newError(ErrType, n.pos, "%s is not subscriptable", typeName(x))
	}
	k, err := e.eval(n.key)
	if err != nil {
		return nil, err
	}
	kv, ok := k.(dataset.Value)
	name, isStr := kv.Str()
	if !ok || !isStr {
		return nil, newError(ErrType, n.pos, "column key must be a string")
	}
	col, found := frame.f.Column(name)
	if !found {
		return nil, newError(ErrUndefined, n.pos, "column %q not found", name)
	}
	return seq(col), nil
}

func (e *evaluator) evalCall(n *callExpr) (value, error) {
	fn, err := e.eval(n.fn)
	if err != nil {
		return nil, err
	}
	args := make([]value, len(n.args))
	for i, a := range n.args {
		if args[i], err = e.eval(a); err != nil {
			return nil, err
		}
	}
	switch f := fn.(type) {
	case *builtin:
		return f.call(e, n.pos, args)
	case boundMethod:
		m := methods[f.name]
		return m.call(e, n.pos, append([]value{f.recv}, args...))
	}
	return nil, newError(ErrType, n.pos, "%s is not callable", typeName(fn))
}

func (e *evaluator) evalUnary(n *unaryExpr) (value, error) {
	x, err := e.eval(n.x)
	if err != nil {
		return nil, err
	}
	return e.mapUnary(n.pos, x, func(v dataset.Value) (dataset.Value, error) {
		switch n.op {
		case "not":
			return dataset.Bool(!truthy(v)), nil
		case "+", "-":
			if v.IsNull() {
				return dataset.Missing(), nil
			}
			f, ok := v.Float()
			if !ok {
				return dataset.Value{}, newError(ErrType, n.pos, "bad operand type for unary %s: %s", n.op, v.Kind())
			}
			if n.op == "-" {
				f = -f
			}
			return dataset.Number(f), nil
		}
		return dataset.Value{}, newError(ErrSyntax, n.pos, "unknown operator %q", n.op)
	})
}

func (e *evaluator) evalBinary(n *binaryExpr) (value, error) {
	l, err := e.eval(n.l)
	if err != nil {
		return nil, err
	}
	r, err := e.eval(n.r)
	if err != nil {
		return nil, err
	}
	_, lScalar := l.(dataset.Value)
	_, rScalar := r.(dataset.Value)
	scalarOnly := lScalar && rScalar

	return e.broadcast(n.pos, l, r, func(a, b dataset.Value) (dataset.Value, error) {
		switch n.op {
		case "and":
			return dataset.Bool(truthy(a) && truthy(b)), nil
		case "or":
			return dataset.Bool(truthy(a) || truthy(b)), nil
		case "<", "<=", ">", ">=", "==", "!=":
			return compare(n.pos, n.op, a, b)
		}
		return arith(n.pos, n.op, a, b, scalarOnly)
	})
}

// mapUnary applies f to a scalar or to every element of a sequence.
func (e *evaluator) mapUnary(pos int, x value, f func(dataset.Value) (dataset.Value, error)) (value, error) {
	switch t := x.(type) {
	case dataset.Value:
		return f(t)
	case seq:
		if err := e.charge(pos, len(t)); err != nil {
			return nil, err
		}
		out := make(seq, len(t))
		for i, v := range t {
			r, err := f(v)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return nil, newError(ErrType, pos, "unsupported operand %s", typeName(x))
}

// broadcast applies f pairwise. A scalar is repeated against every element
// of a sequence; two sequences must have the same length.
func (e *evaluator) broadcast(pos int, l, r value, f func(a, b dataset.Value) (dataset.Value, error)) (value, error) {
	ls, lSeq := l.(seq)
	rs, rSeq := r.(seq)
	lv, lScalar := l.(dataset.Value)
	rv, rScalar := r.(dataset.Value)
	if !(lSeq || lScalar) {
		return nil, newError(ErrType, pos, "unsupported operand %s", typeName(l))
	}
	if !(rSeq || rScalar) {
		return nil, newError(ErrType, pos, "unsupported operand %s", typeName(r))
	}

	switch {
	case lScalar && rScalar:
		return f(lv, rv)
	case lSeq && rSeq:
		if len(ls) != len(rs) {
			return nil, newError(ErrType, pos, "operands have different lengths %d and %d", len(ls), len(rs))
		}
	}

	n := len(ls)
	if !lSeq {
		n = len(rs)
	}
	if err := e.charge(pos, n); err != nil {
		return nil, err
	}
	out := make(seq, n)
	for i := 0; i < n; i++ {
		a, b := lv, rv
		if lSeq {
			a = ls[i]
		}
		if rSeq {
			b = rs[i]
		}
		v, err := f(a, b)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// arith implements the numeric operators. Missing operands produce NaN. A
// zero divisor fails only when both operands are scalars; inside a column it
// yields ±Inf or NaN.
func arith(pos int, op string, a, b dataset.Value, scalarOnly bool) (dataset.Value, error) {
	if as, ok := a.Str(); ok {
		if bs, ok := b.Str(); ok && op == "+" {
			return dataset.String(as + bs), nil
		}
	}
	if a.IsNull() || b.IsNull() {
		if isStringOperand(a) || isStringOperand(b) {
			return dataset.Value{}, newError(ErrType, pos, "unsupported operand types for %s: %s and %s", op, a.Kind(), b.Kind())
		}
		return dataset.Missing(), nil
	}
	x, okA := a.Float()
	y, okB := b.Float()
	if !okA || !okB {
		return dataset.Value{}, newError(ErrType, pos, "unsupported operand types for %s: %s and %s", op, a.Kind(), b.Kind())
	}

	if y == 0 && (op == "/" || op == "//" || op == "%") {
		if scalarOnly {
			return dataset.Value{}, newError(ErrDivisionByZero, pos, "%v %s 0", x, op)
		}
		if op == "%" {
			return dataset.Missing(), nil
		}
		q := x / y
		if op == "//" {
			q = math.Floor(q)
		}
		return dataset.Number(q), nil
	}

	switch op {
	case "+":
		return dataset.Number(x + y), nil
	case "-":
		return dataset.Number(x - y), nil
	case "*":
		return dataset.Number(x * y), nil
	case "/":
		return dataset.Number(x / y), nil
	case "//":
		return dataset.Number(math.Floor(x / y)), nil
	case "%":
		return dataset.Number(x - y*math.Floor(x/y)), nil
	case "**":
		r := math.Pow(x, y)
		if scalarOnly && (math.IsNaN(r) || math.IsInf(r, 0)) && !math.IsNaN(x) && !math.IsNaN(y) {
			return dataset.Value{}, newError(ErrType, pos, "%v ** %v is not a real number", x, y)
		}
		return dataset.Number(r), nil
	}
	return dataset.Value{}, newError(ErrSyntax, pos, "unknown operator %q", op)
}

func isStringOperand(v dataset.Value) bool { return v.Kind() == dataset.KindString }

// compare implements the comparison operators. A missing operand compares
// false (true for !=); values of unrelated types are unequal and unordered.
func compare(pos int, op string, a, b dataset.Value) (dataset.Value, error) {
	if a.IsNull() || b.IsNull() {
		return dataset.Bool(op == "!="), nil
	}
	var c int
	if x, ok := a.Float(); ok {
		y, ok := b.Float()
		if !ok {
			return unordered(pos, op, a, b)
		}
		c = cmpFloat(x, y)
	} else if x, ok := a.Str(); ok {
		y, ok := b.Str()
		if !ok {
			return unordered(pos, op, a, b)
		}
		c = cmpString(x, y)
	} else {
		return unordered(pos, op, a, b)
	}

	switch op {
	case "<":
		return dataset.Bool(c < 0), nil
	case "<=":
		return dataset.Bool(c <= 0), nil
	case ">":
		return dataset.Bool(c > 0), nil
	case ">=":
		return dataset.Bool(c >= 0), nil
	case "==":
		return dataset.Bool(c == 0), nil
	default:
		return dataset.Bool(c != 0), nil
	}
}

func unordered(pos int, op string, a, b dataset.Value) (dataset.Value, error) {
	switch op {
	case "==":
		return dataset.Bool(false), nil
	case "!=":
		return dataset.Bool(true), nil
	}
	return dataset.Value{}, newError(ErrType, pos, "%s not supported between %s and %s", op, a.Kind(), b.Kind())
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func cmpString(x, y string) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func truthy(v dataset.Value) bool {
	if v.IsNull() {
		return false
	}
	if b, ok := v.Truth(); ok {
		return b
	}
	if f, ok := v.Float(); ok {
		return f != 0
	}
	s, _ := v.Str()
	return s != ""
}

func typeName(v value) string {
	switch t := v.(type) {
	case dataset.Value:
		return t.Kind().String()
	case seq:
		return "column"
	case frameRef:
		return "frame"
	case *builtin:
		return "function " + t.name
	case boundMethod:
		return "method " + t.name
	case namespace:
		return "namespace " + string(t)
	}
	return "unknown"
}
