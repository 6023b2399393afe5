package formula

import (
	"math"
	"unicode/utf8"

	"github.com/liamcoop/specetl/dataset"
)

type builtin struct {
	name string
	call func(e *evaluator, pos int, args []value) (value, error)
}

// builtins is the complete set of callable names. Anything not listed here,
// in namespaces, or in methods cannot be reached from a formula.
var builtins map[string]*builtin

// namespaces exposes the array-library spellings used by existing
// specification files (np.where, np.minimum, ...).
var namespaces map[string]map[string]value

// methods are callable on a column: df['x'].sum().
var methods map[string]*builtin

func init() {
	builtins = map[string]*builtin{
		"sum":     {name: "sum", call: callSum},
		"len":     {name: "len", call: callLen},
		"min":     {name: "min", call: extremeFn("min", -1)},
		"max":     {name: "max", call: extremeFn("max", 1)},
		"round":   {name: "round", call: callRound},
		"abs":     {name: "abs", call: callAbs},
		"mean":    {name: "mean", call: callMean},
		"count":   {name: "count", call: callCount},
		"where":   {name: "where", call: callWhere},
		"minimum": {name: "minimum", call: pairwiseFn("minimum", -1)},
		"maximum": {name: "maximum", call: pairwiseFn("maximum", 1)},
	}

	namespaces = map[string]map[string]value{
		"np": {
			"where":   builtins["where"],
			"minimum": builtins["minimum"],
			"maximum": builtins["maximum"],
			"abs":     builtins["abs"],
			"round":   builtins["round"],
			"sum":     builtins["sum"],
			"mean":    builtins["mean"],
			"min":     builtins["min"],
			"max":     builtins["max"],
			"nan":     dataset.Missing(),
		},
	}

	methods = map[string]*builtin{
		"sum":    builtins["sum"],
		"mean":   builtins["mean"],
		"count":  builtins["count"],
		"min":    builtins["min"],
		"max":    builtins["max"],
		"abs":    builtins["abs"],
		"round":  builtins["round"],
		"fillna": {name: "fillna", call: callFillNA},
	}
}

// IsReserved reports whether name is a keyword, literal or builtin of the
// formula language and therefore cannot be used as a constant name.
func IsReserved(name string) bool {
	switch name {
	case FrameName, "and", "or", "not", "True", "False", "None", "true", "false", "null":
		return true
	}
	if _, ok := builtins[name]; ok {
		return true
	}
	_, ok := namespaces[name]
	return ok
}

func arity(pos int, name string, args []value, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return newError(ErrType, pos, "%s() takes %d argument(s), got %d", name, min, len(args))
		}
		return newError(ErrType, pos, "%s() takes %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func column(pos int, name string, v value) (seq, error) {
	s, ok := v.(seq)
	if !ok {
		return nil, newError(ErrType, pos, "%s() expects a column, got %s", name, typeName(v))
	}
	return s, nil
}

// numbers returns the non-missing values of s as floats.
func numbers(pos int, name string, s seq) ([]float64, error) {
	out := make([]float64, 0, len(s))
	for _, v := range s {
		if v.IsNull() {
			continue
		}
		f, ok := v.Float()
		if !ok {
			return nil, newError(ErrType, pos, "%s() of non-numeric value %s", name, v.Kind())
		}
		out = append(out, f)
	}
	return out, nil
}

func callSum(e *evaluator, pos int, args []value) (value, error) {
	if err := arity(pos, "sum", args, 1, 2); err != nil {
		return nil, err
	}
	s, err := column(pos, "sum", args[0])
	if err != nil {
		return nil, err
	}
	if err := e.charge(pos, len(s)); err != nil {
		return nil, err
	}
	total := 0.0
	if len(args) == 2 {
		start, ok := args[1].(dataset.Value)
		f, isNum := start.Float()
		if !ok || !isNum {
			return nil, newError(ErrType, pos, "sum() start must be a number")
		}
		total = f
	}
	nums, err := numbers(pos, "sum", s)
	if err != nil {
		return nil, err
	}
	for _, f := range nums {
		total += f
	}
	return dataset.Number(total), nil
}

func callLen(e *evaluator, pos int, args []value) (value, error) {
	if err := arity(pos, "len", args, 1, 1); err != nil {
		return nil, err
	}
	switch t := args[0].(type) {
	case seq:
		return dataset.Number(float64(len(t))), nil
	case frameRef:
		return dataset.Number(float64(t.f.Len())), nil
	case dataset.Value:
		if s, ok := t.Str(); ok {
			return dataset.Number(float64(utf8.RuneCountInString(s))), nil
		}
	}
	return nil, newError(ErrType, pos, "len() of %s", typeName(args[0]))
}

func callMean(e *evaluator, pos int, args []value) (value, error) {
	if err := arity(pos, "mean", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := column(pos, "mean", args[0])
	if err != nil {
		return nil, err
	}
	if err := e.charge(pos, len(s)); err != nil {
		return nil, err
	}
	nums, err := numbers(pos, "mean", s)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return dataset.Missing(), nil
	}
	total := 0.0
	for _, f := range nums {
		total += f
	}
	return dataset.Number(total / float64(len(nums))), nil
}

func callCount(e *evaluator, pos int, args []value) (value, error) {
	if err := arity(pos, "count", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := column(pos, "count", args[0])
	if err != nil {
		return nil, err
	}
	if err := e.charge(pos, len(s)); err != nil {
		return nil, err
	}
	n := 0
	for _, v := range s {
		if !v.IsNull() {
			n++
		}
	}
	return dataset.Number(float64(n)), nil
}

// order compares two non-missing values of the same family.
func order(pos int, name string, a, b dataset.Value) (int, error) {
	if x, ok := a.Float(); ok {
		if y, ok := b.Float(); ok {
			return cmpFloat(x, y), nil
		}
	}
	if x, ok := a.Str(); ok {
		if y, ok := b.Str(); ok {
			return cmpString(x, y), nil
		}
	}
	return 0, newError(ErrType, pos, "%s() cannot compare %s and %s", name, a.Kind(), b.Kind())
}

// extremeFn builds min/max. With one column argument it aggregates over the
// non-missing values; with several arguments it works elementwise.
func extremeFn(name string, sign int) func(*evaluator, int, []value) (value, error) {
	pairwise := pairwiseFn(name, sign)
	return func(e *evaluator, pos int, args []value) (value, error) {
		if len(args) == 0 {
			return nil, newError(ErrType, pos, "%s() expects at least 1 argument", name)
		}
		if len(args) > 1 {
			return foldPairwise(e, pos, args, pairwise)
		}
		s, err := column(pos, name, args[0])
		if err != nil {
			return nil, err
		}
		if err := e.charge(pos, len(s)); err != nil {
			return nil, err
		}
		var best dataset.Value
		found := false
		for _, v := range s {
			if v.IsNull() {
				continue
			}
			if !found {
				best, found = v, true
				continue
			}
			c, err := order(pos, name, v, best)
			if err != nil {
				return nil, err
			}
			if c*sign > 0 {
				best = v
			}
		}
		if !found {
			return dataset.Missing(), nil
		}
		return best, nil
	}
}

func foldPairwise(e *evaluator, pos int, args []value, pair func(*evaluator, int, []value) (value, error)) (value, error) {
	acc := args[0]
	for _, next := range args[1:] {
		v, err := pair(e, pos, []value{acc, next})
		if err != nil {
			return nil, err
		}
		acc = v
	}
	return acc, nil
}

// pairwiseFn builds minimum/maximum: elementwise, missing values propagate.
func pairwiseFn(name string, sign int) func(*evaluator, int, []value) (value, error) {
	return func(e *evaluator, pos int, args []value) (value, error) {
		if err := arity(pos, name, args, 2, 2); err != nil {
			return nil, err
		}
		return e.broadcast(pos, args[0], args[1], func(a, b dataset.Value) (dataset.Value, error) {
			if a.IsNull() || b.IsNull() {
				return dataset.Missing(), nil
			}
			c, err := order(pos, name, a, b)
			if err != nil {
				return dataset.Value{}, err
			}
			if c*sign >= 0 {
				return a, nil
			}
			return b, nil
		})
	}
}

func callAbs(e *evaluator, pos int, args []value) (value, error) {
	if err := arity(pos, "abs", args, 1, 1); err != nil {
		return nil, err
	}
	return e.mapUnary(pos, args[0], func(v dataset.Value) (dataset.Value, error) {
		if v.IsNull() {
			return dataset.Missing(), nil
		}
		f, ok := v.Float()
		if !ok {
			return dataset.Value{}, newError(ErrType, pos, "abs() of %s", v.Kind())
		}
		return dataset.Number(math.Abs(f)), nil
	})
}

// callRound rounds half to even, matching the behaviour analysts get from
// their array libraries.
func callRound(e *evaluator, pos int, args []value) (value, error) {
	if err := arity(pos, "round", args, 1, 2); err != nil {
		return nil, err
	}
	digits := 0.0
	if len(args) == 2 {
		d, ok := args[1].(dataset.Value)
		f, isNum := d.Float()
		if !ok || !isNum || f != math.Trunc(f) {
			return nil, newError(ErrType, pos, "round() digits must be an integer")
		}
		digits = f
	}
	scale := math.Pow(10, digits)
	return e.mapUnary(pos, args[0], func(v dataset.Value) (dataset.Value, error) {
		if v.IsNull() {
			return dataset.Missing(), nil
		}
		f, ok := v.Float()
		if !ok {
			return dataset.Value{}, newError(ErrType, pos, "round() of %s", v.Kind())
		}
		if digits == 0 {
			return dataset.Number(math.RoundToEven(f)), nil
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return dataset.Number(f), nil
		}
		if scale == 0 {
			return dataset.Number(math.Copysign(0, f)), nil
		}
		scaled := f * scale
		if math.IsInf(scaled, 0) {
			// More digits than a float64 carries: f is already exact.
			return dataset.Number(f), nil
		}
		return dataset.Number(math.RoundToEven(scaled) / scale), nil
	})
}

// callWhere picks b where cond is truthy and c elsewhere, elementwise.
func callWhere(e *evaluator, pos int, args []value) (value, error) {
	if err := arity(pos, "where", args, 3, 3); err != nil {
		return nil, err
	}
	return e.broadcastN(pos, args, func(vs []dataset.Value) (dataset.Value, error) {
		if truthy(vs[0]) {
			return vs[1], nil
		}
		return vs[2], nil
	})
}

func callFillNA(e *evaluator, pos int, args []value) (value, error) {
	if err := arity(pos, "fillna", args, 2, 2); err != nil {
		return nil, err
	}
	return e.broadcastN(pos, args, func(vs []dataset.Value) (dataset.Value, error) {
		if vs[0].IsNull() {
			return vs[1], nil
		}
		return vs[0], nil
	})
}

// broadcastN generalises broadcast to any number of operands.
func (e *evaluator) broadcastN(pos int, args []value, f func([]dataset.Value) (dataset.Value, error)) (value, error) {
	n := -1
	for _, a := range args {
		switch t := a.(type) {
		case seq:
			if n >= 0 && len(t) != n {
				return nil, newError(ErrType, pos, "operands have different lengths %d and %d", n, len(t))
			}
			n = len(t)
		case dataset.Value:
		default:
			return nil, newError(ErrType, pos, "unsupported operand %s", typeName(a))
		}
	}

	row := make([]dataset.Value, len(args))
	fill := func(i int) {
		for j, a := range args {
			if s, ok := a.(seq); ok {
				row[j] = s[i]
			} else {
				row[j] = a.(dataset.Value)
			}
		}
	}
	if n < 0 {
		fill(0)
		return f(row)
	}
	if err := e.charge(pos, n); err != nil {
		return nil, err
	}
	out := make(seq, n)
	for i := 0; i < n; i++ {
		fill(i)
		v, err := f(row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
