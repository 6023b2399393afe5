// Package dataset holds the in-memory columnar table passed between the
// pipeline stages, plus the CSV adapter used to load and persist it.
package dataset

import (
	"math"
	"strconv"
)

// Kind identifies the dynamic type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a single table cell.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

// Null returns the null value.
func Null() Value { return Value{} }

// Missing returns the sentinel missing value (NaN) used to fill a column whose
// rule failed.
func Missing() Value { return Value{kind: KindNumber, num: math.NaN()} }

// Number wraps a float64.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null or the NaN sentinel.
func (v Value) IsNull() bool {
	return v.kind == KindNull || (v.kind == KindNumber && math.IsNaN(v.num))
}

// Float returns the numeric value. Bools convert to 0/1.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Str returns the string payload of a string value.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Truth returns the bool payload of a bool value.
func (v Value) Truth() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Equal compares two values. Unlike IEEE comparison, NaN equals NaN so that
// sentinel-filled columns compare equal across runs.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsNaN(o.num) {
			return math.IsNaN(v.num) && math.IsNaN(o.num)
		}
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	}
	return true
}

// String renders v the way it is written to CSV. Null and NaN render empty.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) {
			return ""
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	}
	return ""
}

// Native converts v to a plain Go value: nil, float64, string or bool.
func (v Value) Native() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	}
	return nil
}

// FromNative converts a decoded JSON scalar into a Value.
func FromNative(x any) (Value, bool) {
	switch t := x.(type) {
	case nil:
		return Null(), true
	case float64:
		return Number(t), true
	case float32:
		return Number(float64(t)), true
	case int:
		return Number(float64(t)), true
	case int64:
		return Number(float64(t)), true
	case string:
		return String(t), true
	case bool:
		return Bool(t), true
	}
	return Value{}, false
}

// Key is a canonical, kind-qualified representation used for equality
// grouping. All nulls (including NaN) share one key.
func (v Value) Key() string {
	if v.IsNull() {
		return "\x00"
	}
	switch v.kind {
	case KindNumber:
		if v.num == 0 {
			return "n0"
		}
		return "n" + strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return "s" + v.str
	case KindBool:
		if v.b {
			return "bT"
		}
		return "bF"
	}
	return "\x00"
}
