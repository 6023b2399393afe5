package dataset

import (
	"math"
	"testing"
)

// TestValueNullSemantics verifies null and missing values
func TestValueNullSemantics(t *testing.T) {
	tests := []struct {
		name   string
		v      Value
		isNull bool
		str    string
	}{
		{"Null", Null(), true, ""},
		{"Missing", Missing(), true, ""},
		{"Number", Number(2.5), false, "2.5"},
		{"Integral number", Number(100), false, "100"},
		{"String", String("abc"), false, "abc"},
		{"Bool", Bool(true), false, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsNull(); got != tt.isNull {
				t.Errorf("IsNull() = %v, want %v", got, tt.isNull)
			}
			if got := tt.v.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

// TestValueEqual verifies NaN equals NaN and kinds never mix
func TestValueEqual(t *testing.T) {
	if !Missing().Equal(Number(math.NaN())) {
		t.Error("NaN should equal NaN")
	}
	if Number(1).Equal(Bool(true)) || Number(1).Equal(String("1")) {
		t.Error("values of different kinds should differ")
	}
	if !Null().Equal(Null()) || Null().Equal(Missing()) {
		t.Error("Null equals only Null")
	}
}

// TestFromNative verifies conversion of decoded JSON values
func TestFromNative(t *testing.T) {
	tests := []struct {
		in   any
		want Value
		ok   bool
	}{
		{nil, Null(), true},
		{1.5, Number(1.5), true},
		{3, Number(3), true},
		{"x", String("x"), true},
		{false, Bool(false), true},
		{[]any{1}, Value{}, false},
	}
	for _, tt := range tests {
		got, ok := FromNative(tt.in)
		if ok != tt.ok || (ok && !got.Equal(tt.want)) {
			t.Errorf("FromNative(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
