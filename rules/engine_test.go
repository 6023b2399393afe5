package rules

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/formula"
)

func salesDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	return mustDataset(t,
		dataset.Column{Name: "sales", Values: nums(100, 200, 300)},
		dataset.Column{Name: "target", Values: nums(150, 150, 150)},
	)
}

func floats(t *testing.T, ds *dataset.Dataset, col string) []float64 {
	t.Helper()
	values, ok := ds.Column(col)
	if !ok {
		t.Fatalf("column %q missing", col)
	}
	out := make([]float64, len(values))
	for i, v := range values {
		f, ok := v.Float()
		if !ok {
			t.Fatalf("%s[%d] = %v is not numeric", col, i, v)
		}
		out[i] = f
	}
	return out
}

func allMissing(values []dataset.Value) bool {
	for _, v := range values {
		f, ok := v.Float()
		if !ok || !math.IsNaN(f) {
			return false
		}
	}
	return true
}

// TestApplyBonusExample verifies a formula over a column and a constant
func TestApplyBonusExample(t *testing.T) {
	ds := salesDataset(t)
	out, results := NewEngine().Apply(ds,
		[]BusinessRule{{Name: "bonus", Formula: "df['sales'] * rate", OutputColumn: "bonus"}},
		map[string]dataset.Value{"rate": dataset.Number(0.1)},
	)

	got := floats(t, out, "bonus")
	want := []float64{10, 20, 30}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("bonus[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if len(results) != 1 || !results[0].Applied || results[0].Shape != formula.Sequence {
		t.Errorf("results = %+v", results[0])
	}
	if ds.Has("bonus") {
		t.Error("Apply() modified the input dataset")
	}
}

// TestApplyDeclaredOrder verifies later rules see earlier outputs
func TestApplyDeclaredOrder(t *testing.T) {
	out, results := NewEngine().Apply(salesDataset(t), []BusinessRule{
		{Name: "bonus", Formula: "df['sales'] * 0.1", OutputColumn: "bonus"},
		{Name: "total", Formula: "df['bonus'] + 5", OutputColumn: "total_bonus", Dependencies: []string{"bonus"}},
	}, nil)

	for _, r := range results {
		if r.Error != nil {
			t.Fatalf("rule %s failed: %v", r.RuleName, r.Error)
		}
	}
	if got := floats(t, out, "total_bonus"); got[2] != 35 {
		t.Errorf("total_bonus = %v, want [15 25 35]", got)
	}
	if cols := out.Columns(); strings.Join(cols, ",") != "sales,target,bonus,total_bonus" {
		t.Errorf("columns = %v", cols)
	}
}

// TestApplyDependenciesDoNotReorder verifies a rule referencing a later output fails
func TestApplyDependenciesDoNotReorder(t *testing.T) {
	out, results := NewEngine().Apply(salesDataset(t), []BusinessRule{
		{Name: "total", Formula: "df['bonus'] + 5", OutputColumn: "total_bonus", Dependencies: []string{"bonus"}},
		{Name: "bonus", Formula: "df['sales'] * 0.1", OutputColumn: "bonus"},
	}, nil)

	if results[0].Error == nil {
		t.Fatal("first rule should fail because bonus does not exist yet")
	}
	col, _ := out.Column("total_bonus")
	if !allMissing(col) {
		t.Errorf("total_bonus = %v, want all missing", col)
	}
	if results[1].Error != nil {
		t.Errorf("second rule failed: %v", results[1].Error)
	}
}

// TestApplyUndefinedIdentifier verifies failure isolation per rule
func TestApplyUndefinedIdentifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	out, results := NewEngine(WithLogger(logger)).Apply(salesDataset(t), []BusinessRule{
		{Name: "broken", Formula: "df['sales'] * undefined_rate", OutputColumn: "broken"},
		{Name: "ok", Formula: "df['sales'] - df['target']", OutputColumn: "gap"},
	}, nil)

	col, _ := out.Column("broken")
	if !allMissing(col) || len(col) != 3 {
		t.Errorf("broken = %v, want 3 missing values", col)
	}
	if !errors.Is(results[0].Error, formula.ErrUndefined) || results[0].Applied {
		t.Errorf("result = %+v, want ErrUndefined", results[0])
	}
	if got := floats(t, out, "gap"); got[0] != -50 || got[2] != 150 {
		t.Errorf("gap = %v", got)
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "rule=broken") {
		t.Errorf("expected a warning for the broken rule, got %q", buf.String())
	}
}

// TestApplyCoercion verifies the result to column policy
func TestApplyCoercion(t *testing.T) {
	tests := []struct {
		name      string
		formula   string
		wantShape formula.ResultKind
		wantErr   error
		check     func(t *testing.T, col []dataset.Value)
	}{
		{
			name:      "Sequence row wise",
			formula:   "df['sales'] / 100",
			wantShape: formula.Sequence,
			check: func(t *testing.T, col []dataset.Value) {
				if f, _ := col[1].Float(); f != 2 {
					t.Errorf("col[1] = %v, want 2", col[1])
				}
			},
		},
		{
			name:      "Scalar broadcast",
			formula:   "sum(df['sales'])",
			wantShape: formula.Scalar,
			check: func(t *testing.T, col []dataset.Value) {
				for i, v := range col {
					if f, _ := v.Float(); f != 600 {
						t.Errorf("col[%d] = %v, want 600", i, v)
					}
				}
			},
		},
		{
			name:      "String scalar broadcast",
			formula:   "'EMEA'",
			wantShape: formula.Scalar,
			check: func(t *testing.T, col []dataset.Value) {
				if s, _ := col[2].Str(); s != "EMEA" {
					t.Errorf("col[2] = %v", col[2])
				}
			},
		},
		{
			name:      "Unrepresentable",
			formula:   "df",
			wantShape: formula.Unrepresentable,
			wantErr:   ErrCoercion,
			check: func(t *testing.T, col []dataset.Value) {
				if !allMissing(col) {
					t.Errorf("col = %v, want missing", col)
				}
			},
		},
		{
			name:      "Division by zero",
			formula:   "1 / 0",
			wantShape: formula.Unrepresentable,
			wantErr:   formula.ErrDivisionByZero,
			check: func(t *testing.T, col []dataset.Value) {
				if !allMissing(col) {
					t.Errorf("col = %v, want missing", col)
				}
			},
		},
		{
			name:      "Syntax error",
			formula:   "df['sales'] *",
			wantShape: formula.Unrepresentable,
			wantErr:   formula.ErrSyntax,
			check: func(t *testing.T, col []dataset.Value) {
				if !allMissing(col) {
					t.Errorf("col = %v, want missing", col)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, results := NewEngine().Apply(salesDataset(t), []BusinessRule{{Name: "r", Formula: tt.formula, OutputColumn: "out"}}, nil)
			res := results[0]
			if res.Shape != tt.wantShape {
				t.Errorf("Shape = %v, want %v", res.Shape, tt.wantShape)
			}
			if tt.wantErr == nil && res.Error != nil {
				t.Errorf("unexpected error: %v", res.Error)
			}
			if tt.wantErr != nil && !errors.Is(res.Error, tt.wantErr) {
				t.Errorf("Error = %v, want %v", res.Error, tt.wantErr)
			}
			col, ok := out.Column("out")
			if !ok || len(col) != 3 {
				t.Fatalf("output column = %v", col)
			}
			tt.check(t, col)
		})
	}
}

// TestApplyOverwrite verifies an output column may replace an input column in place
func TestApplyOverwrite(t *testing.T) {
	ds := salesDataset(t)
	out, _ := NewEngine().Apply(ds, []BusinessRule{{Name: "double", Formula: "df['sales'] * 2", OutputColumn: "sales"}}, nil)

	if got := floats(t, out, "sales"); got[0] != 200 {
		t.Errorf("sales = %v, want doubled", got)
	}
	if got := floats(t, ds, "sales"); got[0] != 100 {
		t.Errorf("input sales = %v, want untouched", got)
	}
	if strings.Join(out.Columns(), ",") != "sales,target" {
		t.Errorf("columns = %v", out.Columns())
	}
}

// TestApplyNoRules verifies zero rules returns an identical dataset
func TestApplyNoRules(t *testing.T) {
	ds := salesDataset(t)
	out, results := NewEngine().Apply(ds, nil, nil)
	if !out.Equal(ds) || len(results) != 0 {
		t.Error("Apply() with no rules should return an identical dataset")
	}
}

// TestApplyDeterministic verifies two runs yield identical output
func TestApplyDeterministic(t *testing.T) {
	rules := []BusinessRule{
		{Name: "ratio", Formula: "df['sales'] / df['target']", OutputColumn: "ratio"},
		{Name: "flag", Formula: "where(df['ratio'] > 1, 'over', 'under')", OutputColumn: "flag"},
	}
	en := NewEngine()
	a, _ := en.Apply(salesDataset(t), rules, nil)
	b, _ := en.Apply(salesDataset(t), rules, nil)

	if a.Fingerprint() != b.Fingerprint() || !a.Equal(b) {
		t.Error("Apply() is not deterministic")
	}
}

// TestApplyCostLimit verifies the step budget stops expensive formulas
func TestApplyCostLimit(t *testing.T) {
	out, results := NewEngine(WithCostLimit(1)).Apply(salesDataset(t),
		[]BusinessRule{{Name: "big", Formula: "df['sales'] * 2 + df['target'] * 3", OutputColumn: "big"}}, nil)

	if !errors.Is(results[0].Error, formula.ErrBudgetExceeded) {
		t.Errorf("Error = %v, want ErrBudgetExceeded", results[0].Error)
	}
	col, _ := out.Column("big")
	if !allMissing(col) {
		t.Errorf("big = %v, want missing", col)
	}
}

// TestCompileRuleCaching verifies programs are memoised by formula text
func TestCompileRuleCaching(t *testing.T) {
	en := NewEngine()
	p1, err := en.CompileRule("df['sales'] + 1")
	if err != nil {
		t.Fatalf("CompileRule() failed: %v", err)
	}
	p2, err := en.CompileRule("df['sales'] + 1")
	if err != nil {
		t.Fatalf("CompileRule() failed: %v", err)
	}
	if p1 != p2 {
		t.Error("CompileRule() should return the cached program")
	}
	if _, err := en.CompileRule("(("); err == nil {
		t.Error("CompileRule() should fail on a syntax error")
	}
}

type countingRecorder struct {
	mu      sync.Mutex
	applied map[bool]int
}

func (r *countingRecorder) RuleApplied(_ string, ok bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied[ok]++
}
func (r *countingRecorder) ValidationFindings(string, int)          {}
func (r *countingRecorder) RunCompleted(string, int, time.Duration) {}

// TestApplyRecordsMetrics verifies each rule outcome reaches the recorder
func TestApplyRecordsMetrics(t *testing.T) {
	rec := &countingRecorder{applied: map[bool]int{}}
	NewEngine(WithMetrics(rec)).Apply(salesDataset(t), []BusinessRule{
		{Name: "ok", Formula: "1", OutputColumn: "one"},
		{Name: "bad", Formula: "nope", OutputColumn: "two"},
	}, nil)

	if rec.applied[true] != 1 || rec.applied[false] != 1 {
		t.Errorf("recorded = %v, want one success and one failure", rec.applied)
	}
}

// TestEngineConcurrentApply verifies one engine can serve concurrent runs
func TestEngineConcurrentApply(t *testing.T) {
	en := NewEngine()
	ds := salesDataset(t)
	rules := []BusinessRule{{Name: "bonus", Formula: "df['sales'] * 0.1", OutputColumn: "bonus"}}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results := en.Apply(ds, rules, nil)
			if results[0].Error != nil {
				errs <- results[0].Error
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Apply() failed: %v", err)
	}
}
