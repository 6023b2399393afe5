package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNopImplementsRecorder verifies the no-op recorder satisfies the interface
func TestNopImplementsRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RuleApplied("bonus", true, time.Millisecond)
	r.ValidationFindings("sales", 3)
	r.RunCompleted("ok", 10, time.Second)
}

// TestPrometheusRuleApplied verifies rule outcomes are counted by label
func TestPrometheusRuleApplied(t *testing.T) {
	p := NewPrometheus("test", prometheus.NewRegistry())

	p.RuleApplied("bonus", true, 2*time.Millisecond)
	p.RuleApplied("bonus", true, 3*time.Millisecond)
	p.RuleApplied("bonus", false, time.Millisecond)

	if got := testutil.ToFloat64(p.ruleEvaluations.WithLabelValues("bonus", "applied")); got != 2 {
		t.Errorf("applied count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.ruleEvaluations.WithLabelValues("bonus", "failed")); got != 1 {
		t.Errorf("failed count = %v, want 1", got)
	}
}

// TestPrometheusFindingsAndRuns verifies findings and run counters
func TestPrometheusFindingsAndRuns(t *testing.T) {
	p := NewPrometheus("", nil)

	p.ValidationFindings("sales", 4)
	p.ValidationFindings("sales", 0)
	p.RunCompleted("ok", 100, time.Second)
	p.RunCompleted("load_dataset", 0, time.Millisecond)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"findings", p.findings.WithLabelValues("sales"), 4},
		{"ok runs", p.runs.WithLabelValues("ok"), 1},
		{"failed runs", p.runs.WithLabelValues("load_dataset"), 1},
		{"records", p.records, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

// TestPrometheusHandler verifies the exposition endpoint serves registered metrics
func TestPrometheusHandler(t *testing.T) {
	p := NewPrometheus("specetl", nil)
	p.RunCompleted("ok", 3, time.Second)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "specetl_runs_total") {
		t.Errorf("body does not mention specetl_runs_total:\n%s", rec.Body.String())
	}
}
