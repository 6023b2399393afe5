package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus records pipeline observations as Prometheus metrics on its own
// registry.
type Prometheus struct {
	registry *prometheus.Registry

	ruleEvaluations *prometheus.CounterVec
	ruleDuration    *prometheus.HistogramVec
	findings        *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	records         prometheus.Counter
}

// NewPrometheus registers the pipeline metrics under namespace. A nil
// registry gets a fresh one.
func NewPrometheus(namespace string, registry *prometheus.Registry) *Prometheus {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "specetl"
	}

	p := &Prometheus{
		registry: registry,
		ruleEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Business rule evaluations by rule and outcome.",
		}, []string{"rule", "outcome"}),
		ruleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rule_duration_seconds",
			Help:      "Time spent evaluating one business rule.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"rule"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_findings_total",
			Help:      "Validation findings by column.",
		}, []string{"column"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End to end pipeline run duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Rows processed by successful runs.",
		}),
	}

	registry.MustRegister(p.ruleEvaluations, p.ruleDuration, p.findings, p.runs, p.runDuration, p.records)
	return p
}

func (p *Prometheus) RuleApplied(rule string, ok bool, d time.Duration) {
	outcome := "applied"
	if !ok {
		outcome = "failed"
	}
	p.ruleEvaluations.WithLabelValues(rule, outcome).Inc()
	p.ruleDuration.WithLabelValues(rule).Observe(d.Seconds())
}

func (p *Prometheus) ValidationFindings(column string, n int) {
	if n > 0 {
		p.findings.WithLabelValues(column).Add(float64(n))
	}
}

func (p *Prometheus) RunCompleted(status string, records int, d time.Duration) {
	p.runs.WithLabelValues(status).Inc()
	p.runDuration.Observe(d.Seconds())
	if status == "ok" {
		p.records.Add(float64(records))
	}
}

// Registry returns the registry the metrics are registered on.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
