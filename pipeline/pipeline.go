// Package pipeline sequences a run: load the specification and the dataset,
// validate, apply business rules, summarise and hand the results to sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/internal/metrics"
	"github.com/liamcoop/specetl/report"
	"github.com/liamcoop/specetl/rules"
)

// Source supplies the inputs of a run.
type Source interface {
	// LoadSpecification fails with *rules.SpecificationError.
	LoadSpecification(ctx context.Context) (*rules.Specification, error)
	// LoadDataset fails with *dataset.LoadError.
	LoadDataset(ctx context.Context) (*dataset.Dataset, error)
}

// Sink persists the outputs of a run.
type Sink interface {
	Write(ctx context.Context, res *Result) error
}

// Result is everything a run produces.
type Result struct {
	Validation rules.ValidationReport
	Rules      []*rules.RuleResult
	Dataset    *dataset.Dataset
	Report     *report.Report
}

// FailedRules returns the results of rules whose output was replaced by
// missing values.
func (r *Result) FailedRules() []*rules.RuleResult {
	var out []*rules.RuleResult
	for _, rr := range r.Rules {
		if rr.Error != nil {
			out = append(out, rr)
		}
	}
	return out
}

// PersistenceError reports a failure to write outputs. The Result returned
// alongside it is complete.
type PersistenceError struct {
	Target string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Target, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Pipeline runs specifications against datasets. It holds no per-run state,
// so one Pipeline may serve concurrent runs.
type Pipeline struct {
	validator *rules.Validator
	engine    *rules.Engine
	generator *report.Generator
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for findings, rule failures and run progress.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithValidator replaces the default validator.
func WithValidator(v *rules.Validator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// WithEngine replaces the default business rule engine.
func WithEngine(en *rules.Engine) Option {
	return func(p *Pipeline) { p.engine = en }
}

// WithGenerator replaces the default report generator.
func WithGenerator(g *report.Generator) Option {
	return func(p *Pipeline) { p.generator = g }
}

// New creates a pipeline. Components not supplied through options are built
// with their defaults and share the pipeline's logger and metrics.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.metrics == nil {
		p.metrics = metrics.Nop{}
	}
	if p.validator == nil {
		p.validator = rules.NewValidator()
	}
	if p.engine == nil {
		p.engine = rules.NewEngine(rules.WithLogger(p.logger), rules.WithMetrics(p.metrics))
	}
	if p.generator == nil {
		p.generator = report.NewGenerator()
	}
	return p
}

// Process validates ds, applies the business rules and summarises the
// result. Validation findings and rule failures are logged and returned but
// never stop processing. ds is not modified.
func (p *Pipeline) Process(spec *rules.Specification, ds *dataset.Dataset) *Result {
	validation := p.validator.Validate(ds, spec.ValidationRules())
	if n := validation.Count(); n > 0 {
		p.logger.Warn("validation findings", "count", n)
		for _, col := range validation.Columns() {
			msgs := validation[col]
			p.metrics.ValidationFindings(col, len(msgs))
			for _, msg := range msgs {
				p.logger.Warn(msg, "column", col)
			}
		}
	}

	out, results := p.engine.Apply(ds, spec.BusinessRules(), spec.Constants())
	p.logger.Info("business rules applied", "rules", len(results), "rows", out.Len(), "columns", len(out.Columns()))

	return &Result{
		Validation: validation,
		Rules:      results,
		Dataset:    out,
		Report:     p.generator.Summarize(out),
	}
}

// Run loads the inputs from src, processes them and writes the result to
// every sink in order. Load failures are fatal; a sink failure is returned
// as *PersistenceError together with the complete Result.
func (p *Pipeline) Run(ctx context.Context, src Source, sinks ...Sink) (*Result, error) {
	start := time.Now()
	fail := func(stage string, err error) (*Result, error) {
		p.metrics.RunCompleted(stage, 0, time.Since(start))
		p.logger.Error("run failed", "stage", stage, "error", err)
		return nil, err
	}

	spec, err := src.LoadSpecification(ctx)
	if err != nil {
		return fail("load_specification", err)
	}
	p.logger.Info("specification loaded",
		"validation_rules", len(spec.ValidationRules()),
		"business_rules", len(spec.BusinessRules()),
	)

	ds, err := src.LoadDataset(ctx)
	if err != nil {
		return fail("load_dataset", err)
	}
	p.logger.Info("dataset loaded", "rows", ds.Len(), "columns", len(ds.Columns()))

	if err := ctx.Err(); err != nil {
		return fail("canceled", err)
	}
	res := p.Process(spec, ds)

	for _, sink := range sinks {
		if err := sink.Write(ctx, res); err != nil {
			var pe *PersistenceError
			if !errors.As(err, &pe) {
				err = &PersistenceError{Target: fmt.Sprintf("%T", sink), Err: err}
			}
			p.metrics.RunCompleted("persist", res.Dataset.Len(), time.Since(start))
			p.logger.Error("run failed", "stage", "persist", "error", err)
			return res, err
		}
	}

	p.metrics.RunCompleted("ok", res.Dataset.Len(), time.Since(start))
	p.logger.Info("processing complete",
		"rows", res.Dataset.Len(),
		"columns", len(res.Dataset.Columns()),
		"failed_rules", len(res.FailedRules()),
		"duration", time.Since(start),
	)
	return res, nil
}
