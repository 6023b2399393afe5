// Package catalog keeps named specifications compiled and ready to process
// datasets.
package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/internal/metrics"
	"github.com/liamcoop/specetl/pipeline"
	"github.com/liamcoop/specetl/report"
	"github.com/liamcoop/specetl/rules"
)

// Entry is a loaded specification together with the pipeline that runs it.
// An Entry is never modified after it is installed.
type Entry struct {
	Record   *rules.SpecRecord
	Spec     *rules.Specification
	Pipeline *pipeline.Pipeline
}

// Manager manages one compiled pipeline per active stored specification.
type Manager struct {
	store   rules.SpecStore
	cache   rules.SpecCache
	logger  *slog.Logger
	metrics metrics.Recorder
	engine    []rules.EngineOption
	validator []rules.ValidatorOption
	report    []report.Option

	entries map[string]*Entry
	mu      sync.RWMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger shared by every pipeline.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the recorder shared by every pipeline.
func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithCache puts a cache in front of the store's active listing.
func WithCache(c rules.SpecCache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithEngineOptions adds options for every entry's rules.Engine.
func WithEngineOptions(opts ...rules.EngineOption) Option {
	return func(m *Manager) { m.engine = append(m.engine, opts...) }
}

// WithValidatorOptions adds options for every entry's rules.Validator.
func WithValidatorOptions(opts ...rules.ValidatorOption) Option {
	return func(m *Manager) { m.validator = append(m.validator, opts...) }
}

// WithReportOptions adds options for every entry's report.Generator.
func WithReportOptions(opts ...report.Option) Option {
	return func(m *Manager) { m.report = append(m.report, opts...) }
}

// NewManager creates a manager over store. Call LoadAll to populate it.
func NewManager(store rules.SpecStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		logger:  slog.New(slog.DiscardHandler),
		metrics: metrics.Nop{},
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadAll compiles every active specification and replaces the loaded set.
func (m *Manager) LoadAll() error {
	var recs []*rules.SpecRecord
	if m.cache != nil {
		recs = m.cache.Get()
	}
	if recs == nil {
		var err error
		recs, err = m.store.ListActive()
		if err != nil {
			return fmt.Errorf("failed to fetch specifications: %w", err)
		}
		if m.cache != nil {
			m.cache.Set(recs)
		}
	}

	entries := make(map[string]*Entry, len(recs))
	for _, rec := range recs {
		e, err := m.build(rec)
		if err != nil {
			return fmt.Errorf("failed to initialize specification %s: %w", rec.Name, err)
		}
		entries[rec.Name] = e
	}

	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()

	m.logger.Info("specifications loaded", "count", len(entries))
	return nil
}

// build parses rec and precompiles its formulas into a fresh engine.
func (m *Manager) build(rec *rules.SpecRecord) (*Entry, error) {
	spec, err := rec.Specification()
	if err != nil {
		return nil, err
	}

	engineOpts := append([]rules.EngineOption{rules.WithLogger(m.logger), rules.WithMetrics(m.metrics)}, m.engine...)
	engine := rules.NewEngine(engineOpts...)
	for _, br := range spec.BusinessRules() {
		if _, err := engine.CompileRule(br.Formula); err != nil {
			return nil, fmt.Errorf("business rule %s: %w", br.Name, err)
		}
	}

	logger := m.logger.With("specification", rec.Name)
	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m.metrics),
		pipeline.WithEngine(engine),
		pipeline.WithValidator(rules.NewValidator(m.validator...)),
		pipeline.WithGenerator(report.NewGenerator(m.report...)),
	)
	return &Entry{Record: rec, Spec: spec, Pipeline: p}, nil
}

// Create stores a new specification and loads it when active.
func (m *Manager) Create(rec *rules.SpecRecord) error {
	if err := ValidateSpecification(rec.Document); err != nil {
		return &InvalidError{Name: rec.Name, Err: err}
	}
	e, err := m.build(rec)
	if err != nil {
		return &InvalidError{Name: rec.Name, Err: err}
	}
	if err := m.store.Add(rec); err != nil {
		return err
	}
	m.invalidate()
	cp := *rec
	e.Record = &cp

	if rec.Active {
		m.mu.Lock()
		m.entries[rec.Name] = e
		m.mu.Unlock()
	}
	m.logger.Info("specification created", "specification", rec.Name, "active", rec.Active)
	return nil
}

// Update replaces a stored specification. The new pipeline is compiled
// before it is swapped in, so concurrent Process calls see either the old
// or the new version, never a partial one.
func (m *Manager) Update(rec *rules.SpecRecord) error {
	if err := ValidateSpecification(rec.Document); err != nil {
		return &InvalidError{Name: rec.Name, Err: err}
	}
	e, err := m.build(rec)
	if err != nil {
		return &InvalidError{Name: rec.Name, Err: err}
	}
	if err := m.store.Update(rec); err != nil {
		return err
	}
	m.invalidate()
	cp := *rec
	e.Record = &cp

	m.mu.Lock()
	if rec.Active {
		m.entries[rec.Name] = e
	} else {
		delete(m.entries, rec.Name)
	}
	m.mu.Unlock()

	m.logger.Info("specification updated", "specification", rec.Name, "active", rec.Active)
	return nil
}

// Delete removes a specification from the store and unloads it.
func (m *Manager) Delete(name string) error {
	if err := m.store.Delete(name); err != nil {
		return err
	}
	m.invalidate()

	m.mu.Lock()
	delete(m.entries, name)
	m.mu.Unlock()

	m.logger.Info("specification deleted", "specification", name)
	return nil
}

// Get returns the loaded entry for name. Inactive specifications are not
// loaded.
func (m *Manager) Get(name string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not loaded", rules.ErrSpecNotFound, name)
	}
	return e, nil
}

// Names returns the loaded specification names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Process runs the named specification against ds.
func (m *Manager) Process(name string, ds *dataset.Dataset) (*pipeline.Result, error) {
	e, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	return e.Pipeline.Process(e.Spec, ds), nil
}

func (m *Manager) invalidate() {
	if m.cache != nil {
		m.cache.Invalidate()
	}
}

// InvalidError reports a specification rejected by ValidateSpecification or
// by compilation.
type InvalidError struct {
	Name string
	Err  error
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("specification %s is invalid: %v", e.Name, e.Err)
}

func (e *InvalidError) Unwrap() error { return e.Err }
