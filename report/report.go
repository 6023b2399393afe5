// Package report summarises a processed dataset.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/specetl/dataset"
)

// DefaultDomainColumn is the aggregate column summarised when no other is
// configured.
const DefaultDomainColumn = "total_bonus"

// Stats describes one numeric column. A nil field means the statistic is
// undefined, e.g. the standard deviation of fewer than two values.
type Stats struct {
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Std    *float64 `json:"std"`
}

// DomainSummary aggregates the designated outcome column.
type DomainSummary struct {
	Column        string   `json:"column"`
	Total         float64  `json:"total"`
	Average       *float64 `json:"average"`
	Max           *float64 `json:"max"`
	Min           *float64 `json:"min"`
	PositiveCount int      `json:"positive_count"`
}

// Report is the summary of one processed dataset.
type Report struct {
	RunID              string           `json:"run_id"`
	Timestamp          time.Time        `json:"timestamp"`
	TotalRecords       int              `json:"total_records"`
	SummaryStatistics  map[string]Stats `json:"summary_statistics"`
	DomainSummary      *DomainSummary   `json:"domain_summary,omitempty"`
	DatasetFingerprint string           `json:"dataset_fingerprint"`
}

// Generator builds reports.
type Generator struct {
	domainColumn string
	now          func() time.Time
	newID        func() string
}

// Option configures a Generator.
type Option func(*Generator)

// WithDomainColumn sets the column the domain summary is computed over. An
// empty name disables the domain summary.
func WithDomainColumn(name string) Option {
	return func(g *Generator) { g.domainColumn = name }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRunID replaces the random run ID source.
func WithRunID(newID func() string) Option {
	return func(g *Generator) { g.newID = newID }
}

// NewGenerator creates a generator summarising DefaultDomainColumn.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		domainColumn: DefaultDomainColumn,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Summarize computes statistics for every numeric column and the domain
// summary when its column is present. Missing and non-finite values are
// skipped. ds is not modified.
func (g *Generator) Summarize(ds *dataset.Dataset) *Report {
	r := &Report{
		RunID:              g.newID(),
		Timestamp:          g.now().UTC(),
		TotalRecords:       ds.Len(),
		SummaryStatistics:  make(map[string]Stats),
		DatasetFingerprint: fmt.Sprintf("%016x", ds.Fingerprint()),
	}

	for _, name := range ds.Columns() {
		if !ds.IsNumeric(name) {
			continue
		}
		col, _ := ds.Column(name)
		r.SummaryStatistics[name] = describe(finite(col))
	}

	if g.domainColumn != "" && ds.Has(g.domainColumn) {
		col, _ := ds.Column(g.domainColumn)
		r.DomainSummary = domain(g.domainColumn, finite(col))
	}
	return r
}

// finite returns the numeric, non-missing, finite values of col.
func finite(col []dataset.Value) []float64 {
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if v.Kind() != dataset.KindNumber {
			continue
		}
		f, _ := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func describe(xs []float64) Stats {
	if len(xs) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	mean := sum(xs) / float64(len(xs))
	s := Stats{
		Mean:   ptr(mean),
		Median: ptr(median(sorted)),
		Min:    ptr(sorted[0]),
		Max:    ptr(sorted[len(sorted)-1]),
	}
	if len(xs) > 1 {
		var ss float64
		for _, x := range xs {
			d := x - mean
			ss += d * d
		}
		s.Std = ptr(math.Sqrt(ss / float64(len(xs)-1)))
	}
	return s
}

func domain(column string, xs []float64) *DomainSummary {
	d := &DomainSummary{Column: column, Total: sum(xs)}
	if len(xs) == 0 {
		return d
	}
	st := describe(xs)
	d.Average, d.Min, d.Max = st.Mean, st.Min, st.Max
	for _, x := range xs {
		if x > 0 {
			d.PositiveCount++
		}
	}
	return d
}

func sum(xs []float64) float64 {
	var t float64
	for _, x := range xs {
		t += x
	}
	return t
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func ptr(f float64) *float64 { return &f }
