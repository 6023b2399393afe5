package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// WriteText renders r for a terminal.
func (r *Report) WriteText(w io.Writer) error {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("PROCESSING RESULTS\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	p.Fprintf(&b, "Run:                     %s\n", r.RunID)
	p.Fprintf(&b, "Total Records Processed: %d\n", r.TotalRecords)

	if d := r.DomainSummary; d != nil {
		p.Fprintf(&b, "\nSummary of %s:\n", d.Column)
		p.Fprintf(&b, "  Total:          %.2f\n", d.Total)
		p.Fprintf(&b, "  Average:        %s\n", format(p, d.Average))
		p.Fprintf(&b, "  Max:            %s\n", format(p, d.Max))
		p.Fprintf(&b, "  Min:            %s\n", format(p, d.Min))
		p.Fprintf(&b, "  Positive Count: %d\n", d.PositiveCount)
	}

	if len(r.SummaryStatistics) > 0 {
		names := make([]string, 0, len(r.SummaryStatistics))
		for n := range r.SummaryStatistics {
			names = append(names, n)
		}
		sort.Strings(names)

		b.WriteString("\nSummary Statistics:\n")
		for _, n := range names {
			s := r.SummaryStatistics[n]
			fmt.Fprintf(&b, "  %s: mean=%s median=%s min=%s max=%s std=%s\n", n,
				format(p, s.Mean), format(p, s.Median), format(p, s.Min), format(p, s.Max), format(p, s.Std))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func format(p *message.Printer, f *float64) string {
	if f == nil {
		return "n/a"
	}
	return p.Sprintf("%.2f", *f)
}
