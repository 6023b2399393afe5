package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/specetl/internal/metrics"
	"github.com/liamcoop/specetl/pipeline"
	"github.com/liamcoop/specetl/report"
	"github.com/liamcoop/specetl/rules"
	"github.com/liamcoop/specetl/storage/sqlite"
)

type runFlags struct {
	spec   string
	data   string
	output string
	report string
	sqlite string
	quiet  bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a dataset with a specification",
		Long: `Validate the dataset, apply the business rules in declared order and write the
processed dataset and report.

Validation findings and failing business rules are logged and reported but do
not stop processing. Unreadable inputs and failed writes are fatal.

Examples:
  specetl run --spec bonus.json --data employees.csv
  specetl run --spec bonus.json --data employees.csv --output out.csv --report report.json
  specetl run --spec bonus.json --data employees.csv --sqlite results.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProcess(cmd, root, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.spec, "spec", "s", "", "specification file (JSON)")
	cmd.Flags().StringVarP(&flags.data, "data", "d", "", "input dataset (CSV)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "processed dataset output (CSV)")
	cmd.Flags().StringVarP(&flags.report, "report", "r", "", "report output (JSON)")
	cmd.Flags().StringVar(&flags.sqlite, "sqlite", "", "also write results to this SQLite database")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "do not print the text report")
	_ = cmd.MarkFlagRequired("spec")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func runProcess(cmd *cobra.Command, root *rootFlags, flags *runFlags) error {
	cfg, log, shutdown, err := root.setup(cmd)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	var rec metrics.Recorder = metrics.Nop{}
	engine := rules.NewEngine(
		rules.WithLogger(log),
		rules.WithMetrics(rec),
		rules.WithCostLimit(cfg.Engine.CostLimit),
	)
	p := pipeline.New(
		pipeline.WithLogger(log),
		pipeline.WithMetrics(rec),
		pipeline.WithEngine(engine),
		pipeline.WithValidator(rules.NewValidator(rules.WithExpressionCostLimit(cfg.Engine.ExpressionCostLimit))),
		pipeline.WithGenerator(report.NewGenerator(report.WithDomainColumn(cfg.ReportColumn()))),
	)

	sinks := []pipeline.Sink{pipeline.FileSink{DataPath: flags.output, ReportPath: flags.report}}

	sqlitePath := flags.sqlite
	if sqlitePath == "" {
		sqlitePath = cfg.Output.SQLitePath
	}
	if sqlitePath != "" {
		db, err := sqlite.Open(sqlite.Config{Path: sqlitePath, Table: cfg.Output.SQLiteTable})
		if err != nil {
			return err
		}
		defer db.Close()
		sinks = append(sinks, db)
	}

	res, err := p.Run(cmd.Context(), pipeline.FileSource{SpecPath: flags.spec, DataPath: flags.data}, sinks...)
	if res != nil && !flags.quiet {
		if werr := res.Report.WriteText(cmd.OutOrStdout()); werr != nil {
			return werr
		}
		printProblems(cmd, res)
	}
	return err
}

func printProblems(cmd *cobra.Command, res *pipeline.Result) {
	out := cmd.OutOrStdout()
	if n := res.Validation.Count(); n > 0 {
		fmt.Fprintf(out, "\nValidation findings: %d\n", n)
		for _, col := range res.Validation.Columns() {
			for _, msg := range res.Validation[col] {
				fmt.Fprintf(out, "  [%s] %s\n", col, msg)
			}
		}
	}
	if failed := res.FailedRules(); len(failed) > 0 {
		fmt.Fprintf(out, "\nFailed business rules: %d\n", len(failed))
		for _, rr := range failed {
			fmt.Fprintf(out, "  %s -> %s: %v\n", rr.RuleName, rr.OutputColumn, rr.Error)
		}
	}
}
