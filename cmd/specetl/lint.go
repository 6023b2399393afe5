package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/specetl/catalog"
	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/rules"
)

type lintFlags struct {
	spec   string
	data   string
	format string
}

// lintResult is the outcome for one specification file.
type lintResult struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

func newLintCmd() *cobra.Command {
	flags := &lintFlags{}
	cmd := &cobra.Command{
		Use:   "lint [files...]",
		Short: "Check specification files",
		Long: `Check specification files more strictly than run does: constant names must be
valid identifiers, every formula and custom expression must compile, rule
types must be known and no business rule may depend on a later rule's output.
With --data, every dependency must also be a column of that dataset or an
earlier rule's output.

Examples:
  specetl lint --spec bonus.json
  specetl lint --spec bonus.json --data employees.csv
  specetl lint specs/*.json --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args
			if flags.spec != "" {
				files = append([]string{flags.spec}, files...)
			}
			var opts []catalog.LintOption
			if flags.data != "" {
				ds, err := dataset.ReadCSVFile(flags.data)
				if err != nil {
					return err
				}
				opts = append(opts, catalog.WithDatasetColumns(ds.Columns()...))
			}
			return lintSpecs(cmd, files, flags.format, opts...)
		},
	}

	cmd.Flags().StringVarP(&flags.spec, "spec", "s", "", "specification file to check")
	cmd.Flags().StringVarP(&flags.data, "data", "d", "", "dataset (CSV) whose columns dependencies may reference")
	cmd.Flags().StringVar(&flags.format, "format", "text", "output format: text, json")
	return cmd
}

func lintSpecs(cmd *cobra.Command, files []string, format string, opts ...catalog.LintOption) error {
	if len(files) == 0 {
		return fmt.Errorf("no specification files given")
	}

	results := make([]lintResult, 0, len(files))
	invalid := 0
	for _, file := range files {
		r := lintFile(file, opts...)
		if !r.Valid {
			invalid++
		}
		results = append(results, r)
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	case "text":
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(out, "✓ %s\n", r.File)
				continue
			}
			fmt.Fprintf(out, "✗ %s\n", r.File)
			for _, p := range r.Problems {
				fmt.Fprintf(out, "    %s\n", p)
			}
		}
	default:
		return fmt.Errorf("unknown format %q (use text or json)", format)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d specification files are invalid", invalid, len(files))
	}
	return nil
}

func lintFile(path string, opts ...catalog.LintOption) lintResult {
	r := lintResult{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		r.Problems = []string{err.Error()}
		return r
	}
	spec, err := rules.Parse(data)
	if err != nil {
		r.Problems = []string{err.Error()}
		return r
	}
	if err := catalog.ValidateSpecification(spec.Document(), opts...); err != nil {
		r.Problems = catalog.Problems(err)
		return r
	}
	r.Valid = true
	return r
}
