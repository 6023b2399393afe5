package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/rules"
)

// FileSource reads a JSON specification and a CSV dataset from disk.
type FileSource struct {
	SpecPath string
	DataPath string
}

func (s FileSource) LoadSpecification(_ context.Context) (*rules.Specification, error) {
	data, err := os.ReadFile(s.SpecPath)
	if err != nil {
		return nil, &rules.SpecificationError{Path: s.SpecPath, Msg: "cannot read file", Err: err}
	}
	return rules.Parse(data)
}

func (s FileSource) LoadDataset(_ context.Context) (*dataset.Dataset, error) {
	return dataset.ReadCSVFile(s.DataPath)
}

// FileSink writes the processed dataset as CSV and the report as indented
// JSON. Either path may be empty to skip that output.
type FileSink struct {
	DataPath   string
	ReportPath string
}

func (s FileSink) Write(_ context.Context, res *Result) error {
	if s.DataPath != "" {
		var buf bytes.Buffer
		if err := dataset.WriteCSV(&buf, res.Dataset); err != nil {
			return &PersistenceError{Target: s.DataPath, Err: err}
		}
		if err := writeFile(s.DataPath, buf.Bytes()); err != nil {
			return &PersistenceError{Target: s.DataPath, Err: err}
		}
	}
	if s.ReportPath != "" {
		data, err := json.MarshalIndent(res.Report, "", "  ")
		if err != nil {
			return &PersistenceError{Target: s.ReportPath, Err: err}
		}
		if err := writeFile(s.ReportPath, append(data, '\n')); err != nil {
			return &PersistenceError{Target: s.ReportPath, Err: err}
		}
	}
	return nil
}

// writeFile replaces path through a temporary file in the same directory so
// readers never see a partial output.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
