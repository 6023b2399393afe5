package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/pipeline"
	"github.com/liamcoop/specetl/report"
)

func testResult(t *testing.T, runID string) *pipeline.Result {
	t.Helper()
	ds, err := dataset.FromColumns(
		dataset.Column{Name: "id", Values: []dataset.Value{dataset.Number(1), dataset.Number(2)}},
		dataset.Column{Name: "name", Values: []dataset.Value{dataset.String("Ann"), dataset.Null()}},
		dataset.Column{Name: "bonus", Values: []dataset.Value{dataset.Number(10.5), dataset.Missing()}},
		dataset.Column{Name: "active", Values: []dataset.Value{dataset.Bool(true), dataset.Bool(false)}},
		dataset.Column{Name: `odd "name"`, Values: []dataset.Value{dataset.Number(1), dataset.String("x")}},
	)
	if err != nil {
		t.Fatalf("FromColumns() failed: %v", err)
	}
	gen := report.NewGenerator(report.WithRunID(func() string { return runID }))
	return &pipeline.Result{Dataset: ds, Report: gen.Summarize(ds)}
}

// TestSinkWrite verifies the dataset table and run record
func TestSinkWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.db")
	sink, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Write(ctx, testResult(t, "run-1")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	var count int
	if err := sink.db.QueryRow(`SELECT COUNT(*) FROM "processed"`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("rows = %d, want 2", count)
	}

	var name sql.NullString
	var bonus sql.NullFloat64
	var active bool
	if err := sink.db.QueryRow(`SELECT name, bonus, active FROM processed WHERE id = 2`).Scan(&name, &bonus, &active); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if name.Valid || bonus.Valid || active {
		t.Errorf("row 2 = %v %v %v, want NULL NULL false", name, bonus, active)
	}

	data, err := sink.Report(ctx, "run-1")
	if err != nil {
		t.Fatalf("Report() failed: %v", err)
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil || rep.TotalRecords != 2 {
		t.Errorf("stored report = %s (%v)", data, err)
	}
}

// TestSinkReplacesTable verifies a second run replaces the dataset table
func TestSinkReplacesTable(t *testing.T) {
	sink, err := Open(Config{Path: filepath.Join(t.TempDir(), "out.db"), Table: "results", BusyTimeout: time.Second})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := sink.Write(ctx, testResult(t, id)); err != nil {
			t.Fatalf("Write(%s) failed: %v", id, err)
		}
	}

	var rows, runs int
	_ = sink.db.QueryRow(`SELECT COUNT(*) FROM results`).Scan(&rows)
	_ = sink.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs)
	if rows != 2 || runs != 2 {
		t.Errorf("rows = %d, runs = %d; want 2 and 2", rows, runs)
	}
}

// TestSinkDuplicateRun verifies failures surface as PersistenceError
func TestSinkDuplicateRun(t *testing.T) {
	sink, err := Open(Config{Path: filepath.Join(t.TempDir(), "out.db")})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Write(ctx, testResult(t, "same")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	err = sink.Write(ctx, testResult(t, "same"))
	var pe *pipeline.PersistenceError
	if !errors.As(err, &pe) {
		t.Errorf("Write() error = %v, want *pipeline.PersistenceError", err)
	}
}

// TestOpenRequiresPath verifies configuration checks
func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("Open() should fail without a path")
	}
}
