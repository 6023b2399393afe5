// Package sqlite persists processed datasets and their reports to a SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/pipeline"
)

// DefaultTable receives the processed dataset when no table is configured.
const DefaultTable = "processed"

// Config configures a Sink.
type Config struct {
	// Path is the database file.
	Path string
	// Table is replaced on every write with the processed dataset.
	Table string
	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// Sink writes each result into Table and appends its report to the runs
// table, in one transaction.
type Sink struct {
	db    *sql.DB
	path  string
	table string
}

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Sink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)

	s := &Sink{db: db, path: cfg.Path, table: cfg.Table}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Sink) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		dataset_table TEXT NOT NULL,
		total_records INTEGER NOT NULL,
		fingerprint TEXT NOT NULL,
		report TEXT NOT NULL
	);
	`)
	return err
}

// Close closes the database.
func (s *Sink) Close() error { return s.db.Close() }

// Write replaces the dataset table with res.Dataset and records res.Report.
func (s *Sink) Write(ctx context.Context, res *pipeline.Result) error {
	if err := s.write(ctx, res); err != nil {
		return &pipeline.PersistenceError{Target: s.path, Err: err}
	}
	return nil
}

func (s *Sink) write(ctx context.Context, res *pipeline.Result) error {
	report, err := json.Marshal(res.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ds := res.Dataset
	names := ds.Columns()
	table := quote(s.table)

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("drop %s: %w", s.table, err)
	}
	if len(names) > 0 {
		defs := make([]string, len(names))
		for i, n := range names {
			defs[i] = quote(n) + " " + affinity(ds, n)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))); err != nil {
			return fmt.Errorf("create %s: %w", s.table, err)
		}

		quoted := make([]string, len(names))
		marks := make([]string, len(names))
		for i, n := range names {
			quoted[i] = quote(n)
			marks[i] = "?"
		}
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(quoted, ", "), strings.Join(marks, ", ")))
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		cols := make([][]dataset.Value, len(names))
		for i, n := range names {
			cols[i], _ = ds.Column(n)
		}
		args := make([]any, len(names))
		for row := 0; row < ds.Len(); row++ {
			for i := range cols {
				args[i] = sqlValue(cols[i][row])
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert row %d: %w", row, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at, dataset_table, total_records, fingerprint, report)
		VALUES (?, ?, ?, ?, ?, ?)
	`, res.Report.RunID, res.Report.Timestamp.Format(time.RFC3339Nano), s.table,
		res.Report.TotalRecords, res.Report.DatasetFingerprint, string(report)); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	return tx.Commit()
}

// Report returns the stored report JSON of a run.
func (s *Sink) Report(ctx context.Context, runID string) ([]byte, error) {
	var report string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE run_id = ?`, runID).Scan(&report)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return []byte(report), nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func affinity(ds *dataset.Dataset, name string) string {
	if ds.IsNumeric(name) {
		return "REAL"
	}
	col, _ := ds.Column(name)
	for _, v := range col {
		if k := v.Kind(); k != dataset.KindBool && k != dataset.KindNull {
			return "TEXT"
		}
	}
	return "INTEGER"
}

func sqlValue(v dataset.Value) any {
	switch v.Kind() {
	case dataset.KindNumber:
		f, _ := v.Float()
		if math.IsNaN(f) {
			return nil
		}
		return f
	case dataset.KindString:
		s, _ := v.Str()
		return s
	case dataset.KindBool:
		b, _ := v.Truth()
		return b
	}
	return nil
}
