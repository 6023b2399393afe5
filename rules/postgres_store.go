package rules

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresSpecStore implements SpecStore backed by the specifications table.
type PostgresSpecStore struct {
	db *sql.DB
}

// NewPostgresSpecStore creates a store on an open database handle.
func NewPostgresSpecStore(db *sql.DB) *PostgresSpecStore {
	return &PostgresSpecStore{db: db}
}

// Add inserts a new specification.
func (s *PostgresSpecStore) Add(rec *SpecRecord) error {
	doc, err := json.Marshal(rec.Document)
	if err != nil {
		return fmt.Errorf("failed to encode specification document: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO specifications (id, name, description, document, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.Name, rec.Description, doc, rec.Active, rec.CreatedAt, rec.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrSpecExists, rec.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to insert specification: %w", err)
	}
	return nil
}

const selectSpec = `SELECT id, name, description, document, active, created_at, updated_at FROM specifications`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpec(row rowScanner) (*SpecRecord, error) {
	var rec SpecRecord
	var doc []byte
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &doc, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(doc, &rec.Document); err != nil {
		return nil, fmt.Errorf("failed to decode document of %s: %w", rec.Name, err)
	}
	return &rec, nil
}

// Get retrieves a specification by name.
func (s *PostgresSpecStore) Get(name string) (*SpecRecord, error) {
	rec, err := scanSpec(s.db.QueryRow(selectSpec+` WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSpecNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get specification: %w", err)
	}
	return rec, nil
}

// List returns every specification ordered by name.
func (s *PostgresSpecStore) List() ([]*SpecRecord, error) {
	return s.query(selectSpec + ` ORDER BY name ASC`)
}

// ListActive returns the active specifications ordered by name.
func (s *PostgresSpecStore) ListActive() ([]*SpecRecord, error) {
	return s.query(selectSpec + ` WHERE active = true ORDER BY name ASC`)
}

func (s *PostgresSpecStore) query(q string) ([]*SpecRecord, error) {
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("failed to list specifications: %w", err)
	}
	defer rows.Close()

	var out []*SpecRecord
	for rows.Next() {
		rec, err := scanSpec(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan specification: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating specifications: %w", err)
	}
	return out, nil
}

// Update replaces the document, description and active flag of an existing
// specification.
func (s *PostgresSpecStore) Update(rec *SpecRecord) error {
	doc, err := json.Marshal(rec.Document)
	if err != nil {
		return fmt.Errorf("failed to encode specification document: %w", err)
	}
	rec.UpdatedAt = time.Now().UTC()

	err = s.db.QueryRow(`
		UPDATE specifications
		SET description = $1, document = $2, active = $3, updated_at = $4
		WHERE name = $5
		RETURNING id, created_at
	`, rec.Description, doc, rec.Active, rec.UpdatedAt, rec.Name).Scan(&rec.ID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSpecNotFound, rec.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update specification: %w", err)
	}
	return nil
}

// Delete removes a specification.
func (s *PostgresSpecStore) Delete(name string) error {
	result, err := s.db.Exec(`DELETE FROM specifications WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete specification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSpecNotFound, name)
	}
	return nil
}
