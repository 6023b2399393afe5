package rules

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSpecNotFound is wrapped by store errors for unknown names.
	ErrSpecNotFound = errors.New("specification not found")
	// ErrSpecExists is wrapped by Add when the name is taken.
	ErrSpecExists = errors.New("specification already exists")
)

// SpecRecord is a stored specification document.
type SpecRecord struct {
	ID          string
	Name        string
	Description string
	Document    Document
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Specification parses the stored document.
func (r *SpecRecord) Specification() (*Specification, error) {
	return FromDocument(r.Document)
}

// SpecStore persists specification documents by name.
type SpecStore interface {
	// Add stores a new record, assigning an ID when empty.
	Add(rec *SpecRecord) error

	// Get returns the record with the given name.
	Get(name string) (*SpecRecord, error)

	// List returns all records ordered by name.
	List() ([]*SpecRecord, error)

	// ListActive returns the active records ordered by name.
	ListActive() ([]*SpecRecord, error)

	// Update replaces an existing record, keeping its ID and CreatedAt.
	Update(rec *SpecRecord) error

	// Delete removes a record.
	Delete(name string) error
}

// InMemorySpecStore implements SpecStore with a map. It is safe for
// concurrent use.
type InMemorySpecStore struct {
	specs map[string]*SpecRecord
	mu    sync.RWMutex
}

// NewInMemorySpecStore creates an empty store.
func NewInMemorySpecStore() *InMemorySpecStore {
	return &InMemorySpecStore{specs: make(map[string]*SpecRecord)}
}

func (s *InMemorySpecStore) Add(rec *SpecRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.specs[rec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrSpecExists, rec.Name)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	stored := *rec
	s.specs[rec.Name] = &stored
	return nil
}

func (s *InMemorySpecStore) Get(name string) (*SpecRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.specs[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSpecNotFound, name)
	}
	out := *rec
	return &out, nil
}

func (s *InMemorySpecStore) List() ([]*SpecRecord, error) {
	return s.list(false), nil
}

func (s *InMemorySpecStore) ListActive() ([]*SpecRecord, error) {
	return s.list(true), nil
}

func (s *InMemorySpecStore) list(activeOnly bool) []*SpecRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*SpecRecord, 0, len(s.specs))
	for _, rec := range s.specs {
		if activeOnly && !rec.Active {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *InMemorySpecStore) Update(rec *SpecRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.specs[rec.Name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSpecNotFound, rec.Name)
	}
	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now()
	stored := *rec
	s.specs[rec.Name] = &stored
	return nil
}

func (s *InMemorySpecStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.specs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrSpecNotFound, name)
	}
	delete(s.specs, name)
	return nil
}
