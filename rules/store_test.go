package rules

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testRecord(name string, active bool) *SpecRecord {
	return &SpecRecord{
		Name:   name,
		Active: active,
		Document: Document{
			BusinessRules: []BusinessRuleDoc{{Name: "bonus", Formula: "df['sales'] * 0.1", OutputColumn: "bonus"}},
		},
	}
}

// TestSpecStoreInterfaceExists verifies InMemorySpecStore implements SpecStore
func TestSpecStoreInterfaceExists(t *testing.T) {
	var _ SpecStore = (*InMemorySpecStore)(nil)
	var _ SpecStore = (*PostgresSpecStore)(nil)
	var _ SpecCache = (*InMemorySpecCache)(nil)
}

// TestInMemorySpecStoreAdd verifies Add assigns IDs and timestamps
func TestInMemorySpecStoreAdd(t *testing.T) {
	store := NewInMemorySpecStore()
	rec := testRecord("bonus", true)

	if err := store.Add(rec); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() || !rec.CreatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("Add() did not stamp the record: %+v", rec)
	}

	got, err := store.Get("bonus")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.ID != rec.ID || len(got.Document.BusinessRules) != 1 {
		t.Errorf("Get() = %+v", got)
	}

	spec, err := got.Specification()
	if err != nil {
		t.Fatalf("Specification() failed: %v", err)
	}
	if spec.BusinessRules()[0].OutputColumn != "bonus" {
		t.Errorf("parsed rules = %+v", spec.BusinessRules())
	}
}

// TestInMemorySpecStoreErrors verifies sentinel errors for duplicates and unknown names
func TestInMemorySpecStoreErrors(t *testing.T) {
	store := NewInMemorySpecStore()
	if err := store.Add(testRecord("a", true)); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"Duplicate add", store.Add(testRecord("a", true)), ErrSpecExists},
		{"Get missing", func() error { _, err := store.Get("zzz"); return err }(), ErrSpecNotFound},
		{"Update missing", store.Update(testRecord("zzz", true)), ErrSpecNotFound},
		{"Delete missing", store.Delete("zzz"), ErrSpecNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}
}

// TestInMemorySpecStoreUpdate verifies Update preserves ID and CreatedAt
func TestInMemorySpecStoreUpdate(t *testing.T) {
	store := NewInMemorySpecStore()
	rec := testRecord("bonus", true)
	if err := store.Add(rec); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	created := rec.CreatedAt
	time.Sleep(5 * time.Millisecond)

	upd := testRecord("bonus", false)
	upd.Description = "v2"
	if err := store.Update(upd); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if upd.ID != rec.ID || !upd.CreatedAt.Equal(created) || !upd.UpdatedAt.After(created) {
		t.Errorf("Update() stamps = %+v", upd)
	}
	got, _ := store.Get("bonus")
	if got.Description != "v2" || got.Active {
		t.Errorf("Get() after Update() = %+v", got)
	}
}

// TestInMemorySpecStoreList verifies ordering and active filtering
func TestInMemorySpecStoreList(t *testing.T) {
	store := NewInMemorySpecStore()
	for _, rec := range []*SpecRecord{testRecord("c", true), testRecord("a", false), testRecord("b", true)} {
		if err := store.Add(rec); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	all, _ := store.List()
	if len(all) != 3 || all[0].Name != "a" || all[2].Name != "c" {
		t.Errorf("List() order = %v", names(all))
	}
	active, _ := store.ListActive()
	if len(active) != 2 || active[0].Name != "b" || active[1].Name != "c" {
		t.Errorf("ListActive() = %v", names(active))
	}

	if err := store.Delete("b"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	active, _ = store.ListActive()
	if len(active) != 1 {
		t.Errorf("ListActive() after delete = %v", names(active))
	}
}

// TestInMemorySpecStoreReturnsCopies verifies callers cannot mutate stored records
func TestInMemorySpecStoreReturnsCopies(t *testing.T) {
	store := NewInMemorySpecStore()
	rec := testRecord("bonus", true)
	if err := store.Add(rec); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	rec.Description = "changed after add"

	got, _ := store.Get("bonus")
	got.Active = false

	again, _ := store.Get("bonus")
	if again.Description != "" || !again.Active {
		t.Errorf("stored record was mutated: %+v", again)
	}
}

// TestInMemorySpecStoreConcurrency verifies concurrent writers and readers
func TestInMemorySpecStoreConcurrency(t *testing.T) {
	store := NewInMemorySpecStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Add(testRecord(fmt.Sprintf("spec-%d", i), i%2 == 0))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.ListActive()
		}()
	}
	wg.Wait()

	all, _ := store.List()
	if len(all) != 50 {
		t.Errorf("List() = %d records, want 50", len(all))
	}
}

func names(recs []*SpecRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}

// TestInMemorySpecCache verifies Set, Get, Invalidate and TTL expiry
func TestInMemorySpecCache(t *testing.T) {
	t.Run("No TTL", func(t *testing.T) {
		c := NewInMemorySpecCache(DefaultCacheConfig())
		if c.Get() != nil || c.IsValid() {
			t.Fatal("new cache should be empty")
		}
		c.Set([]*SpecRecord{testRecord("a", true)})
		if got := c.Get(); len(got) != 1 || !c.IsValid() {
			t.Errorf("Get() = %v", got)
		}
		c.Invalidate()
		if c.Get() != nil || c.IsValid() {
			t.Error("Invalidate() should clear the cache")
		}
	})

	t.Run("TTL", func(t *testing.T) {
		c := NewInMemorySpecCache(CacheConfig{TTL: 10 * time.Millisecond})
		c.Set([]*SpecRecord{testRecord("a", true)})
		if c.Get() == nil {
			t.Fatal("fresh entry should be returned")
		}
		time.Sleep(20 * time.Millisecond)
		if c.Get() != nil || c.IsValid() {
			t.Error("expired entry should not be returned")
		}
	})

	t.Run("Empty list is a hit", func(t *testing.T) {
		c := NewInMemorySpecCache(DefaultCacheConfig())
		c.Set(nil)
		if got := c.Get(); got == nil || len(got) != 0 {
			t.Errorf("Get() = %v, want empty non-nil slice", got)
		}
	})
}
