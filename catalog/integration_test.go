//go:build integration

package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/specetl/rules"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	migrationSQL, err := os.ReadFile("../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}
	return db, cleanup
}

// TestManagerWithPostgres verifies the manager survives a restart against a shared database
func TestManagerWithPostgres(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresSpecStore(db)
	m := NewManager(store)
	if err := m.Create(record("bonus", true, 0.1)); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := m.Create(record("draft", false, 0.1)); err != nil {
		t.Fatalf("Create(draft) failed: %v", err)
	}
	if err := m.Update(record("bonus", true, 0.2)); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	restarted := NewManager(rules.NewPostgresSpecStore(db))
	if err := restarted.LoadAll(); err != nil {
		t.Fatalf("LoadAll() failed: %v", err)
	}
	if names := restarted.Names(); len(names) != 1 || names[0] != "bonus" {
		t.Errorf("Names() = %v, want [bonus]", names)
	}
	if got := totalBonus(t, restarted, "bonus"); got[0] != 200 || got[1] != 400 {
		t.Errorf("total_bonus = %v, want [200 400]", got)
	}
}
