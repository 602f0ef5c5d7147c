package postgres

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/jdm7dv/zentity-security/internal/infrastructure/config"
	"github.com/jdm7dv/zentity-security/internal/infrastructure/database"
	_ "github.com/lib/pq"
)

// SetupTestDB creates a test database connection and runs migrations.
// Integration tests are gated on POSTGRES_INTEGRATION so the suite passes
// without a running database.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("POSTGRES_INTEGRATION") == "" {
		t.Skip("Integration test - set POSTGRES_INTEGRATION and DB_* to run")
	}

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := pg.RunMigrations("../../../internal/infrastructure/database/migrations/postgres"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return pg.DB
}

// CleanupTestDB closes the database connection and cleans up test data
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	tables := []string{"relations", "resources", "identities", "groups"}
	for _, table := range tables {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}

	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}

// InsertTestIdentity inserts an identity row for test fixtures.
func InsertTestIdentity(t *testing.T, db *sql.DB, name string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO identities (name) VALUES ($1)`, name)
	if err != nil {
		t.Fatalf("Failed to insert identity %s: %v", name, err)
	}
}

// InsertTestGroup inserts a group row for test fixtures.
func InsertTestGroup(t *testing.T, db *sql.DB, name string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO groups (name) VALUES ($1)`, name)
	if err != nil {
		t.Fatalf("Failed to insert group %s: %v", name, err)
	}
}

// InsertTestResource inserts a resource row for test fixtures.
func InsertTestResource(t *testing.T, db *sql.DB, id, resourceType string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO resources (id, resource_type) VALUES ($1, $2)`, id, resourceType)
	if err != nil {
		t.Fatalf("Failed to insert resource %s: %v", id, err)
	}
}
