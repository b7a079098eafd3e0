package testutil

import (
	"testing"

	"obs-go/internal/database"
)

// NewTestDatabase creates a migrated in-memory database and registers
// cleanup on the test.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("creating test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}
