package testutil

import (
	"testing"

	"guardian-go/internal/database"
)

// NewTestRepository creates an in-memory SQLite backup repository with the
// schema applied. It is closed when the test completes.
func NewTestRepository(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
