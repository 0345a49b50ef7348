package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/csb6/purple-youtube/db"
)

// SetupTestArchive opens a Postgres-backed archive and runs migrations.
// It skips the test if TEST_PG_DSN environment variable is not set.
func SetupTestArchive(t *testing.T) *db.Archive {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	archive, err := db.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	t.Cleanup(func() {
		archive.Close()
	})
	return archive
}

// SetupSQLiteArchive opens a SQLite archive in a per-test temp directory.
func SetupSQLiteArchive(t *testing.T) *db.Archive {
	t.Helper()
	archive, err := db.Open(context.Background(), "file:"+t.TempDir()+"/archive.db")
	if err != nil {
		t.Fatalf("failed to open sqlite archive: %v", err)
	}
	t.Cleanup(func() {
		archive.Close()
	})
	return archive
}
