// Package testutil provides shared test helpers for setting up stores and databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/robotdb/internal/index"
	"github.com/starford/robotdb/internal/models"
	"github.com/starford/robotdb/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "robotdb-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary store directory with a storage.FS.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir, 16)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Seed writes records to store and indexes them into db.
func Seed(t *testing.T, store *storage.FS, db *index.DB, recs ...*models.Record) {
	t.Helper()
	for _, rec := range recs {
		if _, err := store.Put(rec); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := index.Sync(db, store, nil); err != nil {
		t.Fatal(err)
	}
}
