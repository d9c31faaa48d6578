// Package testutil provides shared test helpers for setting up databases and blob stores.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/starford/nocel/internal/storage"
	"github.com/starford/nocel/internal/store"
)

// TestDB creates a migrated SQLite database in a temp dir that is cleaned up with the test.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "nocel-test.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestBlobs creates a temporary storage directory with an FS provider.
func TestBlobs(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	blobs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return blobs.Root(), blobs
}
