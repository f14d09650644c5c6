// Package testutil provides shared test helpers for setting up stores and
// audio storage.
package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/starford/glide/internal/storage"
	"github.com/starford/glide/internal/store"
)

// TestDB opens a store in a temporary directory that is cleaned up with t.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestAudio creates a temporary audio directory with a storage.Provider.
func TestAudio(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
