//go:build !sqlite_fts5

package store

import "database/sql"

// FTSEnabled reports whether the notes_fts virtual table exists.
const FTSEnabled = false

func initFTS(_ *sql.DB) error {
	// Search falls back to LIKE over the notes table.
	return nil
}
