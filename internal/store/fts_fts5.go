//go:build sqlite_fts5

package store

import "database/sql"

// FTSEnabled reports whether the notes_fts virtual table exists.
const FTSEnabled = true

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			id UNINDEXED,
			title,
			content,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}
