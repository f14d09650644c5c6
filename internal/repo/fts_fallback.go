//go:build !sqlite_fts5

package repo

import (
	"context"
	"database/sql"
)

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error {
	// Title, content, and tags already live in the notes table.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) error { return nil }

// searchNotes performs a LIKE-based substring search.
func searchNotes(ctx context.Context, q queryer, query string, limit int) (*sql.Rows, error) {
	like := likePattern(query)
	return q.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE is_deleted = 0
		  AND (title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')
		ORDER BY is_pinned DESC, updated_at DESC
		LIMIT ?
	`, like, like, like, limit)
}
