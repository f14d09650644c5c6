//go:build sqlite_fts5

package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/starford/glide/internal/apperr"
)

func ftsUpsert(tx *sql.Tx, id, title, content string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO notes_fts (id, title, content, tags) VALUES (?, ?, ?, ?)`,
		id, title, content, strings.Join(tags, " "))
	return apperr.Storage("repo: upsert fts", err)
}

func ftsDelete(tx *sql.Tx, id string) error {
	_, err := tx.Exec(`DELETE FROM notes_fts WHERE id = ?`, id)
	return apperr.Storage("repo: delete fts", err)
}

// ftsQuery turns free text into a prefix match on every term, quoting each
// term so user input cannot inject FTS5 syntax.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"*`)
	}
	return strings.Join(terms, " ")
}

// searchNotes performs an FTS5 full-text search ordered by rank.
func searchNotes(ctx context.Context, q queryer, query string, limit int) (*sql.Rows, error) {
	return q.QueryContext(ctx, `
		SELECT `+qualify("n", noteColumns)+`
		FROM notes_fts
		JOIN notes n ON n.id = notes_fts.id
		WHERE notes_fts MATCH ? AND n.is_deleted = 0
		ORDER BY bm25(notes_fts)
		LIMIT ?
	`, ftsQuery(query), limit)
}
