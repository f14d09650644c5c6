// Package repo provides the note, folder, action, and audio upload
// repositories over the local store. Writes are synchronous and never touch
// the network; callers that need a queue entry committed alongside an entity
// write use the *Tx variants inside store.DB.Write.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/store"
)

// DefaultLimit caps list and search queries that do not set a limit.
const DefaultLimit = 50

// queryer is satisfied by *store.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ queryer = (*store.DB)(nil)
	_ queryer = (*sql.Tx)(nil)
)

// where accumulates AND-ed conditions for a filtered query.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page renders LIMIT/OFFSET. A zero limit falls back to DefaultLimit and a
// negative one means no limit.
func page(limit, offset int) string {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// notFound builds the error returned for a missing id.
func notFound(kind, id string) error {
	return fmt.Errorf("repo: %s %s: %w", kind, id, apperr.ErrNotFound)
}

// scanOne maps sql.ErrNoRows to ErrNotFound.
func scanOne[T any](kind, id string, scan func(store.Scanner) (T, error), row *sql.Row) (T, error) {
	v, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, notFound(kind, id)
	}
	if err != nil {
		var zero T
		return zero, apperr.Storage("repo: get "+kind, err)
	}
	return v, nil
}

func scanAll[T any](kind string, scan func(store.Scanner) (T, error), rows *sql.Rows) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, apperr.Storage("repo: scan "+kind, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("repo: list "+kind, err)
	}
	return out, nil
}

func count(ctx context.Context, q queryer, kind, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperr.Storage("repo: count "+kind, err)
	}
	return n, nil
}

// execOne runs a single-row mutation and reports ErrNotFound when nothing
// matched.
func execOne(tx *sql.Tx, kind, op, id, query string, args ...any) error {
	res, err := tx.Exec(query, args...)
	if err != nil {
		return apperr.Storage("repo: "+op+" "+kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage("repo: "+op+" "+kind, err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

// setSyncStatusTx updates the sync_status column of table. table is always
// one of the package's own constants.
func setSyncStatusTx(tx *sql.Tx, table, kind, id string, status models.SyncStatus) error {
	return execOne(tx, kind, "set sync status", id,
		`UPDATE `+table+` SET sync_status = ? WHERE id = ?`, string(status), id)
}

// markSyncedTx stamps remoteID (when non-empty) and sets status synced.
func markSyncedTx(tx *sql.Tx, table, kind, id, remoteID string) error {
	return execOne(tx, kind, "mark synced", id, `
		UPDATE `+table+`
		SET sync_status = 'synced',
		    remote_id = COALESCE(NULLIF(?, ''), remote_id)
		WHERE id = ?
	`, remoteID, id)
}

// qualify prefixes every column in a column list with alias.
func qualify(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

func utcNow() time.Time {
	return time.Now().UTC()
}
