// Package syncqueue is the durable, ordered log of local mutations awaiting
// transmission to the server. Entries are processed FIFO by (created_at, id);
// an entry whose attempts reach the cap stays in the table, queryable with
// its last error, but is skipped by Pending.
package syncqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/store"
)

// DefaultMaxAttempts is the retry cap used when none is configured.
const DefaultMaxAttempts = 3

const entryColumns = `id, operation, entity_type, entity_id, payload, created_at, attempts, last_error`

// Stats summarizes the queue for the status indicator.
type Stats struct {
	Pending   int    `json:"pending"`
	Exhausted int    `json:"exhausted"`
	LastError string `json:"last_error,omitempty"`
}

// Queue is the sync queue over the local store.
type Queue struct {
	db          *store.DB
	maxAttempts int
	now         func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAttempts sets the retry cap.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a Queue.
func New(db *store.DB, opts ...Option) *Queue {
	q := &Queue{db: db, maxAttempts: DefaultMaxAttempts, now: time.Now}
	for _, o := range opts {
		o(q)
	}
	return q
}

// MaxAttempts returns the retry cap.
func (q *Queue) MaxAttempts() int { return q.maxAttempts }

func scanEntry(s store.Scanner) (models.SyncQueueEntry, error) {
	var (
		e         models.SyncQueueEntry
		op, typ   string
		payload   string
		created   int64
		lastError sql.NullString
	)
	if err := s.Scan(&e.ID, &op, &typ, &e.EntityID, &payload, &created, &e.Attempts, &lastError); err != nil {
		return models.SyncQueueEntry{}, err
	}
	e.Operation = models.Operation(op)
	e.EntityType = models.EntityType(typ)
	e.Payload = json.RawMessage(payload)
	e.CreatedAt = store.FromUnix(created)
	e.LastError = lastError.String
	return e, nil
}

func (q *Queue) list(ctx context.Context, op, query string, args ...any) ([]models.SyncQueueEntry, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage("syncqueue: "+op, err)
	}
	defer rows.Close()
	out := []models.SyncQueueEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperr.Storage("syncqueue: "+op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("syncqueue: "+op, err)
	}
	return out, nil
}

// Enqueue appends one entry holding a JSON snapshot of payload.
func (q *Queue) Enqueue(ctx context.Context, op models.Operation, typ models.EntityType, entityID string, payload any) (int64, error) {
	var id int64
	err := q.db.Write(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = q.EnqueueTx(tx, op, typ, entityID, payload)
		return err
	})
	return id, err
}

// EnqueueTx is Enqueue inside the caller's transaction, so an entity write
// and its queue entry commit together.
func (q *Queue) EnqueueTx(tx *sql.Tx, op models.Operation, typ models.EntityType, entityID string, payload any) (int64, error) {
	if entityID == "" {
		return 0, fmt.Errorf("syncqueue: enqueue %s %s: empty entity id: %w", op, typ, apperr.ErrValidation)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("syncqueue: encode payload: %w", err)
	}
	res, err := tx.Exec(`
		INSERT INTO sync_queue (operation, entity_type, entity_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(op), string(typ), entityID, string(raw), store.Unix(q.now()))
	if err != nil {
		return 0, apperr.Storage("syncqueue: enqueue", err)
	}
	id, err := res.LastInsertId()
	return id, apperr.Storage("syncqueue: enqueue", err)
}

// Pending returns up to limit retry-eligible entries in FIFO order. A
// non-positive limit returns all of them.
func (q *Queue) Pending(ctx context.Context, limit int) ([]models.SyncQueueEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	return q.list(ctx, "pending", `
		SELECT `+entryColumns+` FROM sync_queue
		WHERE attempts < ?
		ORDER BY created_at, id
		LIMIT ?
	`, q.maxAttempts, limit)
}

// Exhausted returns entries that reached the retry cap.
func (q *Queue) Exhausted(ctx context.Context) ([]models.SyncQueueEntry, error) {
	return q.list(ctx, "exhausted", `
		SELECT `+entryColumns+` FROM sync_queue
		WHERE attempts >= ?
		ORDER BY created_at, id
	`, q.maxAttempts)
}

// All returns every entry in FIFO order.
func (q *Queue) All(ctx context.Context) ([]models.SyncQueueEntry, error) {
	return q.list(ctx, "all", `SELECT `+entryColumns+` FROM sync_queue ORDER BY created_at, id`)
}

// Get returns one entry.
func (q *Queue) Get(ctx context.Context, id int64) (models.SyncQueueEntry, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM sync_queue WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SyncQueueEntry{}, fmt.Errorf("syncqueue: entry %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.SyncQueueEntry{}, apperr.Storage("syncqueue: get", err)
	}
	return e, nil
}

// PendingFor returns the retry-eligible entries for one entity.
func (q *Queue) PendingFor(ctx context.Context, typ models.EntityType, entityID string) ([]models.SyncQueueEntry, error) {
	return q.list(ctx, "pending for", `
		SELECT `+entryColumns+` FROM sync_queue
		WHERE entity_type = ? AND entity_id = ? AND attempts < ?
		ORDER BY created_at, id
	`, string(typ), entityID, q.maxAttempts)
}

// HasPending reports whether the entity has a retry-eligible entry, that
// is, an unresolved local edit. Exhausted entries do not count: their
// outcome is settled.
func (q *Queue) HasPending(ctx context.Context, typ models.EntityType, entityID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT count(*) FROM sync_queue
		WHERE entity_type = ? AND entity_id = ? AND attempts < ?
	`, string(typ), entityID, q.maxAttempts).Scan(&n)
	if err != nil {
		return false, apperr.Storage("syncqueue: has pending", err)
	}
	return n > 0, nil
}

// Remove deletes an acknowledged entry.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	return q.db.Write(ctx, func(tx *sql.Tx) error {
		return RemoveTx(tx, id)
	})
}

// RemoveTx is Remove inside tx.
func RemoveTx(tx *sql.Tx, id int64) error {
	_, err := tx.Exec(`DELETE FROM sync_queue WHERE id = ?`, id)
	return apperr.Storage("syncqueue: remove", err)
}

// RemoveFor deletes every entry for one entity, exhausted ones included.
func (q *Queue) RemoveFor(ctx context.Context, typ models.EntityType, entityID string) error {
	return q.db.Write(ctx, func(tx *sql.Tx) error {
		return RemoveForTx(tx, typ, entityID)
	})
}

// RecordFailure increments the entry's attempts and stores cause. It
// returns the new attempt count.
func (q *Queue) RecordFailure(ctx context.Context, id int64, cause error) (int, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	var attempts int
	err := q.db.Write(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRow(`
			UPDATE sync_queue SET attempts = attempts + 1, last_error = ?
			WHERE id = ?
			RETURNING attempts
		`, msg, id).Scan(&attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("syncqueue: entry %d: %w", id, apperr.ErrNotFound)
		}
		return apperr.Storage("syncqueue: record failure", err)
	})
	return attempts, err
}

// ResetExhausted makes exhausted entries eligible again, returning how many
// were reset. This is the manual "tap to retry" path.
func (q *Queue) ResetExhausted(ctx context.Context) (int, error) {
	var n int64
	err := q.db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE sync_queue SET attempts = 0 WHERE attempts >= ?`, q.maxAttempts)
		if err != nil {
			return apperr.Storage("syncqueue: reset exhausted", err)
		}
		n, err = res.RowsAffected()
		return apperr.Storage("syncqueue: reset exhausted", err)
	})
	return int(n), err
}

// Depth returns queue statistics. LastError comes from the newest entry
// that has failed at least once.
func (q *Queue) Depth(ctx context.Context) (Stats, error) {
	var (
		s       Stats
		lastErr sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN attempts < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN attempts >= ? THEN 1 ELSE 0 END), 0),
			(SELECT last_error FROM sync_queue
			 WHERE last_error IS NOT NULL AND last_error != ''
			 ORDER BY created_at DESC, id DESC LIMIT 1)
		FROM sync_queue
	`, q.maxAttempts, q.maxAttempts).Scan(&s.Pending, &s.Exhausted, &lastErr)
	if err != nil {
		return Stats{}, apperr.Storage("syncqueue: depth", err)
	}
	s.LastError = lastErr.String
	return s, nil
}

// Clear deletes every entry.
func (q *Queue) Clear(ctx context.Context) error {
	return q.db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM sync_queue`)
		return apperr.Storage("syncqueue: clear", err)
	})
}

// RemainingTx counts the entries left for one entity inside tx, exhausted
// ones included.
func RemainingTx(tx *sql.Tx, typ models.EntityType, entityID string) (int, error) {
	var n int
	err := tx.QueryRow(`SELECT count(*) FROM sync_queue WHERE entity_type = ? AND entity_id = ?`,
		string(typ), entityID).Scan(&n)
	return n, apperr.Storage("syncqueue: remaining", err)
}

// RemoveForTx deletes every entry for one entity inside tx.
func RemoveForTx(tx *sql.Tx, typ models.EntityType, entityID string) error {
	_, err := tx.Exec(`DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?`,
		string(typ), entityID)
	return apperr.Storage("syncqueue: remove for", err)
}

// HasPendingTx is HasPending inside tx.
func (q *Queue) HasPendingTx(tx *sql.Tx, typ models.EntityType, entityID string) (bool, error) {
	var n int
	err := tx.QueryRow(`
		SELECT count(*) FROM sync_queue
		WHERE entity_type = ? AND entity_id = ? AND attempts < ?
	`, string(typ), entityID, q.maxAttempts).Scan(&n)
	if err != nil {
		return false, apperr.Storage("syncqueue: has pending", err)
	}
	return n > 0, nil
}

// RemoveOpTx deletes the entries of one entity with operation op inside tx
// and returns how many were removed.
func RemoveOpTx(tx *sql.Tx, typ models.EntityType, entityID string, op models.Operation) (int, error) {
	res, err := tx.Exec(`DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ? AND operation = ?`,
		string(typ), entityID, string(op))
	if err != nil {
		return 0, apperr.Storage("syncqueue: remove op", err)
	}
	n, err := res.RowsAffected()
	return int(n), apperr.Storage("syncqueue: remove op", err)
}
