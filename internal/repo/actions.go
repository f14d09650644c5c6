package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/store"
)

const actionColumns = `id, remote_id, note_id, type, status, priority, title, description,
	scheduled_date, scheduled_end_date, location, attendees, email_to, email_subject,
	email_body, due_date, external_id, external_service, external_url, is_deleted,
	created_at, updated_at, executed_at, sync_status`

// ActionFilter narrows List and Count.
type ActionFilter struct {
	NoteID         string
	Type           models.ActionType
	Status         models.ActionStatus
	SyncStatus     models.SyncStatus
	IncludeDeleted bool
	Limit          int
	Offset         int
}

func (f ActionFilter) where() *where {
	w := &where{}
	if f.NoteID != "" {
		w.add("note_id = ?", f.NoteID)
	}
	if f.Type != "" {
		w.add("type = ?", string(f.Type))
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.SyncStatus != "" {
		w.add("sync_status = ?", string(f.SyncStatus))
	}
	if !f.IncludeDeleted {
		w.add("is_deleted = 0")
	}
	return w
}

// Actions is the action repository.
type Actions struct {
	db *store.DB
}

// NewActions creates an Actions repository.
func NewActions(db *store.DB) *Actions {
	return &Actions{db: db}
}

func scanAction(s store.Scanner) (models.Action, error) {
	var (
		a                                   models.Action
		remoteID, desc, location            sql.NullString
		emailTo, emailSubject, emailBody    sql.NullString
		extID, extService, extURL           sql.NullString
		typ, status, priority, attendees    string
		syncStatus                          string
		scheduled, scheduledEnd, due, execd sql.NullInt64
		created, updated                    int64
	)
	err := s.Scan(&a.ID, &remoteID, &a.NoteID, &typ, &status, &priority, &a.Title, &desc,
		&scheduled, &scheduledEnd, &location, &attendees, &emailTo, &emailSubject,
		&emailBody, &due, &extID, &extService, &extURL, &a.Deleted,
		&created, &updated, &execd, &syncStatus)
	if err != nil {
		return models.Action{}, err
	}
	a.RemoteID = remoteID.String
	a.Type = models.ActionType(typ)
	a.Status = models.ActionStatus(status)
	a.Priority = models.Priority(priority)
	a.Description = desc.String
	a.ScheduledDate = store.FromNullUnix(scheduled)
	a.ScheduledEndDate = store.FromNullUnix(scheduledEnd)
	a.Location = location.String
	a.Attendees = store.DecodeList(attendees)
	a.EmailTo, a.EmailSubject, a.EmailBody = emailTo.String, emailSubject.String, emailBody.String
	a.DueDate = store.FromNullUnix(due)
	a.ExternalID, a.ExternalService, a.ExternalURL = extID.String, extService.String, extURL.String
	a.CreatedAt = store.FromUnix(created)
	a.UpdatedAt = store.FromUnix(updated)
	a.ExecutedAt = store.FromNullUnix(execd)
	a.SyncStatus = models.SyncStatus(syncStatus)
	return a, nil
}

func actionArgs(a models.Action) []any {
	if a.Status == "" {
		a.Status = models.ActionPending
	}
	if a.Priority == "" {
		a.Priority = models.PriorityMedium
	}
	return []any{
		a.ID, store.NullString(a.RemoteID), a.NoteID, string(a.Type), string(a.Status),
		string(a.Priority), a.Title, store.NullString(a.Description),
		store.NullUnix(a.ScheduledDate), store.NullUnix(a.ScheduledEndDate),
		store.NullString(a.Location), store.EncodeList(a.Attendees),
		store.NullString(a.EmailTo), store.NullString(a.EmailSubject), store.NullString(a.EmailBody),
		store.NullUnix(a.DueDate), store.NullString(a.ExternalID),
		store.NullString(a.ExternalService), store.NullString(a.ExternalURL), boolInt(a.Deleted),
		store.Unix(a.CreatedAt), store.Unix(a.UpdatedAt), store.NullUnix(a.ExecutedAt),
		string(a.SyncStatus),
	}
}

// List returns actions matching f, soonest due first.
func (r *Actions) List(ctx context.Context, f ActionFilter) ([]models.Action, error) {
	w := f.where()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions`+w.String()+
			` ORDER BY COALESCE(scheduled_date, due_date, created_at), id`+page(f.Limit, f.Offset),
		w.args...)
	if err != nil {
		return nil, apperr.Storage("repo: list actions", err)
	}
	return scanAll("actions", scanAction, rows)
}

// ListByNote returns the live actions owned by noteID.
func (r *Actions) ListByNote(ctx context.Context, noteID string) ([]models.Action, error) {
	return r.List(ctx, ActionFilter{NoteID: noteID, Limit: -1})
}

// ListByNoteTx returns every action of noteID inside tx, deleted ones
// included.
func (r *Actions) ListByNoteTx(ctx context.Context, tx *sql.Tx, noteID string) ([]models.Action, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE note_id = ? ORDER BY created_at, id`, noteID)
	if err != nil {
		return nil, apperr.Storage("repo: list note actions", err)
	}
	return scanAll("actions", scanAction, rows)
}

// Count returns the number of actions matching f.
func (r *Actions) Count(ctx context.Context, f ActionFilter) (int, error) {
	w := f.where()
	return count(ctx, r.db, "actions", `SELECT count(*) FROM actions`+w.String(), w.args...)
}

// Get returns the action with the given local id.
func (r *Actions) Get(ctx context.Context, id string) (models.Action, error) {
	return getAction(ctx, r.db, id)
}

// GetTx reads an action inside tx.
func (r *Actions) GetTx(ctx context.Context, tx *sql.Tx, id string) (models.Action, error) {
	return getAction(ctx, tx, id)
}

func getAction(ctx context.Context, q queryer, id string) (models.Action, error) {
	row := q.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	return scanOne("action", id, scanAction, row)
}

// GetByRemoteID returns the action the server knows as remoteID.
func (r *Actions) GetByRemoteID(ctx context.Context, remoteID string) (models.Action, error) {
	return r.GetByRemoteIDTx(ctx, nil, remoteID)
}

// GetByRemoteIDTx is GetByRemoteID inside tx. A nil tx reads from the pool.
func (r *Actions) GetByRemoteIDTx(ctx context.Context, tx *sql.Tx, remoteID string) (models.Action, error) {
	var q queryer = r.db
	if tx != nil {
		q = tx
	}
	row := q.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE remote_id = ?`, remoteID)
	return scanOne("action", remoteID, scanAction, row)
}

// FindUnlinkedTx returns a live action of note with the given type and
// title that the server has not acknowledged yet. Actions extracted from a
// voice result are stored this way until the pull links them.
func (r *Actions) FindUnlinkedTx(ctx context.Context, tx *sql.Tx, noteID string, typ models.ActionType, title string) (models.Action, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+actionColumns+` FROM actions
		WHERE note_id = ? AND type = ? AND title = ?
		  AND remote_id IS NULL AND is_deleted = 0
		ORDER BY created_at, id
		LIMIT 1
	`, noteID, string(typ), title)
	return scanOne("action", noteID+"/"+title, scanAction, row)
}

// Search matches query against action titles and descriptions.
func (r *Actions) Search(ctx context.Context, query string, limit int) ([]models.Action, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	like := likePattern(query)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+actionColumns+` FROM actions
		WHERE is_deleted = 0
		  AND (title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')
		ORDER BY updated_at DESC
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, apperr.Storage("repo: search actions", err)
	}
	return scanAll("actions", scanAction, rows)
}

// Upsert inserts a or replaces every field of the existing row. The owning
// note must exist.
func (r *Actions) Upsert(ctx context.Context, a models.Action) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.UpsertTx(tx, a)
	})
}

// UpsertTx is Upsert inside tx.
func (r *Actions) UpsertTx(tx *sql.Tx, a models.Action) error {
	_, err := tx.Exec(`
		INSERT INTO actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_id          = excluded.remote_id,
			note_id            = excluded.note_id,
			type               = excluded.type,
			status             = excluded.status,
			priority           = excluded.priority,
			title              = excluded.title,
			description        = excluded.description,
			scheduled_date     = excluded.scheduled_date,
			scheduled_end_date = excluded.scheduled_end_date,
			location           = excluded.location,
			attendees          = excluded.attendees,
			email_to           = excluded.email_to,
			email_subject      = excluded.email_subject,
			email_body         = excluded.email_body,
			due_date           = excluded.due_date,
			external_id        = excluded.external_id,
			external_service   = excluded.external_service,
			external_url       = excluded.external_url,
			is_deleted         = excluded.is_deleted,
			created_at         = excluded.created_at,
			updated_at         = excluded.updated_at,
			executed_at        = excluded.executed_at,
			sync_status        = excluded.sync_status
	`, actionArgs(a)...)
	return apperr.Storage("repo: upsert action", err)
}

// Complete marks an action completed at now and pending sync.
func (r *Actions) Complete(ctx context.Context, id string, now time.Time) (models.Action, error) {
	var out models.Action
	err := r.db.Write(ctx, func(tx *sql.Tx) error {
		a, err := r.CompleteTx(ctx, tx, id, now)
		out = a
		return err
	})
	return out, err
}

// CompleteTx is Complete inside tx.
func (r *Actions) CompleteTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) (models.Action, error) {
	a, err := getAction(ctx, tx, id)
	if err != nil {
		return models.Action{}, err
	}
	a.Status = models.ActionCompleted
	a.ExecutedAt = &now
	a.UpdatedAt = now
	a.SyncStatus = models.SyncStatusPending
	if err := r.UpsertTx(tx, a); err != nil {
		return models.Action{}, err
	}
	return a, nil
}

// SoftDelete hides an action and marks it pending.
func (r *Actions) SoftDelete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.SoftDeleteTx(tx, id, utcNow())
	})
}

// SoftDeleteTx is SoftDelete inside tx.
func (r *Actions) SoftDeleteTx(tx *sql.Tx, id string, now time.Time) error {
	return execOne(tx, "action", "soft delete", id,
		`UPDATE actions SET is_deleted = 1, updated_at = ?, sync_status = 'pending' WHERE id = ?`,
		store.Unix(now), id)
}

// Delete permanently removes an action.
func (r *Actions) Delete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.DeleteTx(tx, id)
	})
}

// DeleteTx is Delete inside tx.
func (r *Actions) DeleteTx(tx *sql.Tx, id string) error {
	return execOne(tx, "action", "delete", id, `DELETE FROM actions WHERE id = ?`, id)
}

// SetSyncStatus updates only the sync status of an action.
func (r *Actions) SetSyncStatus(ctx context.Context, id string, status models.SyncStatus) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return setSyncStatusTx(tx, "actions", "action", id, status)
	})
}

// SetSyncStatusTx is SetSyncStatus inside tx.
func (r *Actions) SetSyncStatusTx(tx *sql.Tx, id string, status models.SyncStatus) error {
	return setSyncStatusTx(tx, "actions", "action", id, status)
}

// MarkSynced records a successful push of action id.
func (r *Actions) MarkSynced(ctx context.Context, id, remoteID string, _ time.Time) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.MarkSyncedTx(tx, id, remoteID)
	})
}

// MarkSyncedTx is MarkSynced inside tx.
func (r *Actions) MarkSyncedTx(tx *sql.Tx, id, remoteID string) error {
	return markSyncedTx(tx, "actions", "action", id, remoteID)
}
