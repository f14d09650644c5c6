package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/store"
)

const noteColumns = `id, remote_id, title, content, summary, duration, folder_id, tags,
	is_pinned, is_archived, is_deleted, audio_path, created_at, updated_at,
	last_synced_at, sync_status`

// NoteFilter narrows List and Count. Zero values match everything except
// soft-deleted notes.
type NoteFilter struct {
	FolderID       string
	Unfiled        bool // only notes without a folder
	Status         models.SyncStatus
	Pinned         *bool
	Archived       *bool
	IncludeDeleted bool
	Limit          int
	Offset         int
}

func (f NoteFilter) where() *where {
	w := &where{}
	switch {
	case f.Unfiled:
		w.add("folder_id IS NULL")
	case f.FolderID != "":
		w.add("folder_id = ?", f.FolderID)
	}
	if f.Status != "" {
		w.add("sync_status = ?", string(f.Status))
	}
	if f.Pinned != nil {
		w.add("is_pinned = ?", boolInt(*f.Pinned))
	}
	if f.Archived != nil {
		w.add("is_archived = ?", boolInt(*f.Archived))
	}
	if !f.IncludeDeleted {
		w.add("is_deleted = 0")
	}
	return w
}

// Notes is the note repository.
type Notes struct {
	db *store.DB
}

// NewNotes creates a Notes repository.
func NewNotes(db *store.DB) *Notes {
	return &Notes{db: db}
}

func scanNote(s store.Scanner) (models.Note, error) {
	var (
		n                         models.Note
		remoteID, folder, audio   sql.NullString
		tags, status              string
		pinned, archived, deleted bool
		created, updated          int64
		synced                    sql.NullInt64
	)
	err := s.Scan(&n.ID, &remoteID, &n.Title, &n.Content, &n.Summary, &n.Duration,
		&folder, &tags, &pinned, &archived, &deleted, &audio, &created, &updated,
		&synced, &status)
	if err != nil {
		return models.Note{}, err
	}
	n.RemoteID = remoteID.String
	n.FolderID = folder.String
	n.AudioPath = audio.String
	n.Tags = store.DecodeList(tags)
	n.Pinned, n.Archived, n.Deleted = pinned, archived, deleted
	n.CreatedAt = store.FromUnix(created)
	n.UpdatedAt = store.FromUnix(updated)
	n.LastSyncedAt = store.FromNullUnix(synced)
	n.SyncStatus = models.SyncStatus(status)
	return n, nil
}

func noteArgs(n models.Note) []any {
	return []any{
		n.ID, store.NullString(n.RemoteID), n.Title, n.Content, n.Summary, n.Duration,
		store.NullString(n.FolderID), store.EncodeList(n.Tags),
		boolInt(n.Pinned), boolInt(n.Archived), boolInt(n.Deleted),
		store.NullString(n.AudioPath), store.Unix(n.CreatedAt), store.Unix(n.UpdatedAt),
		store.NullUnix(n.LastSyncedAt), string(n.SyncStatus),
	}
}

// List returns notes matching f, pinned first then newest first.
func (r *Notes) List(ctx context.Context, f NoteFilter) ([]models.Note, error) {
	w := f.where()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes`+w.String()+
			` ORDER BY is_pinned DESC, created_at DESC, id`+page(f.Limit, f.Offset),
		w.args...)
	if err != nil {
		return nil, apperr.Storage("repo: list notes", err)
	}
	return scanAll("notes", scanNote, rows)
}

// Count returns the number of notes matching f, ignoring pagination.
func (r *Notes) Count(ctx context.Context, f NoteFilter) (int, error) {
	w := f.where()
	return count(ctx, r.db, "notes", `SELECT count(*) FROM notes`+w.String(), w.args...)
}

// Get returns the note with the given local id.
func (r *Notes) Get(ctx context.Context, id string) (models.Note, error) {
	return getNote(ctx, r.db, id)
}

// GetTx reads a note inside tx.
func (r *Notes) GetTx(ctx context.Context, tx *sql.Tx, id string) (models.Note, error) {
	return getNote(ctx, tx, id)
}

func getNote(ctx context.Context, q queryer, id string) (models.Note, error) {
	row := q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	return scanOne("note", id, scanNote, row)
}

// GetByRemoteID returns the note the server knows as remoteID.
func (r *Notes) GetByRemoteID(ctx context.Context, remoteID string) (models.Note, error) {
	return r.GetByRemoteIDTx(ctx, nil, remoteID)
}

// GetByRemoteIDTx is GetByRemoteID inside tx. A nil tx reads from the pool.
func (r *Notes) GetByRemoteIDTx(ctx context.Context, tx *sql.Tx, remoteID string) (models.Note, error) {
	var q queryer = r.db
	if tx != nil {
		q = tx
	}
	row := q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE remote_id = ?`, remoteID)
	return scanOne("note", remoteID, scanNote, row)
}

// Search matches query against title, transcript, and tags of live notes.
func (r *Notes) Search(ctx context.Context, query string, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if query == "" {
		return []models.Note{}, nil
	}
	rows, err := searchNotes(ctx, r.db, query, limit)
	if err != nil {
		return nil, apperr.Storage("repo: search notes", err)
	}
	return scanAll("notes", scanNote, rows)
}

// Upsert inserts n or replaces every field of the existing row.
func (r *Notes) Upsert(ctx context.Context, n models.Note) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.UpsertTx(tx, n)
	})
}

// UpsertTx is Upsert inside tx.
func (r *Notes) UpsertTx(tx *sql.Tx, n models.Note) error {
	if n.Tags == nil {
		n.Tags = []string{}
	}
	_, err := tx.Exec(`
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_id      = excluded.remote_id,
			title          = excluded.title,
			content        = excluded.content,
			summary        = excluded.summary,
			duration       = excluded.duration,
			folder_id      = excluded.folder_id,
			tags           = excluded.tags,
			is_pinned      = excluded.is_pinned,
			is_archived    = excluded.is_archived,
			is_deleted     = excluded.is_deleted,
			audio_path     = excluded.audio_path,
			created_at     = excluded.created_at,
			updated_at     = excluded.updated_at,
			last_synced_at = excluded.last_synced_at,
			sync_status    = excluded.sync_status
	`, noteArgs(n)...)
	if err != nil {
		return apperr.Storage("repo: upsert note", err)
	}
	if n.Deleted {
		return ftsDelete(tx, n.ID)
	}
	return ftsUpsert(tx, n.ID, n.Title, n.Content, n.Tags)
}

// SoftDelete hides a note from default listings and marks it pending.
func (r *Notes) SoftDelete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.SoftDeleteTx(tx, id, utcNow())
	})
}

// SoftDeleteTx is SoftDelete inside tx.
func (r *Notes) SoftDeleteTx(tx *sql.Tx, id string, now time.Time) error {
	if err := execOne(tx, "note", "soft delete", id,
		`UPDATE notes SET is_deleted = 1, updated_at = ?, sync_status = 'pending' WHERE id = ?`,
		store.Unix(now), id); err != nil {
		return err
	}
	return ftsDelete(tx, id)
}

// Restore undoes a soft delete.
func (r *Notes) Restore(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.RestoreTx(ctx, tx, id, utcNow())
	})
}

// RestoreTx is Restore inside tx.
func (r *Notes) RestoreTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	n, err := getNote(ctx, tx, id)
	if err != nil {
		return err
	}
	n.Deleted = false
	n.Touch(now)
	return r.UpsertTx(tx, n)
}

// Delete permanently removes a note. Its actions are removed by cascade.
func (r *Notes) Delete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.DeleteTx(tx, id)
	})
}

// DeleteTx is Delete inside tx.
func (r *Notes) DeleteTx(tx *sql.Tx, id string) error {
	if err := ftsDelete(tx, id); err != nil {
		return err
	}
	return execOne(tx, "note", "delete", id, `DELETE FROM notes WHERE id = ?`, id)
}

// SetSyncStatus updates only the sync status of a note.
func (r *Notes) SetSyncStatus(ctx context.Context, id string, status models.SyncStatus) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return setSyncStatusTx(tx, "notes", "note", id, status)
	})
}

// SetSyncStatusTx is SetSyncStatus inside tx.
func (r *Notes) SetSyncStatusTx(tx *sql.Tx, id string, status models.SyncStatus) error {
	return setSyncStatusTx(tx, "notes", "note", id, status)
}

// MarkSynced records a successful push: status synced, the server id
// stamped when one was assigned, and last_synced_at set to at.
func (r *Notes) MarkSynced(ctx context.Context, id, remoteID string, at time.Time) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.MarkSyncedTx(tx, id, remoteID, at)
	})
}

// MarkSyncedTx is MarkSynced inside tx.
func (r *Notes) MarkSyncedTx(tx *sql.Tx, id, remoteID string, at time.Time) error {
	return execOne(tx, "note", "mark synced", id, `
		UPDATE notes
		SET sync_status = 'synced',
		    remote_id = COALESCE(NULLIF(?, ''), remote_id),
		    last_synced_at = ?
		WHERE id = ?
	`, remoteID, store.Unix(at), id)
}

// MoveFolderTx reassigns every note in folder from to folder to. An empty
// to leaves the notes unfiled. The moved notes are returned so callers can
// enqueue their updates.
func (r *Notes) MoveFolderTx(ctx context.Context, tx *sql.Tx, from, to string, now time.Time) ([]models.Note, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE folder_id = ?`, from)
	if err != nil {
		return nil, apperr.Storage("repo: move notes", err)
	}
	notes, err := scanAll("notes", scanNote, rows)
	if err != nil {
		return nil, err
	}
	for i := range notes {
		notes[i].FolderID = to
		notes[i].Touch(now)
		if err := r.UpsertTx(tx, notes[i]); err != nil {
			return nil, err
		}
	}
	return notes, nil
}
