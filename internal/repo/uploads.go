package repo

import (
	"context"
	"database/sql"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/store"
)

const uploadColumns = `id, note_id, file_path, file_size, status, progress, remote_url,
	transcription, retry_count, last_error, created_at, completed_at`

// Uploads persists audio upload records.
type Uploads struct {
	db *store.DB
}

// NewUploads creates an Uploads repository.
func NewUploads(db *store.DB) *Uploads {
	return &Uploads{db: db}
}

func scanUpload(s store.Scanner) (models.AudioUpload, error) {
	var (
		u                          models.AudioUpload
		status                     string
		remoteURL, text, lastError sql.NullString
		created                    int64
		completed                  sql.NullInt64
	)
	err := s.Scan(&u.ID, &u.NoteID, &u.FilePath, &u.FileSize, &status, &u.Progress,
		&remoteURL, &text, &u.RetryCount, &lastError, &created, &completed)
	if err != nil {
		return models.AudioUpload{}, err
	}
	u.Status = models.UploadStatus(status)
	u.RemoteURL = remoteURL.String
	u.Transcription = text.String
	u.LastError = lastError.String
	u.CreatedAt = store.FromUnix(created)
	u.CompletedAt = store.FromNullUnix(completed)
	return u, nil
}

func uploadArgs(u models.AudioUpload) []any {
	return []any{
		u.ID, u.NoteID, u.FilePath, u.FileSize, string(u.Status), u.Progress,
		store.NullString(u.RemoteURL), store.NullString(u.Transcription), u.RetryCount,
		store.NullString(u.LastError), store.Unix(u.CreatedAt), store.NullUnix(u.CompletedAt),
	}
}

// List returns uploads oldest first. An empty status matches all.
func (r *Uploads) List(ctx context.Context, status models.UploadStatus) ([]models.AudioUpload, error) {
	w := &where{}
	if status != "" {
		w.add("status = ?", string(status))
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM audio_uploads`+w.String()+` ORDER BY created_at, id`, w.args...)
	if err != nil {
		return nil, apperr.Storage("repo: list uploads", err)
	}
	return scanAll("uploads", scanUpload, rows)
}

// Processable returns pending uploads whose retry count is below maxRetries.
func (r *Uploads) Processable(ctx context.Context, maxRetries int) ([]models.AudioUpload, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+uploadColumns+` FROM audio_uploads
		WHERE status = 'pending' AND retry_count < ?
		ORDER BY created_at, id
	`, maxRetries)
	if err != nil {
		return nil, apperr.Storage("repo: processable uploads", err)
	}
	return scanAll("uploads", scanUpload, rows)
}

// Get returns one upload.
func (r *Uploads) Get(ctx context.Context, id string) (models.AudioUpload, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM audio_uploads WHERE id = ?`, id)
	return scanOne("upload", id, scanUpload, row)
}

// GetTx is Get inside tx.
func (r *Uploads) GetTx(ctx context.Context, tx *sql.Tx, id string) (models.AudioUpload, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM audio_uploads WHERE id = ?`, id)
	return scanOne("upload", id, scanUpload, row)
}

// Upsert inserts u or replaces the stored record.
func (r *Uploads) Upsert(ctx context.Context, u models.AudioUpload) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.UpsertTx(tx, u)
	})
}

// UpsertTx is Upsert inside tx.
func (r *Uploads) UpsertTx(tx *sql.Tx, u models.AudioUpload) error {
	_, err := tx.Exec(`
		INSERT INTO audio_uploads (`+uploadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			note_id       = excluded.note_id,
			file_path     = excluded.file_path,
			file_size     = excluded.file_size,
			status        = excluded.status,
			progress      = excluded.progress,
			remote_url    = excluded.remote_url,
			transcription = excluded.transcription,
			retry_count   = excluded.retry_count,
			last_error    = excluded.last_error,
			created_at    = excluded.created_at,
			completed_at  = excluded.completed_at
	`, uploadArgs(u)...)
	return apperr.Storage("repo: upsert upload", err)
}

// UpdateTx replaces the stored record of u inside tx. Unlike UpsertTx it
// never inserts: a record removed meanwhile yields apperr.ErrNotFound.
func (r *Uploads) UpdateTx(tx *sql.Tx, u models.AudioUpload) error {
	args := uploadArgs(u)
	return execOne(tx, "upload", "update", u.ID, `
		UPDATE audio_uploads SET
			note_id = ?, file_path = ?, file_size = ?, status = ?, progress = ?,
			remote_url = ?, transcription = ?, retry_count = ?, last_error = ?,
			created_at = ?, completed_at = ?
		WHERE id = ?
	`, append(args[1:], u.ID)...)
}

// Update is UpdateTx in its own transaction.
func (r *Uploads) Update(ctx context.Context, u models.AudioUpload) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.UpdateTx(tx, u)
	})
}

// Release removes the record of u and clears its note's reference to the
// recording. It reports whether another upload or note still uses the
// file, in which case the file must be kept.
func (r *Uploads) Release(ctx context.Context, u models.AudioUpload) (shared bool, err error) {
	err = r.db.Write(ctx, func(tx *sql.Tx) error {
		if err := execOne(tx, "upload", "delete", u.ID, `DELETE FROM audio_uploads WHERE id = ?`, u.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE notes SET audio_path = NULL WHERE id = ? AND audio_path = ?`,
			u.NoteID, u.FilePath); err != nil {
			return apperr.Storage("repo: release note audio", err)
		}
		err := tx.QueryRow(`
			SELECT EXISTS (SELECT 1 FROM audio_uploads WHERE file_path = ?)
			    OR EXISTS (SELECT 1 FROM notes WHERE audio_path = ?)
		`, u.FilePath, u.FilePath).Scan(&shared)
		return apperr.Storage("repo: release upload", err)
	})
	return shared, err
}

// SetProgress updates the progress fraction of an in-flight upload.
func (r *Uploads) SetProgress(ctx context.Context, id string, p float64) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return execOne(tx, "upload", "set progress", id,
			`UPDATE audio_uploads SET progress = ? WHERE id = ?`, p, id)
	})
}

// Delete removes an upload record.
func (r *Uploads) Delete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return execOne(tx, "upload", "delete", id, `DELETE FROM audio_uploads WHERE id = ?`, id)
	})
}

// ResetFailed moves every failed upload back to pending with its retry
// count cleared, returning how many were reset.
func (r *Uploads) ResetFailed(ctx context.Context) (int, error) {
	var n int64
	err := r.db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE audio_uploads
			SET status = 'pending', retry_count = 0, progress = 0, last_error = NULL
			WHERE status = 'failed'
		`)
		if err != nil {
			return apperr.Storage("repo: reset failed uploads", err)
		}
		n, err = res.RowsAffected()
		return apperr.Storage("repo: reset failed uploads", err)
	})
	return int(n), err
}
