// Package audio manages recordings awaiting upload and transcription.
//
// An upload moves pending → uploading → processing → completed. A failed
// attempt returns it to pending until it has used its retries, after which
// it is failed and waits for RetryFailed.
package audio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/parser"
	"github.com/starford/glide/internal/remote"
	"github.com/starford/glide/internal/repo"
	"github.com/starford/glide/internal/storage"
	"github.com/starford/glide/internal/store"
	"github.com/starford/glide/internal/syncqueue"
)

// DefaultMaxRetries bounds attempts per upload.
const DefaultMaxRetries = 3

// Voice is the transcription collaborator.
type Voice interface {
	ProcessVoice(ctx context.Context, up remote.VoiceUpload) (remote.VoiceResult, error)
	AppendVoice(ctx context.Context, noteID string, up remote.VoiceUpload) (remote.VoiceResult, error)
}

// Retention says what happens to a recording once its upload completes
// and the record is cleaned up.
type Retention string

const (
	RetentionKeep   Retention = "keep"
	RetentionDelete Retention = "delete"
)

// Config tunes the manager.
type Config struct {
	MaxRetries int
	Retention  Retention
}

// ProgressFunc receives upload progress in [0, 1].
type ProgressFunc func(uploadID string, progress float64)

// Result summarizes one ProcessAll run.
type Result struct {
	Processed int  `json:"processed"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped,omitempty"` // another run was in progress
}

// Manager is the audio upload manager.
type Manager struct {
	db      *store.DB
	uploads *repo.Uploads
	notes   *repo.Notes
	folders *repo.Folders
	actions *repo.Actions
	files   storage.Provider
	voice   Voice
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
	loc     *time.Location

	running atomic.Bool
	kick    chan struct{}

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLocation sets the zone extracted dates are read in.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) { m.loc = loc }
}

// New creates a Manager.
func New(db *store.DB, files storage.Provider, voice Voice, cfg Config, opts ...Option) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Retention == "" {
		cfg.Retention = RetentionKeep
	}
	m := &Manager{
		db:       db,
		uploads:  repo.NewUploads(db),
		notes:    repo.NewNotes(db),
		folders:  repo.NewFolders(db),
		actions:  repo.NewActions(db),
		files:    files,
		voice:    voice,
		cfg:      cfg,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		loc:      time.Local,
		kick:     make(chan struct{}, 1),
		inflight: make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Queue records a stored recording for upload. path is relative to the
// audio storage root and the file must exist.
func (m *Manager) Queue(ctx context.Context, noteID, path string) (models.AudioUpload, error) {
	if _, err := m.notes.Get(ctx, noteID); err != nil {
		return models.AudioUpload{}, fmt.Errorf("audio: queue: %w", err)
	}
	fh, err := m.files.Open(path)
	if err != nil {
		return models.AudioUpload{}, fmt.Errorf("audio: queue %s: %w: %w", path, apperr.ErrNotFound, err)
	}
	info, err := fh.Stat()
	fh.Close()
	if err != nil {
		return models.AudioUpload{}, fmt.Errorf("audio: stat %s: %w", path, err)
	}

	u := models.AudioUpload{
		ID:        uuid.NewString(),
		NoteID:    noteID,
		FilePath:  path,
		FileSize:  info.Size(),
		Status:    models.UploadPending,
		CreatedAt: m.now(),
	}
	if err := m.uploads.Upsert(ctx, u); err != nil {
		return models.AudioUpload{}, err
	}
	m.log.Info("audio: queued", "upload", u.ID, "note", noteID, "size", u.FileSize)
	m.Kick()
	return u, nil
}

// Kick asks the Run loop to process pending uploads.
func (m *Manager) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Run processes uploads whenever Kick is called, and every interval when
// interval is positive, until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration, progress ProgressFunc) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.kick:
		case <-tick:
		}
		res, err := m.ProcessAll(ctx, progress)
		if err != nil {
			m.log.Warn("audio: process", "error", err, "kind", apperr.Classify(err))
			continue
		}
		if res.Processed > 0 || res.Failed > 0 {
			m.log.Info("audio: processed", "ok", res.Processed, "failed", res.Failed)
		}
	}
}

// ProcessAll uploads every processable recording in order. A call made
// while another is running returns at once with Skipped set. An auth
// failure stops the run and is returned.
func (m *Manager) ProcessAll(ctx context.Context, progress ProgressFunc) (Result, error) {
	if !m.running.CompareAndSwap(false, true) {
		return Result{Skipped: true}, nil
	}
	defer m.running.Store(false)

	pending, err := m.uploads.Processable(ctx, m.cfg.MaxRetries)
	if err != nil {
		return Result{}, err
	}
	var res Result
	for _, u := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := m.process(ctx, u, progress)
		switch {
		case err == nil:
			res.Processed++
		case apperr.IsAuth(err):
			res.Failed++
			return res, err
		default:
			res.Failed++
		}
	}
	return res, nil
}

// Running reports whether ProcessAll is in progress.
func (m *Manager) Running() bool { return m.running.Load() }

func (m *Manager) track(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.inflight[id] = cancel
	m.mu.Unlock()
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}

func (m *Manager) process(ctx context.Context, u models.AudioUpload, progress ProgressFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.track(u.ID, cancel)
	defer m.untrack(u.ID)

	u.Status = models.UploadUploading
	u.Progress = 0
	if err := m.uploads.Update(ctx, u); err != nil {
		return cancelledIfGone(err)
	}

	note, err := m.notes.Get(ctx, u.NoteID)
	if err != nil {
		return m.fail(ctx, u, fmt.Errorf("audio: note %s: %w", u.NoteID, err), true)
	}
	fh, err := m.files.Open(u.FilePath)
	if err != nil {
		return m.fail(ctx, u, err, true)
	}
	defer fh.Close()

	up := remote.VoiceUpload{
		FileName: u.FilePath,
		Size:     u.FileSize,
		Body:     fh,
		FolderID: m.remoteFolderID(ctx, note.FolderID),
		Progress: m.reporter(ctx, u.ID, progress),
	}
	var result remote.VoiceResult
	if note.RemoteID != "" {
		result, err = m.voice.AppendVoice(ctx, note.RemoteID, up)
	} else {
		result, err = m.voice.ProcessVoice(ctx, up)
	}
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled: the record is already gone.
			return ctx.Err()
		}
		return m.fail(ctx, u, err, false)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	u.Status = models.UploadProcessing
	u.Progress = 1
	if err := m.uploads.Update(ctx, u); err != nil {
		return cancelledIfGone(err)
	}
	if err := m.complete(ctx, u, note, result); err != nil {
		if errors.Is(err, apperr.ErrNotFound) && m.cancelled(ctx, u.ID) {
			return context.Canceled
		}
		return m.fail(ctx, u, err, false)
	}
	m.log.Info("audio: completed", "upload", u.ID, "note", note.ID, "remote_note", result.NoteID)
	return nil
}

// reporter persists progress in steps of at least 5% and forwards every
// report to fn.
func (m *Manager) reporter(ctx context.Context, id string, fn ProgressFunc) func(float64) {
	var mu sync.Mutex
	last := -1.0
	return func(p float64) {
		mu.Lock()
		save := p-last >= 0.05 || p >= 1
		if save {
			last = p
		}
		mu.Unlock()
		if save {
			if err := m.uploads.SetProgress(context.WithoutCancel(ctx), id, p); err != nil {
				m.log.Debug("audio: progress", "upload", id, "error", err)
			}
		}
		if fn != nil {
			fn(id, p)
		}
	}
}

func (m *Manager) remoteFolderID(ctx context.Context, localID string) string {
	if localID == "" {
		return ""
	}
	f, err := m.folders.Get(ctx, localID)
	if err != nil {
		return ""
	}
	return f.RemoteID
}

// fail records a failed attempt. Auth failures do not use up a retry; a
// permanent failure uses up all of them.
func (m *Manager) fail(ctx context.Context, u models.AudioUpload, cause error, permanent bool) error {
	ctx = context.WithoutCancel(ctx)
	switch {
	case permanent:
		u.RetryCount = m.cfg.MaxRetries
	case !apperr.IsAuth(cause):
		u.RetryCount++
	}
	u.LastError = cause.Error()
	u.Progress = 0
	u.Status = models.UploadPending
	if u.RetryCount >= m.cfg.MaxRetries {
		u.Status = models.UploadFailed
	}
	m.log.Warn("audio: upload failed", "upload", u.ID, "attempt", u.RetryCount,
		"status", u.Status, "error", cause)
	if err := m.uploads.Update(ctx, u); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return errors.Join(cause, err)
	}
	return cause
}

// cancelledIfGone maps a missing upload record, removed by Cancel, to
// context.Canceled.
func cancelledIfGone(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return context.Canceled
	}
	return err
}

// cancelled reports whether the record of upload id has been removed.
func (m *Manager) cancelled(ctx context.Context, id string) bool {
	_, err := m.uploads.Get(context.WithoutCancel(ctx), id)
	return errors.Is(err, apperr.ErrNotFound)
}

// complete applies the server's result to the note, stores the extracted
// actions and finishes the upload, all in one transaction. Queued edits of
// the note are dropped: the server's transcript supersedes them.
func (m *Manager) complete(ctx context.Context, u models.AudioUpload, note models.Note, r remote.VoiceResult) error {
	now := m.now()
	ctx = context.WithoutCancel(ctx)
	return m.db.Write(ctx, func(tx *sql.Tx) error {
		// A record removed by Cancel stays removed.
		if _, err := m.uploads.GetTx(ctx, tx, u.ID); err != nil {
			return err
		}
		n, err := m.notes.GetTx(ctx, tx, note.ID)
		if err != nil {
			return err
		}
		if r.Title != "" {
			n.Title = r.Title
		}
		n.Content = r.Transcript
		n.Summary = r.Summary
		n.Duration = r.Duration
		n.Tags = parser.MergeTags(n.Tags, r.Tags)
		if r.NoteID != "" {
			n.RemoteID = r.NoteID
		}
		if r.FolderID != nil {
			if f, err := m.folders.GetByRemoteIDTx(ctx, tx, *r.FolderID); err == nil {
				n.FolderID = f.ID
			}
		}
		n.UpdatedAt = now
		n.LastSyncedAt = &now
		n.SyncStatus = models.SyncStatusSynced
		if err := syncqueue.RemoveForTx(tx, models.EntityNote, n.ID); err != nil {
			return err
		}
		if err := m.notes.UpsertTx(tx, n); err != nil {
			return err
		}
		for _, a := range extractActions(r.Actions, n.ID, now, m.loc) {
			a.ID = uuid.NewString()
			if err := m.actions.UpsertTx(tx, a); err != nil {
				return err
			}
		}

		u.Status = models.UploadCompleted
		u.Progress = 1
		u.Transcription = r.Transcript
		u.LastError = ""
		u.CompletedAt = &now
		return m.uploads.UpdateTx(tx, u)
	})
}

// Cancel stops an in-flight upload and removes its record. The recording
// is deleted too when deleteFile is set.
func (m *Manager) Cancel(ctx context.Context, id string, deleteFile bool) error {
	u, err := m.uploads.Get(ctx, id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if cancel, ok := m.inflight[id]; ok {
		cancel()
	}
	m.mu.Unlock()

	if !deleteFile {
		if err := m.uploads.Delete(ctx, id); err != nil {
			return err
		}
		m.log.Info("audio: cancelled", "upload", id, "file_deleted", false)
		return nil
	}
	deleted, err := m.release(ctx, u)
	if err != nil {
		return fmt.Errorf("audio: cancel %s: %w", id, err)
	}
	m.log.Info("audio: cancelled", "upload", id, "file_deleted", deleted)
	return nil
}

// release removes the record of u and deletes its recording unless another
// upload or note still uses it. Recordings are content-addressed, so one
// file can back several notes.
func (m *Manager) release(ctx context.Context, u models.AudioUpload) (deleted bool, err error) {
	shared, err := m.uploads.Release(ctx, u)
	if err != nil {
		return false, err
	}
	if shared {
		m.log.Debug("audio: recording kept, still referenced", "upload", u.ID, "path", u.FilePath)
		return false, nil
	}
	if err := m.files.Delete(u.FilePath); err != nil {
		return false, err
	}
	return true, nil
}

// CleanupCompleted removes completed upload records, deleting their
// recordings when the retention policy says so. It returns the number of
// records removed.
func (m *Manager) CleanupCompleted(ctx context.Context) (int, error) {
	done, err := m.uploads.List(ctx, models.UploadCompleted)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, u := range done {
		if m.cfg.Retention == RetentionDelete {
			if _, err := m.release(ctx, u); err != nil {
				return removed, fmt.Errorf("audio: cleanup %s: %w", u.ID, err)
			}
		} else if err := m.uploads.Delete(ctx, u.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RetryFailed returns failed uploads to pending with a fresh retry budget.
func (m *Manager) RetryFailed(ctx context.Context) (int, error) {
	n, err := m.uploads.ResetFailed(ctx)
	if err == nil && n > 0 {
		m.Kick()
	}
	return n, err
}

// List returns uploads with the given status, or all when status is empty.
func (m *Manager) List(ctx context.Context, status models.UploadStatus) ([]models.AudioUpload, error) {
	return m.uploads.List(ctx, status)
}

// Get returns one upload.
func (m *Manager) Get(ctx context.Context, id string) (models.AudioUpload, error) {
	return m.uploads.Get(ctx, id)
}
