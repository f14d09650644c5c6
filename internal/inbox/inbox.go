// Package inbox imports recordings dropped into a watched directory: each
// file is moved into permanent audio storage, gets a placeholder note, and
// is queued for transcription.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/storage"
)

// DefaultSettle is how long a file must go without events before it is
// imported, so recordings still being copied are not picked up half-written.
const DefaultSettle = 500 * time.Millisecond

// Notes creates the placeholder note for a recording.
type Notes interface {
	CreateVoiceNote(ctx context.Context, title, audioPath string) (models.Note, error)
}

// Uploads queues a stored recording for transcription.
type Uploads interface {
	Queue(ctx context.Context, noteID, path string) (models.AudioUpload, error)
}

// ImportFunc is called after a recording has been imported.
type ImportFunc func(note models.Note, upload models.AudioUpload)

// Inbox watches one directory for recordings.
type Inbox struct {
	dir      string
	files    storage.Provider
	notes    Notes
	uploads  Uploads
	settle   time.Duration
	log      *slog.Logger
	onImport ImportFunc

	mu sync.Mutex // serializes imports between Scan and Watch
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Inbox) { in.log = l }
}

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(in *Inbox) { in.settle = d }
}

// OnImport registers fn to run after every import.
func OnImport(fn ImportFunc) Option {
	return func(in *Inbox) { in.onImport = fn }
}

// New creates an Inbox over dir, which must exist.
func New(dir string, files storage.Provider, notes Notes, uploads Uploads, opts ...Option) *Inbox {
	in := &Inbox{
		dir:     dir,
		files:   files,
		notes:   notes,
		uploads: uploads,
		settle:  DefaultSettle,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// eligible reports whether name looks like a finished recording.
func eligible(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && storage.IsAudio(base)
}

// Scan imports every recording already in the directory and returns how
// many were imported.
func (in *Inbox) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return 0, fmt.Errorf("inbox: scan: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !eligible(e.Name()) {
			continue
		}
		if err := in.ingest(ctx, filepath.Join(in.dir, e.Name())); err != nil {
			in.log.Warn("inbox: import failed", slog.String("file", e.Name()), slog.String("error", err.Error()))
			continue
		}
		n++
	}
	return n, nil
}

// Watch imports recordings as they appear until ctx is cancelled. Files
// present at start are imported first.
func (in *Inbox) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(in.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", in.dir, err)
	}
	in.log.Info("inbox: started", slog.String("dir", in.dir))

	if n, err := in.Scan(ctx); err != nil {
		in.log.Warn("inbox: initial scan", slog.String("error", err.Error()))
	} else if n > 0 {
		in.log.Info("inbox: imported existing", slog.Int("count", n))
	}

	// settleTimer debounces bursts of write events.
	var settleTimer *time.Timer
	var settleCh <-chan time.Time
	pending := make(map[string]struct{})

	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(in.settle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(in.settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			in.log.Info("inbox: stopped")
			return nil

		case <-settleCh:
			for p := range pending {
				delete(pending, p)
				if _, err := os.Stat(p); err != nil {
					continue
				}
				if err := in.ingest(ctx, p); err != nil {
					in.log.Warn("inbox: import failed", slog.String("file", p), slog.String("error", err.Error()))
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !eligible(ev.Name) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[ev.Name] = struct{}{}
				schedule()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.log.Error("inbox: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// ingest moves one recording into storage, creates its note and queues
// the upload.
func (in *Inbox) ingest(ctx context.Context, abs string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	title := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	af, err := in.files.Import(abs)
	if err != nil {
		return err
	}
	note, err := in.notes.CreateVoiceNote(ctx, title, af.Path)
	if err != nil {
		return fmt.Errorf("inbox: note for %s: %w", af.Path, err)
	}
	u, err := in.uploads.Queue(ctx, note.ID, af.Path)
	if err != nil {
		return fmt.Errorf("inbox: queue %s: %w", af.Path, err)
	}
	in.log.Info("inbox: imported",
		slog.String("file", filepath.Base(abs)),
		slog.String("note", note.ID),
		slog.String("upload", u.ID))
	if in.onImport != nil {
		in.onImport(note, u)
	}
	return nil
}
