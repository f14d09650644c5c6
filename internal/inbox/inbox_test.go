package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/testutil"
)

type fakeNotes struct {
	mu    sync.Mutex
	notes []models.Note
}

func (f *fakeNotes) CreateVoiceNote(_ context.Context, title, audioPath string) (models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := models.Note{ID: "note-" + title, Title: title, AudioPath: audioPath}
	f.notes = append(f.notes, n)
	return n, nil
}

func (f *fakeNotes) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.notes {
		out = append(out, n.Title)
	}
	return out
}

type fakeUploads struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeUploads) Queue(_ context.Context, noteID, path string) (models.AudioUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return models.AudioUpload{ID: "up-" + noteID, NoteID: noteID, FilePath: path}, nil
}

func (f *fakeUploads) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestScanImportsExistingRecordings(t *testing.T) {
	dir := t.TempDir()
	_, files := testutil.TestAudio(t)
	notes, uploads := &fakeNotes{}, &fakeUploads{}

	for name, body := range map[string]string{
		"Standup.m4a": "one",
		"idea.MP3":    "two",
		"readme.txt":  "not audio",
		".hidden.m4a": "partial",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	in := New(dir, files, notes, uploads, WithLogger(testutil.Logger()))
	n, err := in.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 2 || uploads.count() != 2 {
		t.Fatalf("imported %d, queued %d, want 2", n, uploads.count())
	}
	for _, name := range []string{"Standup.m4a", "idea.MP3"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s left in inbox", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "readme.txt")); err != nil {
		t.Error("non-audio file should stay in the inbox")
	}
	stored, err := files.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("stored = %+v", stored)
	}
}

func TestWatchImportsNewRecording(t *testing.T) {
	dir := t.TempDir()
	_, files := testutil.TestAudio(t)
	notes, uploads := &fakeNotes{}, &fakeUploads{}

	var mu sync.Mutex
	var imported []string
	in := New(dir, files, notes, uploads,
		WithLogger(testutil.Logger()),
		WithSettle(50*time.Millisecond),
		OnImport(func(n models.Note, u models.AudioUpload) {
			mu.Lock()
			imported = append(imported, n.ID+"/"+u.ID)
			mu.Unlock()
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- in.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "Memo 7.wav"), []byte("riff"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return uploads.count() == 1
	}, "recording was not imported")

	if got := notes.titles(); len(got) != 1 || got[0] != "Memo 7" {
		t.Errorf("note titles = %v", got)
	}
	mu.Lock()
	if len(imported) != 1 || imported[0] != "note-Memo 7/up-note-Memo 7" {
		t.Errorf("callbacks = %v", imported)
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop")
	}
}
