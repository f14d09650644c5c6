package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func readAll(t *testing.T, s *FS, path string) string {
	t.Helper()
	fh, err := s.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fh.Close()
	b, err := io.ReadAll(fh)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(b)
}

func TestWriteAndOpen(t *testing.T) {
	s := tempStore(t)
	n, err := s.Write("2026/rec.m4a", strings.NewReader("audio bytes"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != int64(len("audio bytes")) {
		t.Errorf("n = %d", n)
	}
	if got := readAll(t, s, "2026/rec.m4a"); got != "audio bytes" {
		t.Errorf("content = %q", got)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	s := tempStore(t)
	if _, err := s.Write("a.wav", strings.NewReader("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, _ := os.ReadDir(s.Root())
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestImportDeduplicates(t *testing.T) {
	s := tempStore(t)
	inbox := t.TempDir()

	first := filepath.Join(inbox, "Memo 1.M4A")
	second := filepath.Join(inbox, "memo-copy.m4a")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte("same recording"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	a, err := s.Import(first)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	b, err := s.Import(second)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if a.Path != b.Path || !strings.HasSuffix(a.Path, ".m4a") {
		t.Errorf("paths = %q, %q", a.Path, b.Path)
	}
	if a.Size != int64(len("same recording")) || a.Checksum == "" {
		t.Errorf("file = %+v", a)
	}
	for _, p := range []string{first, second} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("source %s not removed", p)
		}
	}
	files, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("files = %+v, want one", files)
	}
}

func TestListSkipsNonAudio(t *testing.T) {
	s := tempStore(t)
	_, _ = s.Write("a.mp3", strings.NewReader("1"))
	_, _ = s.Write("notes.txt", strings.NewReader("2"))
	_, _ = s.Write("sub/b.wav", strings.NewReader("3"))
	files, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("files = %+v, want 2", files)
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	s := tempStore(t)
	_, _ = s.Write("gone.mp3", strings.NewReader("bye"))
	if err := s.Delete("gone.mp3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("gone.mp3"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	s := tempStore(t)
	cases := []string{"../escape.mp3", "a/../../escape.mp3", "/etc/passwd", ""}
	for _, p := range cases {
		if _, err := s.Write(p, strings.NewReader("bad")); err == nil {
			t.Errorf("Write(%q) should fail", p)
		}
		if _, err := s.Open(p); err == nil {
			t.Errorf("Open(%q) should fail", p)
		}
	}
}

func TestIsAudio(t *testing.T) {
	for name, want := range map[string]bool{
		"a.m4a": true, "B.MP3": true, "c.wav": true, "d.mp4": true,
		"e.txt": false, "noext": false,
	} {
		if got := IsAudio(name); got != want {
			t.Errorf("IsAudio(%q) = %v", name, got)
		}
	}
}

func TestSaveFromReader(t *testing.T) {
	s := tempStore(t)

	a, err := s.Save(strings.NewReader("uploaded audio"), ".MP3")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(a.Path, ".mp3") || len(a.Path) != 24+len(".mp3") {
		t.Errorf("path = %q", a.Path)
	}
	if got := readAll(t, s, a.Path); got != "uploaded audio" {
		t.Errorf("content = %q", got)
	}
	b, err := s.Save(strings.NewReader("uploaded audio"), ".mp3")
	if err != nil {
		t.Fatalf("Save again: %v", err)
	}
	if b.Path != a.Path {
		t.Errorf("same content stored twice: %q, %q", a.Path, b.Path)
	}
}
