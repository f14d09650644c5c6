package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/glide/internal/checksum"
)

// AudioExtensions are the recording formats accepted from the inbox and
// the upload endpoint.
var AudioExtensions = []string{".m4a", ".mp3", ".wav", ".mp4"}

// IsAudio reports whether name has an accepted audio extension.
func IsAudio(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range AudioExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// AudioFile describes a stored recording.
type AudioFile struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum,omitempty"`
	ModTime  time.Time `json:"mod_time"`
}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the audio directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute storage directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the root and rejects any
// result that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("storage: empty path")
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

// List walks the root and returns every audio file, skipping temp files.
func (f *FS) List() ([]AudioFile, error) {
	var out []AudioFile
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) || !IsAudio(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, AudioFile{Path: rel, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Open opens a stored file for reading.
func (f *FS) Open(path string) (*os.File, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return fh, nil
}

const tmpPrefix = ".glide-tmp-"

// writeTemp streams r into a synced temp file in dir. The caller renames or
// removes it.
func writeTemp(dir string, r io.Reader) (name, sum string, n int64, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", 0, fmt.Errorf("storage: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return "", "", 0, fmt.Errorf("storage: create temp: %w", err)
	}
	name = tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(name)
		}
	}()

	sum, n, err = checksum.Copy(tmp, r)
	if err != nil {
		return "", "", 0, fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", "", 0, fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", 0, fmt.Errorf("storage: close temp: %w", err)
	}
	success = true
	return name, sum, n, nil
}

// Write atomically writes r to path: tmp file → fsync → rename.
func (f *FS) Write(path string, r io.Reader) (int64, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return 0, err
	}
	tmp, _, n, err := writeTemp(filepath.Dir(abs), r)
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("storage: rename: %w", err)
	}
	return n, nil
}

// Save stores r under a name derived from its content and ext. Content
// that is already stored is not duplicated.
func (f *FS) Save(r io.Reader, ext string) (AudioFile, error) {
	tmp, sum, n, err := writeTemp(f.root, r)
	if err != nil {
		return AudioFile{}, err
	}
	rel := sum[:24] + strings.ToLower(ext)
	abs := filepath.Join(f.root, rel)
	if _, err := os.Stat(abs); err == nil {
		_ = os.Remove(tmp)
	} else if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return AudioFile{}, fmt.Errorf("storage: rename: %w", err)
	}
	return AudioFile{Path: rel, Size: n, Checksum: sum, ModTime: time.Now()}, nil
}

// Import saves the file at src and then removes src.
func (f *FS) Import(src string) (AudioFile, error) {
	in, err := os.Open(src)
	if err != nil {
		return AudioFile{}, fmt.Errorf("storage: import: %w", err)
	}
	af, err := f.Save(in, filepath.Ext(src))
	in.Close()
	if err != nil {
		return AudioFile{}, err
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AudioFile{}, fmt.Errorf("storage: remove source: %w", err)
	}
	return af, nil
}

// Delete removes a stored file. A missing file is not an error.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}
