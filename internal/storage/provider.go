// Package storage keeps audio recordings in the app's permanent directory.
// Paths are relative to the storage root.
package storage

import (
	"io"
	"os"
)

// Provider is the interface for audio file operations.
type Provider interface {
	// List returns every audio file under the root.
	List() ([]AudioFile, error)
	// Open opens the file at path for reading.
	Open(path string) (*os.File, error)
	// Write atomically stores r at path and returns the bytes written.
	Write(path string, r io.Reader) (int64, error)
	// Save stores r under a name derived from its content and ext.
	Save(r io.Reader, ext string) (AudioFile, error)
	// Import moves the file at the absolute path src into storage under a
	// name derived from its content.
	Import(src string) (AudioFile, error)
	// Delete removes the file at path.
	Delete(path string) error
}
