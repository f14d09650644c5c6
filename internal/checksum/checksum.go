// Package checksum hashes audio content for content-addressed storage.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Copy copies r to w and returns the hex SHA-256 of the bytes copied.
func Copy(w io.Writer, r io.Reader) (sum string, n int64, err error) {
	h := sha256.New()
	n, err = io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
