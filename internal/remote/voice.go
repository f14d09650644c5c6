package remote

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"sync/atomic"
)

// VoiceUpload describes a recording to send for transcription.
type VoiceUpload struct {
	FileName string
	Size     int64
	Body     io.Reader
	FolderID string // server folder id, optional

	// Progress receives the fraction of Body sent, in [0, 1].
	Progress func(float64)
}

// ProcessVoice uploads a recording and creates a new note from it.
func (c *Client) ProcessVoice(ctx context.Context, up VoiceUpload) (VoiceResult, error) {
	return c.voice(ctx, "/voice/process", up)
}

// AppendVoice uploads a recording and appends it to the note with server
// id noteID.
func (c *Client) AppendVoice(ctx context.Context, noteID string, up VoiceUpload) (VoiceResult, error) {
	return c.voice(ctx, "/voice/append/"+url.PathEscape(noteID), up)
}

// voice streams a multipart body through a pipe so large recordings are
// never buffered in memory. No per-call timeout is applied; ctx governs.
func (c *Client) voice(ctx context.Context, path string, up VoiceUpload) (VoiceResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeVoiceForm(mw, up)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, pr)
	if err != nil {
		pr.CloseWithError(err)
		return VoiceResult{}, fmt.Errorf("remote: build POST %s: %w", path, err)
	}
	// Unblocks the writer if the server answers before reading the body.
	defer pr.Close()
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out VoiceResult
	if err := c.send(req, path, &out); err != nil {
		return VoiceResult{}, err
	}
	if up.Progress != nil {
		up.Progress(1)
	}
	return out, nil
}

func writeVoiceForm(mw *multipart.Writer, up VoiceUpload) error {
	if up.FolderID != "" {
		if err := mw.WriteField("folder_id", up.FolderID); err != nil {
			return err
		}
	}
	name := filepath.Base(up.FileName)
	if name == "" || name == "." {
		name = "recording.m4a"
	}
	part, err := mw.CreateFormFile("audio_file", name)
	if err != nil {
		return err
	}
	var body io.Reader = up.Body
	if up.Progress != nil && up.Size > 0 {
		body = &progressReader{r: up.Body, total: up.Size, report: up.Progress}
	}
	_, err = io.Copy(part, body)
	return err
}

// progressReader reports the fraction of bytes read so far.
type progressReader struct {
	r      io.Reader
	total  int64
	read   atomic.Int64
	report func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		done := p.read.Add(int64(n))
		frac := float64(done) / float64(p.total)
		if frac > 1 {
			frac = 1
		}
		p.report(frac)
	}
	return n, err
}
