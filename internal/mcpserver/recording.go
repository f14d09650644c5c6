package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/storage"
)

const maxRecordingSize = 100 << 20 // 100 MB

// Uploads queues stored recordings for transcription.
type Uploads interface {
	Queue(ctx context.Context, noteID, path string) (models.AudioUpload, error)
}

var (
	mimeToExt = map[string]string{
		"audio/mpeg":  ".mp3",
		"audio/mp3":   ".mp3",
		"audio/mp4":   ".m4a",
		"audio/x-m4a": ".m4a",
		"audio/wav":   ".wav",
		"audio/wave":  ".wav",
		"audio/x-wav": ".wav",
		"video/mp4":   ".mp4",
	}

	// sniffed lists what http.DetectContentType may report per extension.
	// MP3 without an ID3 header is not recognised by the sniffer.
	sniffed = map[string][]string{
		".mp3": {"audio/mpeg", "application/octet-stream"},
		".m4a": {"video/mp4", "application/octet-stream"},
		".mp4": {"video/mp4"},
		".wav": {"audio/wave"},
	}
)

type recordingResult struct {
	NoteID   string `json:"noteId"`
	UploadID string `json:"uploadId"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

func (s *Server) addRecording(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	var detectedExt string
	if strings.HasPrefix(rawURL, "data:") {
		data, detectedExt, err = decodeDataURI(rawURL)
	} else {
		data, detectedExt, err = fetchHTTP(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := nameFromURL(rawURL)
	ext := strings.ToLower(path.Ext(name))
	if !storage.IsAudio(name) {
		ext = detectedExt
	}
	if ext == "" {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported audio type (allowed: %s)",
			strings.Join(storage.AudioExtensions, ", "))), nil
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	title := req.GetString("title", "")
	if title == "" && name != "" {
		title = strings.TrimSuffix(name, path.Ext(name))
	}

	af, err := s.files.Save(bytes.NewReader(data), ext)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: save recording: %w", err)
	}
	note, err := s.notes.CreateVoiceNote(ctx, title, af.Path)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: voice note: %w", err)
	}
	u, err := s.uploads.Queue(ctx, note.ID, af.Path)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: queue upload: %w", err)
	}

	out, _ := json.Marshal(recordingResult{NoteID: note.ID, UploadID: u.ID, Path: af.Path, Size: af.Size})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	if len(data) > maxRecordingSize {
		return nil, "", fmt.Errorf("recording too large: %d bytes (max %d)", len(data), maxRecordingSize)
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, ext, nil
}

// fetchHTTP downloads a recording from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 2 * time.Minute,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxRecordingSize {
		return nil, "", fmt.Errorf("recording too large: exceeds %d bytes", maxRecordingSize)
	}

	ct := resp.Header.Get("Content-Type")
	return data, mimeToExt[strings.Split(ct, ";")[0]], nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// nameFromURL returns the last path element of an http(s) URL, or "".
func nameFromURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "data:") {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" || !strings.Contains(base, ".") {
		return ""
	}
	return base
}

// validateMagicBytes verifies the content looks like the declared format.
func validateMagicBytes(data []byte, ext string) error {
	detected := strings.Split(http.DetectContentType(data), ";")[0]
	for _, ok := range sniffed[ext] {
		if detected == ok {
			return nil
		}
	}
	return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
}
