// Package remote is the REST client for the Glide backend (/api/v1). HTTP
// failures are mapped onto the apperr taxonomy: 401 is an auth error,
// 400/409/422 are validation errors, and 404, 5xx, timeouts, and transport
// failures are transient connectivity errors.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
)

// DefaultTimeout bounds each JSON call that carries no deadline of its own.
const DefaultTimeout = 30 * time.Second

// MaxPerPage is the largest page size the server accepts.
const MaxPerPage = 100

// StatusError is a non-2xx response. It unwraps to the apperr sentinel
// matching its status code.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
	kind   error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("remote: %s %s: %d", e.Method, e.Path, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.kind }

// NewStatusError builds the error for a response with the given status.
func NewStatusError(method, path string, code int, body string) *StatusError {
	return &StatusError{Method: method, Path: path, Code: code, Body: body, kind: kindForStatus(code)}
}

func kindForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return apperr.ErrUnauthorized
	case code == http.StatusBadRequest, code == http.StatusConflict,
		code == http.StatusUnprocessableEntity:
		return apperr.ErrValidation
	case code == http.StatusNotFound, code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests, code >= 500:
		return apperr.ErrConnectivity
	default:
		return apperr.ErrValidation
	}
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client calls the Glide backend.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client, typically one whose
// transport injects and refreshes the bearer token.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout for JSON requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for baseURL, e.g. "https://api.example.com/api/v1".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.base }

// transportError classifies a failed round trip.
func transportError(method, path string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("remote: %s %s: %w: %w", method, path, apperr.ErrTimeout, err)
	}
	return fmt.Errorf("remote: %s %s: %w: %w", method, path, apperr.ErrConnectivity, err)
}

// do sends a JSON request and decodes a JSON response into out (when
// non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	var raw []byte
	if in != nil {
		var err error
		raw, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("remote: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, path, out)
}

func (c *Client) send(req *http.Request, path string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(req.Method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("remote call", "method", req.Method, "path", path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(req.Method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return transportError(req.Method, path, err)
		}
		return fmt.Errorf("remote: decode %s %s: %w", req.Method, path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(raw))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		switch d := eb.Detail.(type) {
		case string:
			msg = d
		case nil:
			if eb.Error != "" {
				msg = eb.Error
			}
		}
	}
	return NewStatusError(method, path, resp.StatusCode, msg)
}

func sinceQuery(since time.Time) url.Values {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("updated_since", since.UTC().Format(time.RFC3339Nano))
	}
	return q
}

// Ping checks that the backend answers its health endpoint, which lives at
// the server root rather than under the API prefix.
func (c *Client) Ping(ctx context.Context) error {
	u, err := url.Parse(c.base)
	if err != nil {
		return fmt.Errorf("remote: ping: %w", err)
	}
	u.Path, u.RawQuery = "/health", ""
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("remote: ping: %w", err)
	}
	return c.send(req, "/health", nil)
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	var pair models.TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, refreshRequest{RefreshToken: refreshToken}, &pair); err != nil {
		return models.TokenPair{}, err
	}
	pair.IssuedAt = time.Now()
	return pair, nil
}

// ListFolders returns every folder changed since since (all when zero),
// deleted ones included.
func (c *Client) ListFolders(ctx context.Context, since time.Time) ([]Folder, error) {
	q := sinceQuery(since)
	q.Set("include_deleted", "true")
	var out []Folder
	if err := c.do(ctx, http.MethodGet, "/folders", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListNotes returns one page of notes changed since since.
func (c *Client) ListNotes(ctx context.Context, page, perPage int, since time.Time) (NotePage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	q := sinceQuery(since)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("include_deleted", "true")
	var out NotePage
	if err := c.do(ctx, http.MethodGet, "/notes", q, nil, &out); err != nil {
		return NotePage{}, err
	}
	return out, nil
}

// ListActions returns every action changed since since.
func (c *Client) ListActions(ctx context.Context, since time.Time) ([]Action, error) {
	q := sinceQuery(since)
	q.Set("include_deleted", "true")
	var out []Action
	if err := c.do(ctx, http.MethodGet, "/actions", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateNote creates a note and returns the server copy.
func (c *Client) CreateNote(ctx context.Context, n Note) (Note, error) {
	var out Note
	err := c.do(ctx, http.MethodPost, "/notes", nil, n, &out)
	return out, err
}

// UpdateNote patches the note with server id id.
func (c *Client) UpdateNote(ctx context.Context, id string, n Note) (Note, error) {
	var out Note
	err := c.do(ctx, http.MethodPatch, "/notes/"+url.PathEscape(id), nil, n, &out)
	return out, err
}

// DeleteNote deletes a note. A note the server no longer has counts as
// deleted.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.delete(ctx, "/notes/"+url.PathEscape(id))
}

// CreateFolder creates a folder.
func (c *Client) CreateFolder(ctx context.Context, f Folder) (Folder, error) {
	var out Folder
	err := c.do(ctx, http.MethodPost, "/folders", nil, f, &out)
	return out, err
}

// UpdateFolder patches a folder.
func (c *Client) UpdateFolder(ctx context.Context, id string, f Folder) (Folder, error) {
	var out Folder
	err := c.do(ctx, http.MethodPatch, "/folders/"+url.PathEscape(id), nil, f, &out)
	return out, err
}

// DeleteFolder deletes a folder.
func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	return c.delete(ctx, "/folders/"+url.PathEscape(id))
}

// CreateAction creates an action.
func (c *Client) CreateAction(ctx context.Context, a Action) (Action, error) {
	var out Action
	err := c.do(ctx, http.MethodPost, "/actions", nil, a, &out)
	return out, err
}

// UpdateAction patches an action.
func (c *Client) UpdateAction(ctx context.Context, id string, a Action) (Action, error) {
	var out Action
	err := c.do(ctx, http.MethodPatch, "/actions/"+url.PathEscape(id), nil, a, &out)
	return out, err
}

// DeleteAction deletes an action.
func (c *Client) DeleteAction(ctx context.Context, id string) error {
	return c.delete(ctx, "/actions/"+url.PathEscape(id))
}

func (c *Client) delete(ctx context.Context, path string) error {
	err := c.do(ctx, http.MethodDelete, path, nil, nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}
