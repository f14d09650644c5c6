package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/glide/internal/apperr"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/v1", WithTimeout(2*time.Second))
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, apperr.ErrUnauthorized},
		{http.StatusBadRequest, apperr.ErrValidation},
		{http.StatusConflict, apperr.ErrValidation},
		{http.StatusUnprocessableEntity, apperr.ErrValidation},
		{http.StatusNotFound, apperr.ErrConnectivity},
		{http.StatusInternalServerError, apperr.ErrConnectivity},
		{http.StatusServiceUnavailable, apperr.ErrConnectivity},
	}
	for _, tc := range cases {
		c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.code)
			_, _ = w.Write([]byte(`{"detail":"nope"}`))
		})
		_, err := c.CreateFolder(context.Background(), Folder{Name: "x"})
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.code, err, tc.want)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.Body != "nope" {
			t.Errorf("status %d: detail not surfaced: %v", tc.code, err)
		}
	}
}

func TestTransportErrorIsConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url)
	_, err := c.ListFolders(context.Background(), time.Time{})
	if !apperr.Retryable(err) {
		t.Fatalf("err = %v, want retryable", err)
	}
}

func TestTimeoutIsRetryable(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := testClient(t, func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	c.timeout = 50 * time.Millisecond
	_, err := c.ListActions(context.Background(), time.Time{})
	if !errors.Is(err, apperr.ErrTimeout) || !apperr.Retryable(err) {
		t.Fatalf("err = %v, want retryable timeout", err)
	}
}

func TestDeleteMissingIsSuccess(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/notes/srv-1" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
	})
	if err := c.DeleteNote(context.Background(), "srv-1"); err != nil {
		t.Fatalf("DeleteNote(404) = %v, want nil", err)
	}
}

func TestListNotesQuery(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("per_page") != "100" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if got, _ := time.Parse(time.RFC3339Nano, q.Get("updated_since")); !got.Equal(since) {
			t.Errorf("updated_since = %q", q.Get("updated_since"))
		}
		_ = json.NewEncoder(w).Encode(NotePage{Items: []Note{{ID: "n1", Title: "hi"}}, Total: 101, Page: 2, PerPage: 100, Pages: 2})
	})
	page, err := c.ListNotes(context.Background(), 2, 500, since)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "n1" || page.Pages != 2 {
		t.Errorf("page = %+v", page)
	}
}

func TestRefresh(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.RefreshToken != "rt-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2","token_type":"bearer","expires_in":1800}`))
	})
	pair, err := c.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.AccessToken != "at-2" || pair.ExpiresIn != 1800 || pair.IssuedAt.IsZero() {
		t.Errorf("pair = %+v", pair)
	}
	if _, err := c.Refresh(context.Background(), "bad"); !apperr.IsAuth(err) {
		t.Errorf("bad token err = %v", err)
	}
}

func TestProcessVoiceMultipartAndProgress(t *testing.T) {
	audio := strings.Repeat("a", 64<<10)
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/voice/append/srv-n" {
			t.Errorf("path = %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("audio_file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if len(b) != len(audio) || hdr.Filename != "memo.m4a" {
			t.Errorf("got %d bytes named %q", len(b), hdr.Filename)
		}
		if r.FormValue("folder_id") != "srv-f" {
			t.Errorf("folder_id = %q", r.FormValue("folder_id"))
		}
		_, _ = w.Write([]byte(`{"note_id":"srv-n","title":"Memo","transcript":"hello","summary":"s","duration":3,
			"tags":["a"],"actions":{"calendar":[{"title":"Sync","date":"2026-05-01","time":"10:00"}],"email":[],"reminders":[],"next_steps":["ship it"]}}`))
	})

	var mu sync.Mutex
	var seen []float64
	res, err := c.AppendVoice(context.Background(), "srv-n", VoiceUpload{
		FileName: "/tmp/memo.m4a",
		Size:     int64(len(audio)),
		Body:     strings.NewReader(audio),
		FolderID: "srv-f",
		Progress: func(p float64) {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("AppendVoice: %v", err)
	}
	if res.Transcript != "hello" || len(res.Actions.Calendar) != 1 || res.Actions.NextSteps[0] != "ship it" {
		t.Errorf("result = %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || seen[len(seen)-1] != 1 {
		t.Fatalf("progress = %v, want to end at 1", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Errorf("progress went backwards: %v", seen)
		}
	}
}

func TestPingUsesServerRoot(t *testing.T) {
	var path string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if path != "/health" {
		t.Errorf("path = %q, want /health", path)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	addr := down.URL
	down.Close()
	if err := New(addr + "/api/v1").Ping(context.Background()); !apperr.Retryable(err) {
		t.Errorf("Ping on closed server: %v", err)
	}
}
