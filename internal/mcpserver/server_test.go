package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/noteservice"
	"github.com/starford/glide/internal/syncengine"
	"github.com/starford/glide/internal/syncqueue"
	"github.com/starford/glide/internal/testutil"
)

type fakeSync struct {
	triggered []syncengine.Reason
}

func (f *fakeSync) Status(context.Context) syncengine.Status {
	return syncengine.Status{State: syncengine.StateIdle, Online: true, Pending: 2}
}

func (f *fakeSync) Trigger(r syncengine.Reason) { f.triggered = append(f.triggered, r) }

type fakeUploads struct {
	queued []models.AudioUpload
}

func (f *fakeUploads) Queue(_ context.Context, noteID, path string) (models.AudioUpload, error) {
	u := models.AudioUpload{ID: fmt.Sprintf("up-%d", len(f.queued)+1), NoteID: noteID, FilePath: path}
	f.queued = append(f.queued, u)
	return u, nil
}

func testServer(t *testing.T) (*Server, *noteservice.Service, *fakeSync) {
	srv, svc, fs, _ := testServerWithUploads(t)
	return srv, svc, fs
}

func testServerWithUploads(t *testing.T) (*Server, *noteservice.Service, *fakeSync, *fakeUploads) {
	t.Helper()
	db := testutil.TestDB(t)
	_, files := testutil.TestAudio(t)
	svc := noteservice.NewService(db, syncqueue.New(db), noteservice.WithLogger(testutil.Logger()))
	fs := &fakeSync{}
	up := &fakeUploads{}
	return New(svc, fs, files, up), svc, fs, up
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "folder_tree":
		result, err = srv.folderTree(ctx, req)
	case "sync_status":
		result, err = srv.syncStatus(ctx, req)
	case "trigger_sync":
		result, err = srv.triggerSync(ctx, req)
	case "add_recording":
		result, err = srv.addRecording(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]any{
		"transcript": "# Standup\nTalked about #roadmap",
		"tags":       []any{"work"},
	})
	if r.IsError {
		t.Fatalf("create failed: %s", resultText(r))
	}
	var created models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &created); err != nil {
		t.Fatal(err)
	}
	if created.Title != "Standup" {
		t.Errorf("title = %q", created.Title)
	}
	if strings.Join(created.Tags, ",") != "work,roadmap" {
		t.Errorf("tags = %v", created.Tags)
	}

	r = callTool(t, srv, "read_note", map[string]any{"id": created.ID})
	if r.IsError || !strings.Contains(resultText(r), "Talked about #roadmap") {
		t.Errorf("read result = %q", resultText(r))
	}
}

func TestCreateNoteInvalid(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "create_note", map[string]any{"transcript": ""})
	if !r.IsError {
		t.Error("expected error for empty note")
	}
}

func TestListAndSearchNotes(t *testing.T) {
	srv, svc, _ := testServer(t)
	ctx := context.Background()
	for _, c := range []string{"alpha budget", "beta planning"} {
		if _, err := svc.CreateNote(ctx, noteservice.NoteInput{Content: c}); err != nil {
			t.Fatal(err)
		}
	}

	r := callTool(t, srv, "list_notes", map[string]any{})
	var page struct {
		Notes []models.Note `json:"notes"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || len(page.Notes) != 2 {
		t.Errorf("list = %+v", page)
	}

	r = callTool(t, srv, "search_notes", map[string]any{"query": "budget"})
	var hits []models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &hits); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Title != "alpha budget" {
		t.Errorf("search = %+v", hits)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestFolderTree(t *testing.T) {
	srv, svc, _ := testServer(t)
	if err := svc.SetupDefaultFolders(context.Background()); err != nil {
		t.Fatal(err)
	}
	r := callTool(t, srv, "folder_tree", map[string]any{})
	for _, name := range []string{"All Notes", "Work", "Personal", "Ideas"} {
		if !strings.Contains(resultText(r), name) {
			t.Errorf("tree missing %q: %s", name, resultText(r))
		}
	}
}

func TestSyncTools(t *testing.T) {
	srv, _, fs := testServer(t)

	r := callTool(t, srv, "sync_status", map[string]any{})
	var st syncengine.Status
	if err := json.Unmarshal([]byte(resultText(r)), &st); err != nil {
		t.Fatal(err)
	}
	if st.Pending != 2 || st.State != syncengine.StateIdle {
		t.Errorf("status = %+v", st)
	}

	callTool(t, srv, "trigger_sync", map[string]any{})
	if len(fs.triggered) != 1 || fs.triggered[0] != syncengine.ReasonManual {
		t.Errorf("triggered = %v", fs.triggered)
	}
}

// wavHeader is enough of a RIFF/WAVE file for content sniffing.
var wavHeader = []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00")

func TestAddRecordingFromDataURI(t *testing.T) {
	srv, svc, _, up := testServerWithUploads(t)
	uri := "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(wavHeader)

	r := callTool(t, srv, "add_recording", map[string]any{"url": uri, "title": "Call with Sam"})
	if r.IsError {
		t.Fatalf("add_recording: %s", resultText(r))
	}
	var res recordingResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(res.Path, ".wav") || res.Size != int64(len(wavHeader)) {
		t.Errorf("result = %+v", res)
	}
	if len(up.queued) != 1 || up.queued[0].NoteID != res.NoteID || up.queued[0].FilePath != res.Path {
		t.Errorf("queued = %+v", up.queued)
	}

	n, err := svc.GetNote(context.Background(), res.NoteID)
	if err != nil {
		t.Fatal(err)
	}
	if n.Title != "Call with Sam" || n.AudioPath != res.Path {
		t.Errorf("note = %+v", n)
	}
}

func TestAddRecordingRejectsNonAudio(t *testing.T) {
	srv, _, _, up := testServerWithUploads(t)

	png := []byte("\x89PNG\r\n\x1a\n0000")
	r := callTool(t, srv, "add_recording", map[string]any{
		"url": "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(png),
	})
	if !r.IsError || !strings.Contains(resultText(r), "does not match") {
		t.Errorf("result = %q", resultText(r))
	}

	r = callTool(t, srv, "add_recording", map[string]any{
		"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
	if !r.IsError {
		t.Error("image data URI should be rejected")
	}

	r = callTool(t, srv, "add_recording", map[string]any{"url": "ftp://example.com/a.wav"})
	if !r.IsError {
		t.Error("ftp URL should be rejected")
	}
	if len(up.queued) != 0 {
		t.Errorf("queued = %+v", up.queued)
	}
}

func TestCheckBlockedHost(t *testing.T) {
	for _, h := range []string{"127.0.0.1", "169.254.169.254", "metadata.google.internal"} {
		if err := checkBlockedHost(h); err == nil {
			t.Errorf("%s should be blocked", h)
		}
	}
	if err := checkBlockedHost("203.0.113.7"); err != nil {
		t.Errorf("public address blocked: %v", err)
	}
}
