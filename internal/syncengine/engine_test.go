package syncengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/remote"
	"github.com/starford/glide/internal/repo"
	"github.com/starford/glide/internal/store"
	"github.com/starford/glide/internal/syncqueue"
)

type harness struct {
	db      *store.DB
	queue   *syncqueue.Queue
	remote  *fakeRemote
	engine  *Engine
	notes   *repo.Notes
	folders *repo.Folders
	actions *repo.Actions
}

// tick returns a clock that advances one millisecond per call.
func tick() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	clock := tick()
	q := syncqueue.New(db, syncqueue.WithClock(clock))
	fr := newFakeRemote()
	e := New(db, q, fr, Config{PageSize: 100, ItemTimeout: 5 * time.Second},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(clock))
	return &harness{
		db:      db,
		queue:   q,
		remote:  fr,
		engine:  e,
		notes:   repo.NewNotes(db),
		folders: repo.NewFolders(db),
		actions: repo.NewActions(db),
	}
}

func (h *harness) markHydrated(t *testing.T) {
	t.Helper()
	if err := h.db.SetMeta(context.Background(), store.MetaHydrated, "1"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
}

// createNote stores a new local note and queues its create, the way an
// offline write does.
func (h *harness) createNote(t *testing.T, id, title, folderID string) models.Note {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	n := models.Note{ID: id, Title: title, Content: "body of " + title, FolderID: folderID,
		Tags: []string{}, CreatedAt: now, UpdatedAt: now, SyncStatus: models.SyncStatusPending}
	if err := h.notes.Upsert(ctx, n); err != nil {
		t.Fatalf("Upsert note: %v", err)
	}
	if _, err := h.queue.Enqueue(ctx, models.OpCreate, models.EntityNote, id, n); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return n
}

func (h *harness) createFolder(t *testing.T, id, name, parentID string) models.Folder {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	f := models.Folder{ID: id, Name: name, ParentID: parentID, CreatedAt: now, UpdatedAt: now,
		SyncStatus: models.SyncStatusPending}
	if err := h.folders.Upsert(ctx, f); err != nil {
		t.Fatalf("Upsert folder: %v", err)
	}
	if _, err := h.queue.Enqueue(ctx, models.OpCreate, models.EntityFolder, id, f); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return f
}

// syncedNote stores a note the server already knows.
func (h *harness) syncedNote(t *testing.T, id, remoteID, title string) models.Note {
	t.Helper()
	now := time.Now().UTC()
	n := models.Note{ID: id, RemoteID: remoteID, Title: title, Tags: []string{},
		CreatedAt: now, UpdatedAt: now, SyncStatus: models.SyncStatusSynced}
	if err := h.notes.Upsert(context.Background(), n); err != nil {
		t.Fatalf("Upsert note: %v", err)
	}
	h.remote.mu.Lock()
	h.remote.notes[remoteID] = remote.Note{ID: remoteID, Title: title, Tags: []string{}}
	h.remote.mu.Unlock()
	return n
}

func (h *harness) depth(t *testing.T) syncqueue.Stats {
	t.Helper()
	st, err := h.queue.Depth(context.Background())
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	return st
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSyncPushesQueuedCreate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)
	h.createNote(t, "n1", "Standup notes", "")

	res, err := h.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Pushed != 1 {
		t.Errorf("pushed = %d, want 1", res.Pushed)
	}
	if st := h.depth(t); st.Pending != 0 || st.Exhausted != 0 {
		t.Errorf("queue = %+v, want empty", st)
	}

	got, err := h.notes.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RemoteID == "" || got.SyncStatus != models.SyncStatusSynced {
		t.Errorf("note = %+v, want synced with remote id", got)
	}
	if got.LastSyncedAt == nil {
		t.Error("last_synced_at not set")
	}

	// The pull that follows sees the same note and must not duplicate it.
	n, err := h.notes.Count(ctx, repo.NoteFilter{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("notes = %d, want 1", n)
	}
	if len(h.remote.notes) != 1 {
		t.Errorf("server notes = %d, want 1", len(h.remote.notes))
	}
	last, _ := h.db.MetaTime(ctx, store.MetaLastSyncAt)
	if last.IsZero() {
		t.Error("last_sync_at not recorded")
	}
}

func TestDependentEntitiesPushInOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)

	h.createFolder(t, "f1", "Work", "")
	h.createNote(t, "n1", "Plan", "f1")
	a := models.Action{ID: "a1", NoteID: "n1", Type: models.ActionReminder, Title: "Call Sam",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(), SyncStatus: models.SyncStatusPending}
	if err := h.actions.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert action: %v", err)
	}
	if _, err := h.queue.Enqueue(ctx, models.OpCreate, models.EntityAction, "a1", a); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	res, err := h.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Pushed != 3 || res.PushFailed != 0 {
		t.Fatalf("result = %+v, want 3 pushed", res)
	}

	f, _ := h.folders.Get(ctx, "f1")
	n, _ := h.notes.Get(ctx, "n1")
	wire := h.remote.notes[n.RemoteID]
	if wire.FolderID == nil || *wire.FolderID != f.RemoteID {
		t.Errorf("server note folder = %v, want %q", wire.FolderID, f.RemoteID)
	}
	var act remote.Action
	for _, v := range h.remote.actions {
		act = v
	}
	if act.NoteID != n.RemoteID {
		t.Errorf("server action note = %q, want %q", act.NoteID, n.RemoteID)
	}
}

func TestNoteWaitsForUnsyncedFolder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)
	h.createFolder(t, "f1", "Work", "")
	h.createNote(t, "n1", "Plan", "f1")

	h.remote.setHook(func(_ context.Context, method string) error {
		if method == "CreateFolder" {
			return statusErr(http.StatusServiceUnavailable)
		}
		return nil
	})
	res, err := h.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Pushed != 0 || res.PushFailed != 2 {
		t.Fatalf("result = %+v, want both entries failed", res)
	}
	if h.remote.callCount("CreateNote") != 0 {
		t.Error("note pushed before its folder")
	}

	h.remote.setHook(nil)
	res, err = h.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Pushed != 2 {
		t.Errorf("pushed = %d, want 2", res.Pushed)
	}
	if st := h.depth(t); st.Pending != 0 {
		t.Errorf("pending = %d, want 0", st.Pending)
	}
}

func seedServer(fr *fakeRemote, notes int) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	work := "srv-f1"
	fr.folders["srv-f1"] = remote.Folder{ID: "srv-f1", Name: "Work"}
	fr.folders["srv-f2"] = remote.Folder{ID: "srv-f2", Name: "Projects", ParentID: &work}
	child := "srv-f2"
	for i := 0; i < notes; i++ {
		id := fmt.Sprintf("srv-n%03d", i)
		w := remote.Note{ID: id, Title: "note " + id, Tags: []string{"t"}}
		if i%10 == 0 {
			w.FolderID = &child
		}
		fr.notes[id] = w
	}
	fr.actions["srv-a1"] = remote.Action{ID: "srv-a1", NoteID: "srv-n000", ActionType: "reminder",
		Status: "pending", Priority: "high", Title: "Follow up"}
	fr.actions["srv-a2"] = remote.Action{ID: "srv-a2", NoteID: "srv-unknown", ActionType: "reminder",
		Status: "pending", Priority: "low", Title: "Orphan"}
}

func TestHydrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedServer(h.remote, 150)

	res, err := h.engine.Hydrate(ctx, false)
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if !res.Hydrated || res.Pulled != 2+150+1 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := h.remote.callCount("ListNotes"); got != 2 {
		t.Errorf("ListNotes calls = %d, want 2 pages", got)
	}

	child, err := h.folders.GetByRemoteID(ctx, "srv-f2")
	if err != nil {
		t.Fatalf("GetByRemoteID: %v", err)
	}
	parent, _ := h.folders.GetByRemoteID(ctx, "srv-f1")
	if child.ParentID != parent.ID {
		t.Errorf("child parent = %q, want %q", child.ParentID, parent.ID)
	}
	inChild, _ := h.notes.Count(ctx, repo.NoteFilter{FolderID: child.ID})
	if inChild != 15 {
		t.Errorf("notes in child = %d, want 15", inChild)
	}

	// Already hydrated: nothing fetched.
	if _, err := h.engine.Hydrate(ctx, false); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if got := h.remote.callCount("ListNotes"); got != 2 {
		t.Errorf("ListNotes calls = %d after no-op hydrate", got)
	}

	if _, err := h.engine.Hydrate(ctx, true); err != nil {
		t.Fatalf("forced Hydrate: %v", err)
	}
	notes, _ := h.notes.Count(ctx, repo.NoteFilter{})
	folders, _ := h.folders.Count(ctx, repo.FolderFilter{})
	actions, _ := h.actions.Count(ctx, repo.ActionFilter{})
	if notes != 150 || folders != 2 || actions != 1 {
		t.Errorf("counts = %d notes, %d folders, %d actions", notes, folders, actions)
	}
	ok, _ := h.db.Hydrated(ctx)
	if !ok {
		t.Error("hydrated flag not set")
	}
}

func TestSyncHydratesEmptyStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedServer(h.remote, 3)

	res, err := h.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !res.Hydrated {
		t.Error("first sync did not hydrate")
	}
	full, _ := h.db.MetaTime(ctx, store.MetaLastFullSyncAt)
	if full.IsZero() {
		t.Error("last_full_sync_at not recorded")
	}
}

func TestPullDefersToPendingLocalEdit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)
	n := h.syncedNote(t, "n1", "srv-1", "server title")

	n.Title = "local edit"
	n.SyncStatus = models.SyncStatusPending
	if err := h.notes.Upsert(ctx, n); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := h.queue.Enqueue(ctx, models.OpUpdate, models.EntityNote, "n1", n); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	h.remote.setHook(func(_ context.Context, method string) error {
		if method == "UpdateNote" {
			return statusErr(http.StatusBadGateway)
		}
		return nil
	})
	res, err := h.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Deferred != 1 {
		t.Errorf("deferred = %d, want 1", res.Deferred)
	}
	got, _ := h.notes.Get(ctx, "n1")
	if got.Title != "local edit" {
		t.Errorf("title = %q, pull overwrote a pending edit", got.Title)
	}

	h.remote.setHook(nil)
	if _, err := h.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if title := h.remote.notes["srv-1"].Title; title != "local edit" {
		t.Errorf("server title = %q", title)
	}
	got, _ = h.notes.Get(ctx, "n1")
	if got.SyncStatus != models.SyncStatusSynced {
		t.Errorf("status = %s, want synced", got.SyncStatus)
	}
}

// changedSince lists only notes the server changed after since, the way
// updated_since behaves on the real backend.
type changedSince struct {
	*fakeRemote
}

func (c changedSince) ListNotes(ctx context.Context, page, perPage int, since time.Time) (remote.NotePage, error) {
	p, err := c.fakeRemote.ListNotes(ctx, page, perPage, since)
	if err != nil || since.IsZero() {
		return p, err
	}
	items := p.Items[:0:0]
	for _, n := range p.Items {
		if n.UpdatedAt.After(since) {
			items = append(items, n)
		}
	}
	p.Items = items
	p.Total = len(items)
	p.Pages = 1
	return p, nil
}

func TestDeferredRemoteChangeAppliesAfterLocalEntryExhausts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.engine = New(h.db, h.queue, changedSince{h.remote}, Config{PageSize: 100, ItemTimeout: 5 * time.Second},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(tick()))
	h.markHydrated(t)
	n := h.syncedNote(t, "n1", "srv-1", "server v1")

	if _, err := h.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	since, err := h.db.MetaTime(ctx, store.MetaPullSince)
	if err != nil || since.IsZero() {
		t.Fatalf("pull_since = %v, %v", since, err)
	}

	n.Title = "local edit"
	n.SyncStatus = models.SyncStatusPending
	if err := h.notes.Upsert(ctx, n); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := h.queue.Enqueue(ctx, models.OpUpdate, models.EntityNote, "n1", n); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.remote.mu.Lock()
	h.remote.notes["srv-1"] = remote.Note{ID: "srv-1", Title: "server v2", Tags: []string{},
		UpdatedAt: since.Add(time.Microsecond)}
	h.remote.mu.Unlock()
	h.remote.setHook(func(_ context.Context, method string) error {
		if method == "UpdateNote" {
			return statusErr(http.StatusUnprocessableEntity)
		}
		return nil
	})

	res, err := h.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Deferred != 1 {
		t.Fatalf("deferred = %d, want 1", res.Deferred)
	}
	held, _ := h.db.MetaTime(ctx, store.MetaPullSince)
	if !held.Equal(since) {
		t.Errorf("pull_since moved to %v while a change was deferred", held)
	}
	if last, _ := h.db.MetaTime(ctx, store.MetaLastSyncAt); !last.After(since) {
		t.Error("last_sync_at not recorded for the deferring cycle")
	}

	for i := 1; i < syncqueue.DefaultMaxAttempts; i++ {
		if _, err := h.engine.Sync(ctx); err != nil {
			t.Fatalf("Sync %d: %v", i, err)
		}
	}
	got, _ := h.notes.Get(ctx, "n1")
	if got.Title != "server v2" || got.SyncStatus != models.SyncStatusSynced {
		t.Errorf("note = %q (%s), want server v2 synced", got.Title, got.SyncStatus)
	}
	if st := h.depth(t); st.Pending != 0 || st.Exhausted != 1 {
		t.Errorf("queue = %+v", st)
	}
	after, _ := h.db.MetaTime(ctx, store.MetaPullSince)
	if !after.After(since) {
		t.Error("pull_since did not advance once the deferral resolved")
	}
}

func TestAuthFailureAbortsCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)
	h.createNote(t, "n1", "Secret", "")
	h.remote.setHook(func(context.Context, string) error { return errAuth })

	_, err := h.engine.Sync(ctx)
	if !apperr.IsAuth(err) {
		t.Fatalf("err = %v, want auth", err)
	}
	entries, _ := h.queue.All(ctx)
	if len(entries) != 1 || entries[0].Attempts != 0 {
		t.Errorf("entries = %+v, want one untouched entry", entries)
	}
	if h.remote.callCount("ListFolders") != 0 {
		t.Error("pull ran after auth failure")
	}
	st := h.engine.Status(ctx)
	if st.State != StateFailed || st.ErrorKind != apperr.KindAuth {
		t.Errorf("status = %+v", st)
	}
}

func TestUnreachableServerStopsPushPhase(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)
	h.createNote(t, "n1", "one", "")
	h.createNote(t, "n2", "two", "")
	h.remote.setHook(func(context.Context, string) error { return errOffline })

	res, err := h.engine.Sync(ctx)
	if !apperr.Retryable(err) {
		t.Fatalf("err = %v, want connectivity", err)
	}
	if res.PushFailed != 1 {
		t.Errorf("push failed = %d, want 1", res.PushFailed)
	}
	entries, _ := h.queue.All(ctx)
	if len(entries) != 2 || entries[0].Attempts != 1 || entries[1].Attempts != 0 {
		t.Errorf("entries = %+v", entries)
	}
	if h.engine.Status(ctx).ErrorKind != apperr.KindConnectivity {
		t.Error("status kind not connectivity")
	}
}

func TestValidationFailureExhaustsEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)
	h.createFolder(t, "f1", "Bad", "")
	h.createNote(t, "n1", "fine", "")
	h.remote.setHook(func(_ context.Context, method string) error {
		if method == "CreateFolder" {
			return statusErr(http.StatusUnprocessableEntity)
		}
		return nil
	})

	for i := 0; i < syncqueue.DefaultMaxAttempts+1; i++ {
		if _, err := h.engine.Sync(ctx); err != nil {
			t.Fatalf("Sync %d: %v", i, err)
		}
	}
	if got := h.remote.callCount("CreateFolder"); got != syncqueue.DefaultMaxAttempts {
		t.Errorf("CreateFolder calls = %d, want %d", got, syncqueue.DefaultMaxAttempts)
	}
	st := h.depth(t)
	if st.Pending != 0 || st.Exhausted != 1 || st.LastError == "" {
		t.Errorf("queue = %+v", st)
	}
	f, _ := h.folders.Get(ctx, "f1")
	if f.SyncStatus != models.SyncStatusError {
		t.Errorf("folder status = %s, want error", f.SyncStatus)
	}
	n, _ := h.notes.Get(ctx, "n1")
	if n.SyncStatus != models.SyncStatusSynced {
		t.Errorf("note status = %s, want synced", n.SyncStatus)
	}
}

func TestDeletesPropagate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)

	h.syncedNote(t, "n1", "srv-1", "local delete")
	if err := h.notes.SoftDelete(ctx, "n1"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	gone, _ := h.notes.Get(ctx, "n1")
	if _, err := h.queue.Enqueue(ctx, models.OpDelete, models.EntityNote, "n1", gone); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	h.syncedNote(t, "n2", "srv-2", "remote delete")
	h.remote.mu.Lock()
	w := h.remote.notes["srv-2"]
	w.IsDeleted = true
	h.remote.notes["srv-2"] = w
	h.remote.mu.Unlock()

	if _, err := h.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, ok := h.remote.notes["srv-1"]; ok {
		t.Error("server still has srv-1")
	}
	for _, id := range []string{"n1", "n2"} {
		if _, err := h.notes.Get(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get(%s) err = %v, want not found", id, err)
		}
	}
}

func TestDeleteBeforeFirstPushDropsEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)
	n := h.createNote(t, "n1", "draft", "")
	if err := h.notes.SoftDelete(ctx, "n1"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	n.Deleted = true
	if _, err := h.queue.Enqueue(ctx, models.OpDelete, models.EntityNote, "n1", n); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.remote.setHook(func(_ context.Context, method string) error {
		if method == "CreateNote" {
			return statusErr(http.StatusInternalServerError)
		}
		return nil
	})

	if _, err := h.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if h.remote.callCount("DeleteNote") != 0 {
		t.Error("delete sent for a note the server never saw")
	}
	if st := h.depth(t); st.Pending != 0 {
		t.Errorf("pending = %d, want 0", st.Pending)
	}
	if _, err := h.notes.Get(ctx, "n1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("note still present: %v", err)
	}
}

func TestSyncCoalescesConcurrentTriggers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var once sync.Once
	h.remote.setHook(func(_ context.Context, method string) error {
		if method != "ListFolders" {
			return nil
		}
		first := false
		once.Do(func() { first = true })
		if first {
			entered <- struct{}{}
			<-release
		}
		return nil
	})

	done := make(chan Result, 1)
	go func() {
		res, _ := h.engine.Sync(ctx)
		done <- res
	}()
	<-entered

	for i := 0; i < 3; i++ {
		res, err := h.engine.Sync(ctx)
		if err != nil || !res.Coalesced {
			t.Fatalf("concurrent Sync = %+v, %v; want coalesced", res, err)
		}
	}
	close(release)

	select {
	case res := <-done:
		if res.Coalesced {
			t.Error("first call reported coalesced")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first Sync did not return")
	}
	if got := h.remote.callCount("ListFolders"); got != 2 {
		t.Errorf("cycles = %d, want 2", got)
	}
}

func TestPushNow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)

	put := func(id string) {
		now := time.Now().UTC()
		n := models.Note{ID: id, Title: id, Tags: []string{}, CreatedAt: now, UpdatedAt: now,
			SyncStatus: models.SyncStatusPending}
		if err := h.notes.Upsert(ctx, n); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	t.Run("success", func(t *testing.T) {
		put("ok")
		if err := h.engine.PushNow(ctx, models.EntityNote, "ok"); err != nil {
			t.Fatalf("PushNow: %v", err)
		}
		n, _ := h.notes.Get(ctx, "ok")
		if n.RemoteID == "" || n.SyncStatus != models.SyncStatusSynced {
			t.Errorf("note = %+v", n)
		}
		if pending, _ := h.queue.HasPending(ctx, models.EntityNote, "ok"); pending {
			t.Error("successful push left a queue entry")
		}
	})

	t.Run("connectivity enqueues", func(t *testing.T) {
		put("later")
		h.remote.setHook(func(context.Context, string) error { return errOffline })
		defer h.remote.setHook(nil)
		if err := h.engine.PushNow(ctx, models.EntityNote, "later"); err != nil {
			t.Fatalf("PushNow: %v", err)
		}
		entries, _ := h.queue.PendingFor(ctx, models.EntityNote, "later")
		if len(entries) != 1 || entries[0].Operation != models.OpCreate {
			t.Errorf("entries = %+v", entries)
		}
		n, _ := h.notes.Get(ctx, "later")
		if n.SyncStatus != models.SyncStatusPending {
			t.Errorf("status = %s, want pending", n.SyncStatus)
		}
	})

	t.Run("queued entries flush", func(t *testing.T) {
		before := h.remote.callCount("CreateNote")
		if err := h.engine.PushNow(ctx, models.EntityNote, "later"); err != nil {
			t.Fatalf("PushNow: %v", err)
		}
		if h.remote.callCount("CreateNote") != before+1 {
			t.Error("queued create not sent")
		}
		if pending, _ := h.queue.HasPending(ctx, models.EntityNote, "later"); pending {
			t.Error("flushed entry still queued")
		}
		n, _ := h.notes.Get(ctx, "later")
		if n.RemoteID == "" || n.SyncStatus != models.SyncStatusSynced {
			t.Errorf("note = %+v", n)
		}
	})

	t.Run("rejected queued entry is dropped", func(t *testing.T) {
		put("rejected")
		n, _ := h.notes.Get(ctx, "rejected")
		if _, err := h.queue.Enqueue(ctx, models.OpCreate, models.EntityNote, "rejected", n); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		h.remote.setHook(func(context.Context, string) error { return statusErr(http.StatusConflict) })
		defer h.remote.setHook(nil)
		if err := h.engine.PushNow(ctx, models.EntityNote, "rejected"); apperr.Classify(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation", err)
		}
		if pending, _ := h.queue.HasPending(ctx, models.EntityNote, "rejected"); pending {
			t.Error("rejected entry still queued")
		}
		n, _ = h.notes.Get(ctx, "rejected")
		if n.SyncStatus != models.SyncStatusError {
			t.Errorf("status = %s, want error", n.SyncStatus)
		}
	})

	t.Run("validation marks error", func(t *testing.T) {
		put("bad")
		h.remote.setHook(func(context.Context, string) error { return statusErr(http.StatusBadRequest) })
		defer h.remote.setHook(nil)
		err := h.engine.PushNow(ctx, models.EntityNote, "bad")
		if apperr.Classify(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation", err)
		}
		n, _ := h.notes.Get(ctx, "bad")
		if n.SyncStatus != models.SyncStatusError {
			t.Errorf("status = %s, want error", n.SyncStatus)
		}
		if pending, _ := h.queue.HasPending(ctx, models.EntityNote, "bad"); pending {
			t.Error("validation failure was enqueued")
		}
	})

	t.Run("auth enqueues and reports", func(t *testing.T) {
		put("auth")
		h.remote.setHook(func(context.Context, string) error { return errAuth })
		defer h.remote.setHook(nil)
		err := h.engine.PushNow(ctx, models.EntityNote, "auth")
		if !apperr.IsAuth(err) {
			t.Fatalf("err = %v, want auth", err)
		}
		if pending, _ := h.queue.HasPending(ctx, models.EntityNote, "auth"); !pending {
			t.Error("auth failure lost the edit")
		}
	})

	t.Run("offline skips network", func(t *testing.T) {
		put("offline")
		h.engine.SetOnline(false)
		defer h.engine.SetOnline(true)
		before := h.remote.callCount("CreateNote")
		if err := h.engine.PushNow(ctx, models.EntityNote, "offline"); err != nil {
			t.Fatalf("PushNow: %v", err)
		}
		if h.remote.callCount("CreateNote") != before {
			t.Error("offline push hit the network")
		}
		if pending, _ := h.queue.HasPending(ctx, models.EntityNote, "offline"); !pending {
			t.Error("offline push not queued")
		}
	})
}

func TestStatusNotifications(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.markHydrated(t)
	h.createNote(t, "n1", "one", "")

	var mu sync.Mutex
	var states []State
	h.engine.OnStatus(func(s Status) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})
	if _, err := h.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != StateSyncing || states[len(states)-1] != StateIdle {
		t.Errorf("states = %v", states)
	}
	st := h.engine.Status(ctx)
	if st.Pending != 0 || st.LastSyncAt.IsZero() || !st.Hydrated {
		t.Errorf("status = %+v", st)
	}
}

func TestRunServesTriggers(t *testing.T) {
	h := newHarness(t)
	h.markHydrated(t)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- h.engine.Run(ctx) }()

	h.engine.SetOnline(false)
	h.engine.Trigger(ReasonLocalWrite)
	time.Sleep(50 * time.Millisecond)
	if h.remote.callCount("ListFolders") != 0 {
		t.Error("offline trigger started a cycle")
	}

	h.engine.SetOnline(true) // fires a reconnect trigger
	eventually(t, 2*time.Second, func() bool { return h.remote.callCount("ListFolders") > 0 })

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
