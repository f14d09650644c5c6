package syncengine

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/remote"
)

// fakeRemote is an in-memory server. hook, when set, runs before every
// call and may fail it.
type fakeRemote struct {
	mu      sync.Mutex
	seq     int
	notes   map[string]remote.Note
	folders map[string]remote.Folder
	actions map[string]remote.Action
	calls   map[string]int
	hook    func(ctx context.Context, method string) error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		notes:   map[string]remote.Note{},
		folders: map[string]remote.Folder{},
		actions: map[string]remote.Action{},
		calls:   map[string]int{},
	}
}

var (
	errOffline = fmt.Errorf("remote: dial: %w", apperr.ErrConnectivity)
	errAuth    = remote.NewStatusError("POST", "/x", http.StatusUnauthorized, "token expired")
)

func statusErr(code int) error {
	return remote.NewStatusError("POST", "/x", code, "")
}

func (f *fakeRemote) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, method)
	}
	return nil
}

func (f *fakeRemote) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRemote) setHook(h func(ctx context.Context, method string) error) {
	f.mu.Lock()
	f.hook = h
	f.mu.Unlock()
}

func (f *fakeRemote) nextID() string {
	f.seq++
	return fmt.Sprintf("srv-%d", f.seq)
}

func (f *fakeRemote) ListFolders(ctx context.Context, _ time.Time) ([]remote.Folder, error) {
	if err := f.enter(ctx, "ListFolders"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Folder, 0, len(f.folders))
	for _, v := range f.folders {
		out = append(out, v)
	}
	// Children first, to exercise parent resolution.
	sort.Slice(out, func(i, j int) bool {
		return (out[i].ParentID != nil) && (out[j].ParentID == nil) ||
			((out[i].ParentID != nil) == (out[j].ParentID != nil) && out[i].ID < out[j].ID)
	})
	return out, nil
}

func (f *fakeRemote) ListNotes(ctx context.Context, page, perPage int, _ time.Time) (remote.NotePage, error) {
	if err := f.enter(ctx, "ListNotes"); err != nil {
		return remote.NotePage{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]remote.Note, 0, len(f.notes))
	for _, v := range f.notes {
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	pages := (len(all) + perPage - 1) / perPage
	return remote.NotePage{Items: all[start:end], Total: len(all), Page: page, PerPage: perPage, Pages: pages}, nil
}

func (f *fakeRemote) ListActions(ctx context.Context, _ time.Time) ([]remote.Action, error) {
	if err := f.enter(ctx, "ListActions"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Action, 0, len(f.actions))
	for _, v := range f.actions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) CreateNote(ctx context.Context, n remote.Note) (remote.Note, error) {
	if err := f.enter(ctx, "CreateNote"); err != nil {
		return remote.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = f.nextID()
	f.notes[n.ID] = n
	return n, nil
}

func (f *fakeRemote) UpdateNote(ctx context.Context, id string, n remote.Note) (remote.Note, error) {
	if err := f.enter(ctx, "UpdateNote"); err != nil {
		return remote.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.notes[id]; !ok {
		return remote.Note{}, statusErr(http.StatusNotFound)
	}
	n.ID = id
	f.notes[id] = n
	return n, nil
}

func (f *fakeRemote) DeleteNote(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteNote"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.notes, id)
	return nil
}

func (f *fakeRemote) CreateFolder(ctx context.Context, v remote.Folder) (remote.Folder, error) {
	if err := f.enter(ctx, "CreateFolder"); err != nil {
		return remote.Folder{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v.ID = f.nextID()
	f.folders[v.ID] = v
	return v, nil
}

func (f *fakeRemote) UpdateFolder(ctx context.Context, id string, v remote.Folder) (remote.Folder, error) {
	if err := f.enter(ctx, "UpdateFolder"); err != nil {
		return remote.Folder{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v.ID = id
	f.folders[id] = v
	return v, nil
}

func (f *fakeRemote) DeleteFolder(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteFolder"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.folders, id)
	return nil
}

func (f *fakeRemote) CreateAction(ctx context.Context, v remote.Action) (remote.Action, error) {
	if err := f.enter(ctx, "CreateAction"); err != nil {
		return remote.Action{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v.ID = f.nextID()
	f.actions[v.ID] = v
	return v, nil
}

func (f *fakeRemote) UpdateAction(ctx context.Context, id string, v remote.Action) (remote.Action, error) {
	if err := f.enter(ctx, "UpdateAction"); err != nil {
		return remote.Action{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v.ID = id
	f.actions[id] = v
	return v, nil
}

func (f *fakeRemote) DeleteAction(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteAction"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.actions, id)
	return nil
}
