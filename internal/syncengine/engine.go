// Package syncengine reconciles the local store with the server. It pushes
// the sync queue, pulls remote changes with a server-wins policy that defers
// to unresolved local edits, hydrates an empty store on first run, and runs
// a background loop that coalesces triggers so two cycles never overlap.
package syncengine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/remote"
	"github.com/starford/glide/internal/repo"
	"github.com/starford/glide/internal/store"
	"github.com/starford/glide/internal/syncqueue"
)

// Remote is the subset of the REST client the engine uses.
type Remote interface {
	ListFolders(ctx context.Context, since time.Time) ([]remote.Folder, error)
	ListNotes(ctx context.Context, page, perPage int, since time.Time) (remote.NotePage, error)
	ListActions(ctx context.Context, since time.Time) ([]remote.Action, error)

	CreateNote(ctx context.Context, n remote.Note) (remote.Note, error)
	UpdateNote(ctx context.Context, id string, n remote.Note) (remote.Note, error)
	DeleteNote(ctx context.Context, id string) error

	CreateFolder(ctx context.Context, f remote.Folder) (remote.Folder, error)
	UpdateFolder(ctx context.Context, id string, f remote.Folder) (remote.Folder, error)
	DeleteFolder(ctx context.Context, id string) error

	CreateAction(ctx context.Context, a remote.Action) (remote.Action, error)
	UpdateAction(ctx context.Context, id string, a remote.Action) (remote.Action, error)
	DeleteAction(ctx context.Context, id string) error
}

// Config tunes the engine.
type Config struct {
	BatchSize   int           // queue entries per push phase
	PageSize    int           // notes per pull page
	ItemTimeout time.Duration // per remote call
	Interval    time.Duration // periodic trigger; zero disables it
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.PageSize <= 0 || c.PageSize > remote.MaxPerPage {
		c.PageSize = remote.MaxPerPage
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = 30 * time.Second
	}
}

// Reason says why a cycle was requested.
type Reason string

const (
	ReasonForeground Reason = "foreground"
	ReasonReconnect  Reason = "reconnect"
	ReasonManual     Reason = "manual"
	ReasonPeriodic   Reason = "periodic"
	ReasonLocalWrite Reason = "local_write"
)

// State is the coarse sync state shown to the user.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateFailed  State = "failed"
)

// Status is the aggregate shown by the status indicator.
type Status struct {
	State      State       `json:"state"`
	Online     bool        `json:"online"`
	Pending    int         `json:"pending"`
	Exhausted  int         `json:"exhausted"`
	LastError  string      `json:"last_error,omitempty"`
	ErrorKind  apperr.Kind `json:"error_kind,omitempty"`
	LastSyncAt time.Time   `json:"last_sync_at,omitzero"`
	Hydrated   bool        `json:"hydrated"`
}

// Engine is the sync engine.
type Engine struct {
	db      *store.DB
	notes   *repo.Notes
	folders *repo.Folders
	actions *repo.Actions
	queue   *syncqueue.Queue
	remote  Remote
	cfg     Config
	log     *slog.Logger
	now     func() time.Time

	cycleMu sync.Mutex // held while a cycle or hydration writes

	stateMu   sync.Mutex
	running   bool
	rerun     bool
	status    Status
	listeners []func(Status)

	online  atomic.Bool
	trigger chan Reason
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. It starts online.
func New(db *store.DB, q *syncqueue.Queue, r Remote, cfg Config, opts ...Option) *Engine {
	cfg.defaults()
	e := &Engine{
		db:      db,
		notes:   repo.NewNotes(db),
		folders: repo.NewFolders(db),
		actions: repo.NewActions(db),
		queue:   q,
		remote:  r,
		cfg:     cfg,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
		trigger: make(chan Reason, 1),
	}
	for _, o := range opts {
		o(e)
	}
	e.online.Store(true)
	e.status = Status{State: StateIdle, Online: true}
	return e
}

// Trigger requests a cycle from the Run loop. Requests made while one is
// already waiting are merged.
func (e *Engine) Trigger(reason Reason) {
	select {
	case e.trigger <- reason:
	default:
	}
}

// SetOnline records connectivity. Going from offline to online fires a
// reconnect trigger.
func (e *Engine) SetOnline(online bool) {
	prev := e.online.Swap(online)
	e.stateMu.Lock()
	e.status.Online = online
	e.stateMu.Unlock()
	if online && !prev {
		e.log.Info("sync: back online")
		e.Trigger(ReasonReconnect)
	}
	e.notify()
}

// Online reports the last connectivity state set with SetOnline.
func (e *Engine) Online() bool { return e.online.Load() }

// Run serves triggers until ctx is cancelled. Offline, only manual
// triggers start a cycle.
func (e *Engine) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if e.cfg.Interval > 0 {
		t := time.NewTicker(e.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}
	e.log.Info("sync: loop started", "interval", e.cfg.Interval)
	for {
		var reason Reason
		select {
		case <-ctx.Done():
			return nil
		case reason = <-e.trigger:
		case <-tick:
			reason = ReasonPeriodic
		}
		if !e.Online() && reason != ReasonManual {
			e.log.Debug("sync: offline, skipping", "reason", reason)
			continue
		}
		res, err := e.Sync(ctx)
		if err != nil {
			e.log.Warn("sync: cycle failed", "reason", reason, "error", err, "kind", apperr.Classify(err))
			continue
		}
		e.log.Info("sync: cycle done", "reason", reason, "pushed", res.Pushed,
			"push_failed", res.PushFailed, "pulled", res.Pulled, "deferred", res.Deferred,
			"elapsed", res.Duration)
	}
}

// OnStatus registers fn to receive every status change.
func (e *Engine) OnStatus(fn func(Status)) {
	e.stateMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.stateMu.Unlock()
}

// Status returns the current status, refreshing queue depth from the store.
func (e *Engine) Status(ctx context.Context) Status {
	e.refreshCounts(ctx)
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.status
}

func (e *Engine) refreshCounts(ctx context.Context) {
	stats, err := e.queue.Depth(ctx)
	if err != nil {
		e.log.Warn("sync: queue depth", "error", err)
		return
	}
	last, _ := e.db.MetaTime(ctx, store.MetaLastSyncAt)
	hydrated, _ := e.db.Hydrated(ctx)
	e.stateMu.Lock()
	e.status.Pending = stats.Pending
	e.status.Exhausted = stats.Exhausted
	e.status.LastSyncAt = last
	e.status.Hydrated = hydrated
	if e.status.LastError == "" {
		e.status.LastError = stats.LastError
	}
	e.stateMu.Unlock()
}

func (e *Engine) setState(s State, err error) {
	e.stateMu.Lock()
	e.status.State = s
	if s != StateSyncing {
		if err != nil {
			e.status.LastError = err.Error()
			e.status.ErrorKind = apperr.Classify(err)
		} else {
			e.status.LastError = ""
			e.status.ErrorKind = apperr.KindNone
		}
	}
	e.stateMu.Unlock()
}

func (e *Engine) notify() {
	e.stateMu.Lock()
	st := e.status
	ls := append([]func(Status){}, e.listeners...)
	e.stateMu.Unlock()
	for _, fn := range ls {
		fn(st)
	}
}
