// Package noteservice is the write path for notes, folders and actions:
// every local change and its sync queue entry commit in one transaction,
// and online writes are pushed right away.
package noteservice

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/repo"
	"github.com/starford/glide/internal/store"
	"github.com/starford/glide/internal/syncqueue"
)

// Pusher sends a changed entity to the server without waiting for the
// next cycle.
type Pusher interface {
	Online() bool
	PushNow(ctx context.Context, typ models.EntityType, id string) error
}

// Change describes a committed local write.
type Change struct {
	Entity models.EntityType `json:"entity"`
	ID     string            `json:"id"`
	Op     models.Operation  `json:"op"`
}

type ref struct {
	typ models.EntityType
	id  string
	op  models.Operation
}

// Service coordinates repositories and the sync queue.
type Service struct {
	db      *store.DB
	notes   *repo.Notes
	folders *repo.Folders
	actions *repo.Actions
	queue   *syncqueue.Queue
	pusher  Pusher
	notify  func(Change)
	log     *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPusher enables immediate pushes of online writes.
func WithPusher(p Pusher) Option {
	return func(s *Service) { s.pusher = p }
}

// WithNotifier registers fn to receive every committed change.
func WithNotifier(fn func(Change)) Option {
	return func(s *Service) { s.notify = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new write service.
func NewService(db *store.DB, q *syncqueue.Queue, opts ...Option) *Service {
	s := &Service{
		db:      db,
		notes:   repo.NewNotes(db),
		folders: repo.NewFolders(db),
		actions: repo.NewActions(db),
		queue:   q,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// commit runs fn in one transaction with the queue entries it records, then
// announces and pushes every entity fn touched.
func (s *Service) commit(ctx context.Context, fn func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error) error {
	var touched []ref
	now := s.now()
	err := s.db.Write(ctx, func(tx *sql.Tx) error {
		touched = touched[:0]
		enqueue := func(op models.Operation, typ models.EntityType, id string, snapshot any) error {
			if _, err := s.queue.EnqueueTx(tx, op, typ, id, snapshot); err != nil {
				return err
			}
			touched = append(touched, ref{typ: typ, id: id, op: op})
			return nil
		}
		return fn(tx, now, enqueue)
	})
	if err != nil {
		return err
	}
	for _, r := range touched {
		if s.notify != nil {
			s.notify(Change{Entity: r.typ, ID: r.id, Op: r.op})
		}
	}
	s.push(ctx, touched)
	return nil
}

// push flushes touched entities while online. Failures leave the entries
// queued or the entity flagged, so they are logged rather than returned:
// the local write already succeeded.
func (s *Service) push(ctx context.Context, touched []ref) {
	if s.pusher == nil || !s.pusher.Online() {
		return
	}
	seen := make(map[ref]bool, len(touched))
	for _, r := range touched {
		k := ref{typ: r.typ, id: r.id}
		if seen[k] {
			continue
		}
		seen[k] = true
		if err := s.pusher.PushNow(ctx, r.typ, r.id); err != nil {
			s.log.Warn("noteservice: push", "entity", r.typ, "id", r.id,
				"error", err, "kind", apperr.Classify(err))
		}
	}
}

func invalid(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("noteservice: %s: %w: %w", op, apperr.ErrValidation, err)
}

func newID() string { return uuid.NewString() }
