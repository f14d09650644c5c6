package syncengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/syncqueue"
)

// PushNow sends one entity straight to the server and writes the result
// back as synced. It is the online write path.
//
// With nothing queued for the entity, PushNow bypasses the queue: a
// connectivity failure (including a folder or note reference that has no
// server id yet) enqueues the mutation for the next cycle and returns nil;
// an auth failure also enqueues, so the edit is not lost, and returns the
// error; a validation failure marks the entity error, enqueues nothing and
// returns the error. When entries are already queued for the entity they
// are flushed in order instead, with the same outcomes. PushNow waits for a
// running cycle so a pull cannot overwrite the edit mid-flight.
func (e *Engine) PushNow(ctx context.Context, typ models.EntityType, id string) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	queued, err := e.queue.PendingFor(ctx, typ, id)
	if err != nil {
		return err
	}
	if len(queued) > 0 {
		if !e.Online() {
			return nil
		}
		return e.flush(ctx, queued)
	}

	entry, snapshot, err := e.snapshot(ctx, typ, id)
	if err != nil {
		return err
	}
	if !e.Online() {
		return e.enqueueLater(ctx, entry, snapshot, nil)
	}

	out, err := e.dispatch(ctx, entry)
	switch {
	case err == nil:
		return e.writeBack(ctx, entry, out)
	case apperr.IsAuth(err):
		return errors.Join(err, e.enqueueLater(ctx, entry, snapshot, err))
	case apperr.Retryable(err):
		return e.enqueueLater(ctx, entry, snapshot, err)
	case apperr.Classify(err) == apperr.KindValidation:
		if serr := e.setEntityStatus(ctx, typ, id, models.SyncStatusError); serr != nil {
			return errors.Join(err, serr)
		}
		return err
	default:
		return err
	}
}

// flush pushes an entity's queued entries in order. It stops at the first
// failure: retryable ones stay queued without using an attempt, a rejected
// entry is dropped and the entity marked error.
func (e *Engine) flush(ctx context.Context, entries []models.SyncQueueEntry) error {
	defer func() {
		e.refreshCounts(context.WithoutCancel(ctx))
		e.notify()
	}()
	for _, entry := range entries {
		out, err := e.dispatch(ctx, entry)
		switch {
		case err == nil:
			if err := e.acknowledge(ctx, entry, out); err != nil {
				return err
			}
			continue
		case apperr.IsAuth(err):
			return err
		case apperr.Retryable(err):
			e.log.Info("sync: push deferred to queue", "entity", entry.EntityType,
				"id", entry.EntityID, "op", entry.Operation, "error", err)
			return nil
		case apperr.Classify(err) == apperr.KindValidation:
			e.log.Warn("sync: push rejected", "entity", entry.EntityType,
				"id", entry.EntityID, "op", entry.Operation, "error", err)
			serr := e.db.Write(ctx, func(tx *sql.Tx) error {
				if err := syncqueue.RemoveTx(tx, entry.ID); err != nil {
					return err
				}
				return ignoreNotFound(e.setStatusTx(tx, entry.EntityType, entry.EntityID, models.SyncStatusError))
			})
			return errors.Join(err, serr)
		default:
			return err
		}
	}
	return nil
}

// snapshot builds the queue entry PushNow would have enqueued.
func (e *Engine) snapshot(ctx context.Context, typ models.EntityType, id string) (models.SyncQueueEntry, any, error) {
	var (
		snap     any
		op       models.Operation
		deleted  bool
		remoteID string
	)
	switch typ {
	case models.EntityNote:
		n, err := e.notes.Get(ctx, id)
		if err != nil {
			return models.SyncQueueEntry{}, nil, err
		}
		snap, deleted, remoteID = n, n.Deleted, n.RemoteID
	case models.EntityFolder:
		f, err := e.folders.Get(ctx, id)
		if err != nil {
			return models.SyncQueueEntry{}, nil, err
		}
		snap, deleted, remoteID = f, f.Deleted, f.RemoteID
	case models.EntityAction:
		a, err := e.actions.Get(ctx, id)
		if err != nil {
			return models.SyncQueueEntry{}, nil, err
		}
		snap, deleted, remoteID = a, a.Deleted, a.RemoteID
	default:
		return models.SyncQueueEntry{}, nil, fmt.Errorf("syncengine: unknown entity type %q: %w", typ, apperr.ErrValidation)
	}
	switch {
	case deleted:
		op = models.OpDelete
	case remoteID == "":
		op = models.OpCreate
	default:
		op = models.OpUpdate
	}
	raw, err := jsonRaw(snap)
	if err != nil {
		return models.SyncQueueEntry{}, nil, err
	}
	return models.SyncQueueEntry{
		Operation:  op,
		EntityType: typ,
		EntityID:   id,
		Payload:    raw,
		CreatedAt:  e.now(),
	}, snap, nil
}

func (e *Engine) enqueueLater(ctx context.Context, entry models.SyncQueueEntry, snapshot any, cause error) error {
	if _, err := e.queue.Enqueue(ctx, entry.Operation, entry.EntityType, entry.EntityID, snapshot); err != nil {
		return err
	}
	if cause != nil {
		e.log.Info("sync: push deferred to queue", "entity", entry.EntityType, "id", entry.EntityID,
			"op", entry.Operation, "error", cause)
	}
	e.refreshCounts(ctx)
	e.notify()
	return nil
}

// writeBack applies a successful direct push.
func (e *Engine) writeBack(ctx context.Context, entry models.SyncQueueEntry, out outcome) error {
	now := e.now()
	return e.db.Write(ctx, func(tx *sql.Tx) error {
		if out.deleted {
			return ignoreNotFound(e.hardDeleteTx(ctx, tx, entry.EntityType, entry.EntityID))
		}
		return e.markSyncedTx(tx, entry.EntityType, entry.EntityID, out.remoteID, now)
	})
}
