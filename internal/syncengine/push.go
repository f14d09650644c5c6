package syncengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/remote"
	"github.com/starford/glide/internal/syncqueue"
)

// outcome is the result of dispatching one entry.
type outcome struct {
	remoteID string // server id for create/update, "" for delete
	deleted  bool   // the server no longer has the entity
}

// pushPhase drains up to one batch of retry-eligible entries. It returns a
// hard error (auth, storage, cancellation) that must abort the cycle, and
// separately whether the network looked unreachable.
func (e *Engine) pushPhase(ctx context.Context, res *Result) (unreachable error, hard error) {
	entries, err := e.queue.Pending(ctx, e.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := e.dispatch(ctx, entry)
		if err == nil {
			if err := e.acknowledge(ctx, entry, out); err != nil {
				return nil, err
			}
			res.Pushed++
			continue
		}

		switch {
		case apperr.IsAuth(err):
			return nil, err
		case apperr.Classify(err) == apperr.KindStorage:
			return nil, err
		case ctx.Err() != nil:
			// Shutting down: the entry stays queued untouched.
			return nil, ctx.Err()
		}

		res.PushFailed++
		if ferr := e.fail(ctx, entry, err); ferr != nil {
			return nil, ferr
		}
		e.log.Warn("sync: push failed", "entry", entry.ID, "op", entry.Operation,
			"entity", entry.EntityType, "id", entry.EntityID, "error", err,
			"kind", apperr.Classify(err))

		// A transport failure means the server is unreachable; the rest of
		// the batch would fail the same way and burn its attempts.
		var se *remote.StatusError
		if apperr.Retryable(err) && !errors.Is(err, errDependency) && !errors.As(err, &se) {
			return err, nil
		}
	}
	return nil, nil
}

// fail records a failed attempt and flags the entity once the entry is
// exhausted.
func (e *Engine) fail(ctx context.Context, entry models.SyncQueueEntry, cause error) error {
	attempts, err := e.queue.RecordFailure(ctx, entry.ID, cause)
	if err != nil {
		return err
	}
	if attempts < e.queue.MaxAttempts() {
		return nil
	}
	err = e.setEntityStatus(ctx, entry.EntityType, entry.EntityID, models.SyncStatusError)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

func (e *Engine) setEntityStatus(ctx context.Context, typ models.EntityType, id string, s models.SyncStatus) error {
	switch typ {
	case models.EntityNote:
		return e.notes.SetSyncStatus(ctx, id, s)
	case models.EntityFolder:
		return e.folders.SetSyncStatus(ctx, id, s)
	case models.EntityAction:
		return e.actions.SetSyncStatus(ctx, id, s)
	}
	return fmt.Errorf("syncengine: unknown entity type %q: %w", typ, apperr.ErrValidation)
}

// acknowledge removes the entry and reflects the server's answer locally.
// The entity is marked synced only once no other entry for it remains.
func (e *Engine) acknowledge(ctx context.Context, entry models.SyncQueueEntry, out outcome) error {
	now := e.now()
	return e.db.Write(ctx, func(tx *sql.Tx) error {
		if out.deleted {
			gone, err := e.softDeletedTx(ctx, tx, entry.EntityType, entry.EntityID)
			if err != nil || !gone {
				// Restored locally since the delete was queued.
				return errors.Join(err, syncqueue.RemoveTx(tx, entry.ID))
			}
			if err := syncqueue.RemoveForTx(tx, entry.EntityType, entry.EntityID); err != nil {
				return err
			}
			return ignoreNotFound(e.hardDeleteTx(ctx, tx, entry.EntityType, entry.EntityID))
		}
		if err := syncqueue.RemoveTx(tx, entry.ID); err != nil {
			return err
		}
		if err := ignoreNotFound(e.markSyncedTx(tx, entry.EntityType, entry.EntityID, out.remoteID, now)); err != nil {
			return err
		}
		left, err := syncqueue.RemainingTx(tx, entry.EntityType, entry.EntityID)
		if err != nil || left == 0 {
			return err
		}
		return ignoreNotFound(e.setStatusTx(tx, entry.EntityType, entry.EntityID, models.SyncStatusPending))
	})
}

func ignoreNotFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

func (e *Engine) markSyncedTx(tx *sql.Tx, typ models.EntityType, id, remoteID string, now time.Time) error {
	switch typ {
	case models.EntityNote:
		return e.notes.MarkSyncedTx(tx, id, remoteID, now)
	case models.EntityFolder:
		return e.folders.MarkSyncedTx(tx, id, remoteID)
	default:
		return e.actions.MarkSyncedTx(tx, id, remoteID)
	}
}

func (e *Engine) setStatusTx(tx *sql.Tx, typ models.EntityType, id string, s models.SyncStatus) error {
	switch typ {
	case models.EntityNote:
		return e.notes.SetSyncStatusTx(tx, id, s)
	case models.EntityFolder:
		return e.folders.SetSyncStatusTx(tx, id, s)
	default:
		return e.actions.SetSyncStatusTx(tx, id, s)
	}
}

func (e *Engine) hardDeleteTx(ctx context.Context, tx *sql.Tx, typ models.EntityType, id string) error {
	switch typ {
	case models.EntityNote:
		return e.notes.DeleteTx(tx, id)
	case models.EntityFolder:
		return e.folders.DeleteTx(ctx, tx, id)
	default:
		return e.actions.DeleteTx(tx, id)
	}
}

// softDeletedTx reports whether the entity is still marked deleted. A row
// that no longer exists counts as deleted.
func (e *Engine) softDeletedTx(ctx context.Context, tx *sql.Tx, typ models.EntityType, id string) (bool, error) {
	var deleted bool
	var err error
	switch typ {
	case models.EntityNote:
		var n models.Note
		n, err = e.notes.GetTx(ctx, tx, id)
		deleted = n.Deleted
	case models.EntityFolder:
		var f models.Folder
		f, err = e.folders.GetTx(ctx, tx, id)
		deleted = f.Deleted
	default:
		var a models.Action
		a, err = e.actions.GetTx(ctx, tx, id)
		deleted = a.Deleted
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return true, nil
	}
	return deleted, err
}

// dispatch sends one entry to the server using its payload snapshot. Ids
// are resolved against the current local rows, since the snapshot may
// predate the entity's first successful push.
func (e *Engine) dispatch(ctx context.Context, entry models.SyncQueueEntry) (outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ItemTimeout)
	defer cancel()

	remoteID, err := e.currentRemoteID(ctx, entry)
	if err != nil {
		return outcome{}, err
	}

	op := entry.Operation
	switch op {
	case models.OpDelete:
		if remoteID == "" {
			// Never reached the server.
			return outcome{deleted: true}, nil
		}
	case models.OpCreate:
		if remoteID != "" {
			op = models.OpUpdate
		}
	case models.OpUpdate:
		if remoteID == "" {
			earlier, err := e.hasEarlierEntry(ctx, entry)
			if err != nil {
				return outcome{}, err
			}
			if earlier {
				return outcome{}, fmt.Errorf("syncengine: %s %s awaits its create: %w",
					entry.EntityType, entry.EntityID, errDependency)
			}
			op = models.OpCreate
		}
	default:
		return outcome{}, fmt.Errorf("syncengine: unknown operation %q: %w", op, apperr.ErrValidation)
	}

	switch entry.EntityType {
	case models.EntityNote:
		return e.dispatchNote(ctx, op, remoteID, entry.Payload)
	case models.EntityFolder:
		return e.dispatchFolder(ctx, op, remoteID, entry.Payload)
	case models.EntityAction:
		return e.dispatchAction(ctx, op, remoteID, entry.Payload)
	}
	return outcome{}, fmt.Errorf("syncengine: unknown entity type %q: %w", entry.EntityType, apperr.ErrValidation)
}

// currentRemoteID prefers the live row's server id and falls back to the
// snapshot's, for rows already removed locally.
func (e *Engine) currentRemoteID(ctx context.Context, entry models.SyncQueueEntry) (string, error) {
	var live string
	var err error
	switch entry.EntityType {
	case models.EntityNote:
		var n models.Note
		n, err = e.notes.Get(ctx, entry.EntityID)
		live = n.RemoteID
	case models.EntityFolder:
		var f models.Folder
		f, err = e.folders.Get(ctx, entry.EntityID)
		live = f.RemoteID
	case models.EntityAction:
		var a models.Action
		a, err = e.actions.Get(ctx, entry.EntityID)
		live = a.RemoteID
	}
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	if live != "" {
		return live, nil
	}
	var snap struct {
		RemoteID string `json:"remote_id"`
	}
	_ = json.Unmarshal(entry.Payload, &snap)
	return snap.RemoteID, nil
}

func (e *Engine) hasEarlierEntry(ctx context.Context, entry models.SyncQueueEntry) (bool, error) {
	all, err := e.queue.PendingFor(ctx, entry.EntityType, entry.EntityID)
	if err != nil {
		return false, err
	}
	for _, other := range all {
		if other.ID != entry.ID && (other.CreatedAt.Before(entry.CreatedAt) ||
			(other.CreatedAt.Equal(entry.CreatedAt) && other.ID < entry.ID)) {
			return true, nil
		}
	}
	return false, nil
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("syncengine: decode payload: %w: %w", apperr.ErrValidation, err)
	}
	return v, nil
}

func (e *Engine) dispatchNote(ctx context.Context, op models.Operation, remoteID string, payload json.RawMessage) (outcome, error) {
	if op == models.OpDelete {
		return outcome{deleted: true}, e.remote.DeleteNote(ctx, remoteID)
	}
	snap, err := decode[models.Note](payload)
	if err != nil {
		return outcome{}, err
	}
	wire, err := e.noteToWire(ctx, snap)
	if err != nil {
		return outcome{}, err
	}
	var got remote.Note
	if op == models.OpCreate {
		got, err = e.remote.CreateNote(ctx, wire)
	} else {
		got, err = e.remote.UpdateNote(ctx, remoteID, wire)
	}
	if err != nil {
		return outcome{}, err
	}
	return outcome{remoteID: firstNonEmpty(got.ID, remoteID)}, nil
}

func (e *Engine) dispatchFolder(ctx context.Context, op models.Operation, remoteID string, payload json.RawMessage) (outcome, error) {
	if op == models.OpDelete {
		return outcome{deleted: true}, e.remote.DeleteFolder(ctx, remoteID)
	}
	snap, err := decode[models.Folder](payload)
	if err != nil {
		return outcome{}, err
	}
	wire, err := e.folderToWire(ctx, snap)
	if err != nil {
		return outcome{}, err
	}
	var got remote.Folder
	if op == models.OpCreate {
		got, err = e.remote.CreateFolder(ctx, wire)
	} else {
		got, err = e.remote.UpdateFolder(ctx, remoteID, wire)
	}
	if err != nil {
		return outcome{}, err
	}
	return outcome{remoteID: firstNonEmpty(got.ID, remoteID)}, nil
}

func (e *Engine) dispatchAction(ctx context.Context, op models.Operation, remoteID string, payload json.RawMessage) (outcome, error) {
	if op == models.OpDelete {
		return outcome{deleted: true}, e.remote.DeleteAction(ctx, remoteID)
	}
	snap, err := decode[models.Action](payload)
	if err != nil {
		return outcome{}, err
	}
	wire, err := e.actionToWire(ctx, snap)
	if err != nil {
		return outcome{}, err
	}
	var got remote.Action
	if op == models.OpCreate {
		got, err = e.remote.CreateAction(ctx, wire)
	} else {
		got, err = e.remote.UpdateAction(ctx, remoteID, wire)
	}
	if err != nil {
		return outcome{}, err
	}
	return outcome{remoteID: firstNonEmpty(got.ID, remoteID)}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
