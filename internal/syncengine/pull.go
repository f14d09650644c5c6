package syncengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/remote"
)

type applied int

const (
	appliedOK applied = iota
	appliedDeferred
	appliedSkipped
)

func (r *Result) count(a applied) {
	switch a {
	case appliedOK:
		r.Pulled++
	case appliedDeferred:
		r.Deferred++
	case appliedSkipped:
		r.Skipped++
	}
}

// pullAll fetches folders, then notes page by page, then actions changed
// since since (everything when zero) and applies them.
func (e *Engine) pullAll(ctx context.Context, since time.Time, res *Result) error {
	now := e.now()

	folders, err := e.listFolders(ctx, since)
	if err != nil {
		return err
	}
	var orphans []remote.Folder
	for _, w := range folders {
		a, unresolved, err := e.applyFolder(ctx, w, now)
		if err != nil {
			return err
		}
		if unresolved {
			orphans = append(orphans, w)
			continue
		}
		res.count(a)
	}
	// Children listed before their parents resolve on the second pass.
	for _, w := range orphans {
		a, unresolved, err := e.applyFolder(ctx, w, now)
		if err != nil {
			return err
		}
		if unresolved {
			e.log.Warn("sync: folder parent unknown", "folder", w.ID, "parent", deref(w.ParentID))
		}
		res.count(a)
	}

	for page := 1; ; page++ {
		p, err := e.listNotes(ctx, page, since)
		if err != nil {
			return err
		}
		for _, w := range p.Items {
			a, err := e.applyNote(ctx, w, now)
			if err != nil {
				return err
			}
			res.count(a)
		}
		if len(p.Items) < e.cfg.PageSize || (p.Pages > 0 && page >= p.Pages) {
			break
		}
	}

	actions, err := e.listActions(ctx, since)
	if err != nil {
		return err
	}
	for _, w := range actions {
		a, err := e.applyAction(ctx, w, now)
		if err != nil {
			return err
		}
		res.count(a)
	}
	return nil
}

func (e *Engine) listFolders(ctx context.Context, since time.Time) ([]remote.Folder, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ItemTimeout)
	defer cancel()
	return e.remote.ListFolders(ctx, since)
}

func (e *Engine) listNotes(ctx context.Context, page int, since time.Time) (remote.NotePage, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ItemTimeout)
	defer cancel()
	return e.remote.ListNotes(ctx, page, e.cfg.PageSize, since)
}

func (e *Engine) listActions(ctx context.Context, since time.Time) ([]remote.Action, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ItemTimeout)
	defer cancel()
	return e.remote.ListActions(ctx, since)
}

// deferTx leaves a locally edited entity alone. An entity already flagged
// error is escalated to conflict so the user can see both sides diverged.
func (e *Engine) deferTx(tx *sql.Tx, typ models.EntityType, id string, status models.SyncStatus) (applied, error) {
	if status == models.SyncStatusError {
		if err := e.setStatusTx(tx, typ, id, models.SyncStatusConflict); err != nil {
			return appliedDeferred, err
		}
	}
	return appliedDeferred, nil
}

func (e *Engine) applyFolder(ctx context.Context, w remote.Folder, now time.Time) (result applied, unresolved bool, err error) {
	err = e.db.Write(ctx, func(tx *sql.Tx) error {
		local, err := e.folders.GetByRemoteIDTx(ctx, tx, w.ID)
		exists := err == nil
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if exists {
			pending, err := e.queue.HasPendingTx(tx, models.EntityFolder, local.ID)
			if err != nil {
				return err
			}
			if pending {
				result, err = e.deferTx(tx, models.EntityFolder, local.ID, local.SyncStatus)
				return err
			}
		}
		if w.IsDeleted {
			if !exists {
				result = appliedSkipped
				return nil
			}
			result = appliedOK
			return e.folders.DeleteTx(ctx, tx, local.ID)
		}
		f, err := e.folderFromWire(ctx, tx, w, local, now)
		if err != nil {
			return err
		}
		unresolved = w.ParentID != nil && *w.ParentID != "" && f.ParentID == ""
		result = appliedOK
		return e.folders.UpsertTx(tx, f)
	})
	return result, unresolved, err
}

func (e *Engine) applyNote(ctx context.Context, w remote.Note, now time.Time) (applied, error) {
	var result applied
	err := e.db.Write(ctx, func(tx *sql.Tx) error {
		local, err := e.notes.GetByRemoteIDTx(ctx, tx, w.ID)
		exists := err == nil
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if exists {
			pending, err := e.queue.HasPendingTx(tx, models.EntityNote, local.ID)
			if err != nil {
				return err
			}
			if pending {
				result, err = e.deferTx(tx, models.EntityNote, local.ID, local.SyncStatus)
				return err
			}
		}
		if w.IsDeleted {
			if !exists {
				result = appliedSkipped
				return nil
			}
			result = appliedOK
			return e.notes.DeleteTx(tx, local.ID)
		}
		n, err := e.noteFromWire(ctx, tx, w, local, now)
		if err != nil {
			return err
		}
		result = appliedOK
		return e.notes.UpsertTx(tx, n)
	})
	return result, err
}

func (e *Engine) applyAction(ctx context.Context, w remote.Action, now time.Time) (applied, error) {
	var result applied
	err := e.db.Write(ctx, func(tx *sql.Tx) error {
		local, err := e.actions.GetByRemoteIDTx(ctx, tx, w.ID)
		exists := err == nil
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if exists {
			pending, err := e.queue.HasPendingTx(tx, models.EntityAction, local.ID)
			if err != nil {
				return err
			}
			if pending {
				result, err = e.deferTx(tx, models.EntityAction, local.ID, local.SyncStatus)
				return err
			}
		}
		if w.IsDeleted {
			if !exists {
				result = appliedSkipped
				return nil
			}
			result = appliedOK
			return e.actions.DeleteTx(tx, local.ID)
		}
		if !exists {
			local, err = e.adoptAction(ctx, tx, w)
			if err != nil {
				return err
			}
		}
		a, err := e.actionFromWire(ctx, tx, w, local, now)
		if errors.Is(err, apperr.ErrNotFound) {
			e.log.Warn("sync: action for unknown note", "action", w.ID, "note", w.NoteID)
			result = appliedSkipped
			return nil
		}
		if err != nil {
			return err
		}
		result = appliedOK
		return e.actions.UpsertTx(tx, a)
	})
	return result, err
}

// adoptAction finds the unlinked local copy of a server action, such as one
// stored from a voice result before the server's id was known. It returns
// the zero Action when there is none.
func (e *Engine) adoptAction(ctx context.Context, tx *sql.Tx, w remote.Action) (models.Action, error) {
	n, err := e.notes.GetByRemoteIDTx(ctx, tx, w.NoteID)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Action{}, nil
	}
	if err != nil {
		return models.Action{}, err
	}
	a, err := e.actions.FindUnlinkedTx(ctx, tx, n.ID, models.ActionType(w.ActionType), w.Title)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Action{}, nil
	}
	if err != nil {
		return models.Action{}, err
	}
	pending, err := e.queue.HasPendingTx(tx, models.EntityAction, a.ID)
	if err != nil || pending {
		return models.Action{}, err
	}
	return a, nil
}
