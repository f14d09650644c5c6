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
)

// errDependency marks an entry whose referenced folder or note has no
// server id yet. It is retryable: the dependency is usually pushed in the
// same or the next cycle.
var errDependency = fmt.Errorf("dependency not yet synced: %w", apperr.ErrConnectivity)

func jsonRaw(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("syncengine: encode snapshot: %w", err)
	}
	return b, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}

// remoteFolderID resolves a local folder id to the server's id.
func (e *Engine) remoteFolderID(ctx context.Context, localID string) (*string, error) {
	if localID == "" {
		return nil, nil
	}
	f, err := e.folders.Get(ctx, localID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if f.RemoteID == "" {
		return nil, fmt.Errorf("syncengine: folder %s: %w", localID, errDependency)
	}
	return strPtr(f.RemoteID), nil
}

// localFolderID resolves a server folder id to the local id. Unknown ids
// map to "".
func (e *Engine) localFolderID(ctx context.Context, tx *sql.Tx, remoteID *string) (string, error) {
	if remoteID == nil || *remoteID == "" {
		return "", nil
	}
	f, err := e.folders.GetByRemoteIDTx(ctx, tx, *remoteID)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return f.ID, nil
}

func (e *Engine) noteToWire(ctx context.Context, n models.Note) (remote.Note, error) {
	folderID, err := e.remoteFolderID(ctx, n.FolderID)
	if err != nil {
		return remote.Note{}, err
	}
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return remote.Note{
		Title:      n.Title,
		Transcript: n.Content,
		Summary:    n.Summary,
		Duration:   n.Duration,
		FolderID:   folderID,
		Tags:       tags,
		IsPinned:   n.Pinned,
		IsArchived: n.Archived,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}, nil
}

// noteFromWire merges w over base (the local counterpart, or zero for a new
// row). Local-only fields survive.
func (e *Engine) noteFromWire(ctx context.Context, tx *sql.Tx, w remote.Note, base models.Note, now time.Time) (models.Note, error) {
	folderID, err := e.localFolderID(ctx, tx, w.FolderID)
	if err != nil {
		return models.Note{}, err
	}
	n := base
	if n.ID == "" {
		n.ID = w.ID
	}
	n.RemoteID = w.ID
	n.Title = w.Title
	n.Content = w.Transcript
	n.Summary = w.Summary
	n.Duration = w.Duration
	n.FolderID = folderID
	n.Tags = w.Tags
	if n.Tags == nil {
		n.Tags = []string{}
	}
	n.Pinned = w.IsPinned
	n.Archived = w.IsArchived
	n.Deleted = false
	n.CreatedAt = orNow(w.CreatedAt, orNow(base.CreatedAt, now))
	n.UpdatedAt = orNow(w.UpdatedAt, now)
	n.LastSyncedAt = &now
	n.SyncStatus = models.SyncStatusSynced
	return n, nil
}

func (e *Engine) folderToWire(ctx context.Context, f models.Folder) (remote.Folder, error) {
	parent, err := e.remoteFolderID(ctx, f.ParentID)
	if err != nil {
		return remote.Folder{}, err
	}
	return remote.Folder{
		Name:      f.Name,
		Icon:      f.Icon,
		Color:     f.Color,
		ParentID:  parent,
		SortOrder: f.SortOrder,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}, nil
}

func (e *Engine) folderFromWire(ctx context.Context, tx *sql.Tx, w remote.Folder, base models.Folder, now time.Time) (models.Folder, error) {
	parent, err := e.localFolderID(ctx, tx, w.ParentID)
	if err != nil {
		return models.Folder{}, err
	}
	f := base
	if f.ID == "" {
		f.ID = w.ID
	}
	f.RemoteID = w.ID
	f.Name = w.Name
	f.Icon = w.Icon
	f.Color = w.Color
	f.ParentID = parent
	f.SortOrder = w.SortOrder
	f.IsSystem = w.IsSystem
	f.Deleted = false
	f.CreatedAt = orNow(w.CreatedAt, orNow(base.CreatedAt, now))
	f.UpdatedAt = orNow(w.UpdatedAt, now)
	f.SyncStatus = models.SyncStatusSynced
	return f, nil
}

func (e *Engine) actionToWire(ctx context.Context, a models.Action) (remote.Action, error) {
	n, err := e.notes.Get(ctx, a.NoteID)
	if err != nil {
		return remote.Action{}, err
	}
	if n.RemoteID == "" {
		return remote.Action{}, fmt.Errorf("syncengine: note %s: %w", a.NoteID, errDependency)
	}
	return remote.Action{
		NoteID:           n.RemoteID,
		ActionType:       string(a.Type),
		Status:           string(a.Status),
		Priority:         string(a.Priority),
		Title:            a.Title,
		Description:      a.Description,
		ScheduledDate:    a.ScheduledDate,
		ScheduledEndDate: a.ScheduledEndDate,
		Location:         a.Location,
		Attendees:        a.Attendees,
		EmailTo:          a.EmailTo,
		EmailSubject:     a.EmailSubject,
		EmailBody:        a.EmailBody,
		DueDate:          a.DueDate,
		ExternalID:       a.ExternalID,
		ExternalService:  a.ExternalService,
		ExternalURL:      a.ExternalURL,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
		ExecutedAt:       a.ExecutedAt,
	}, nil
}

// actionFromWire returns ErrNotFound when the owning note is unknown
// locally.
func (e *Engine) actionFromWire(ctx context.Context, tx *sql.Tx, w remote.Action, base models.Action, now time.Time) (models.Action, error) {
	n, err := e.notes.GetByRemoteIDTx(ctx, tx, w.NoteID)
	if err != nil {
		return models.Action{}, err
	}
	a := base
	if a.ID == "" {
		a.ID = w.ID
	}
	a.RemoteID = w.ID
	a.NoteID = n.ID
	a.Type = models.ActionType(w.ActionType)
	a.Status = models.ActionStatus(w.Status)
	a.Priority = models.Priority(w.Priority)
	a.Title = w.Title
	a.Description = w.Description
	a.ScheduledDate = w.ScheduledDate
	a.ScheduledEndDate = w.ScheduledEndDate
	a.Location = w.Location
	a.Attendees = w.Attendees
	a.EmailTo, a.EmailSubject, a.EmailBody = w.EmailTo, w.EmailSubject, w.EmailBody
	a.DueDate = w.DueDate
	a.ExternalID, a.ExternalService, a.ExternalURL = w.ExternalID, w.ExternalService, w.ExternalURL
	a.Deleted = false
	a.CreatedAt = orNow(w.CreatedAt, orNow(base.CreatedAt, now))
	a.UpdatedAt = orNow(w.UpdatedAt, now)
	a.ExecutedAt = w.ExecutedAt
	a.SyncStatus = models.SyncStatusSynced
	return a, nil
}
