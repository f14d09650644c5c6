package noteservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/syncqueue"
)

// AllNotesFolder is the name of the system folder every store carries.
const AllNotesFolder = "All Notes"

// DefaultFolders are created for a store with no folders of its own.
var DefaultFolders = []FolderInput{
	{Name: "Work", Icon: "briefcase", Color: "#3B82F6"},
	{Name: "Personal", Icon: "person", Color: "#10B981"},
	{Name: "Ideas", Icon: "lightbulb", Color: "#F59E0B"},
}

// FolderInput is the payload of a new folder.
type FolderInput struct {
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	ParentID  string `json:"parent_id"`
	SortOrder int    `json:"sort_order"`
}

// Validate checks the input.
func (in FolderInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Color, validation.Length(0, 32)),
	)
}

// FolderPatch changes the non-nil fields of a folder. An empty ParentID
// moves the folder to the root.
type FolderPatch struct {
	Name      *string `json:"name"`
	Icon      *string `json:"icon"`
	Color     *string `json:"color"`
	ParentID  *string `json:"parent_id"`
	SortOrder *int    `json:"sort_order"`
}

// Validate checks the patch.
func (p FolderPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty, validation.Length(1, 100)),
	)
}

// GetFolder returns one folder.
func (s *Service) GetFolder(ctx context.Context, id string) (models.Folder, error) {
	return s.folders.Get(ctx, id)
}

// FolderTree returns the live folders as nested nodes.
func (s *Service) FolderTree(ctx context.Context) ([]*models.FolderNode, error) {
	return s.folders.Tree(ctx)
}

// FolderPath returns the ancestors of id from the root down to id itself.
func (s *Service) FolderPath(ctx context.Context, id string) ([]models.Folder, error) {
	return s.folders.Path(ctx, id)
}

// CreateFolder stores a new folder after checking depth, cycles and
// sibling name uniqueness.
func (s *Service) CreateFolder(ctx context.Context, in FolderInput) (models.Folder, error) {
	if err := invalid("create folder", in.Validate()); err != nil {
		return models.Folder{}, err
	}
	f := models.Folder{
		ID:        newID(),
		Name:      in.Name,
		Icon:      in.Icon,
		Color:     in.Color,
		ParentID:  in.ParentID,
		SortOrder: in.SortOrder,
	}
	err := s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		if err := s.checkFolder(ctx, tx, f.ParentID); err != nil {
			return err
		}
		if err := s.folders.ValidatePlacementTx(ctx, tx, f); err != nil {
			return err
		}
		f.CreatedAt, f.UpdatedAt = now, now
		f.SyncStatus = models.SyncStatusPending
		if err := s.folders.UpsertTx(tx, f); err != nil {
			return err
		}
		return enqueue(models.OpCreate, models.EntityFolder, f.ID, f)
	})
	if err != nil {
		return models.Folder{}, err
	}
	return s.folders.Get(ctx, f.ID)
}

// UpdateFolder applies p to a live, non-system folder.
func (s *Service) UpdateFolder(ctx context.Context, id string, p FolderPatch) (models.Folder, error) {
	if err := invalid("update folder", p.Validate()); err != nil {
		return models.Folder{}, err
	}
	err := s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		f, err := s.liveFolder(ctx, tx, id)
		if err != nil {
			return err
		}
		placed := false
		if p.Name != nil && *p.Name != f.Name {
			f.Name, placed = *p.Name, true
		}
		if p.ParentID != nil && *p.ParentID != f.ParentID {
			f.ParentID, placed = *p.ParentID, true
		}
		if p.Icon != nil {
			f.Icon = *p.Icon
		}
		if p.Color != nil {
			f.Color = *p.Color
		}
		if p.SortOrder != nil {
			f.SortOrder = *p.SortOrder
		}
		if placed {
			if err := s.checkFolder(ctx, tx, f.ParentID); err != nil {
				return err
			}
			if err := s.folders.ValidatePlacementTx(ctx, tx, f); err != nil {
				return err
			}
		}
		f.UpdatedAt = now
		f.SyncStatus = models.SyncStatusPending
		if err := s.folders.UpsertTx(tx, f); err != nil {
			return err
		}
		return enqueue(models.OpUpdate, models.EntityFolder, f.ID, f)
	})
	if err != nil {
		return models.Folder{}, err
	}
	return s.folders.Get(ctx, id)
}

// DeleteFolder removes a folder. Its notes move to moveTo, or become
// unfiled when moveTo is empty, and its children move up to its parent.
func (s *Service) DeleteFolder(ctx context.Context, id, moveTo string) error {
	return s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		f, err := s.liveFolder(ctx, tx, id)
		if err != nil {
			return err
		}
		if moveTo == id {
			return fmt.Errorf("noteservice: move notes into the deleted folder: %w", apperr.ErrValidation)
		}
		if err := s.checkFolder(ctx, tx, moveTo); err != nil {
			return err
		}

		moved, err := s.notes.MoveFolderTx(ctx, tx, id, moveTo, now)
		if err != nil {
			return err
		}
		for _, n := range moved {
			if err := enqueue(models.OpUpdate, models.EntityNote, n.ID, n); err != nil {
				return err
			}
		}

		children, err := s.folders.ChildrenTx(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, c := range children {
			c.ParentID = f.ParentID
			if err := s.folders.ValidatePlacementTx(ctx, tx, c); err != nil {
				return fmt.Errorf("noteservice: move folder %q up: %w", c.Name, err)
			}
			c.UpdatedAt = now
			c.SyncStatus = models.SyncStatusPending
			if err := s.folders.UpsertTx(tx, c); err != nil {
				return err
			}
			if err := enqueue(models.OpUpdate, models.EntityFolder, c.ID, c); err != nil {
				return err
			}
		}

		if f.RemoteID == "" {
			if err := syncqueue.RemoveForTx(tx, models.EntityFolder, id); err != nil {
				return err
			}
			return s.folders.DeleteTx(ctx, tx, id)
		}
		if err := s.folders.SoftDeleteTx(tx, id, now); err != nil {
			return err
		}
		f.Deleted = true
		f.UpdatedAt = now
		return enqueue(models.OpDelete, models.EntityFolder, id, f)
	})
}

// liveFolder reads a folder that may be changed by the user.
func (s *Service) liveFolder(ctx context.Context, tx *sql.Tx, id string) (models.Folder, error) {
	f, err := s.folders.GetTx(ctx, tx, id)
	if err != nil {
		return models.Folder{}, err
	}
	if f.Deleted {
		return models.Folder{}, fmt.Errorf("noteservice: folder %s: %w", id, apperr.ErrNotFound)
	}
	if f.IsSystem {
		return models.Folder{}, fmt.Errorf("noteservice: folder %q: %w", f.Name, apperr.ErrSystemFolder)
	}
	return f, nil
}

// SetupDefaultFolders makes sure the system folder exists and seeds the
// default folders into a store that has none. It is safe to call on every
// start. System folders are local and never queued.
func (s *Service) SetupDefaultFolders(ctx context.Context) error {
	return s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		var total, system int
		err := tx.QueryRowContext(ctx,
			`SELECT count(*), COALESCE(sum(is_system), 0) FROM folders WHERE is_deleted = 0`).Scan(&total, &system)
		if err != nil {
			return apperr.Storage("noteservice: count folders", err)
		}
		if system == 0 {
			all := models.Folder{
				ID: newID(), Name: AllNotesFolder, Icon: "tray", SortOrder: -1,
				IsSystem: true, CreatedAt: now, UpdatedAt: now, SyncStatus: models.SyncStatusSynced,
			}
			if err := s.folders.UpsertTx(tx, all); err != nil {
				return err
			}
		}
		if total-system > 0 {
			return nil
		}
		for i, in := range DefaultFolders {
			f := models.Folder{
				ID: newID(), Name: in.Name, Icon: in.Icon, Color: in.Color, SortOrder: i,
				CreatedAt: now, UpdatedAt: now, SyncStatus: models.SyncStatusPending,
			}
			err := s.folders.ValidatePlacementTx(ctx, tx, f)
			if errors.Is(err, apperr.ErrAlreadyExists) {
				continue
			}
			if err != nil {
				return err
			}
			if err := s.folders.UpsertTx(tx, f); err != nil {
				return err
			}
			if err := enqueue(models.OpCreate, models.EntityFolder, f.ID, f); err != nil {
				return err
			}
		}
		return nil
	})
}
