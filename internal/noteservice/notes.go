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
	"github.com/starford/glide/internal/parser"
	"github.com/starford/glide/internal/repo"
	"github.com/starford/glide/internal/syncqueue"
)

// MaxTitleLen bounds note titles.
const MaxTitleLen = 500

// NoteInput is the payload of a new note.
type NoteInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"transcript"`
	Summary  string   `json:"summary"`
	FolderID string   `json:"folder_id"`
	Tags     []string `json:"tags"`
	Pinned   bool     `json:"is_pinned"`
}

// Validate checks the input.
func (in NoteInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Length(0, MaxTitleLen),
			validation.Required.When(in.Content == "").Error("title or transcript is required")),
		validation.Field(&in.Tags, validation.Each(validation.Length(1, 64))),
	)
}

// NotePatch changes the non-nil fields of a note. An empty FolderID
// unfiles the note.
type NotePatch struct {
	Title    *string   `json:"title"`
	Content  *string   `json:"transcript"`
	Summary  *string   `json:"summary"`
	FolderID *string   `json:"folder_id"`
	Tags     *[]string `json:"tags"`
	Pinned   *bool     `json:"is_pinned"`
	Archived *bool     `json:"is_archived"`
}

// Validate checks the patch.
func (p NotePatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.NilOrNotEmpty, validation.Length(1, MaxTitleLen)),
	)
}

// GetNote returns one note, deleted or not.
func (s *Service) GetNote(ctx context.Context, id string) (models.Note, error) {
	return s.notes.Get(ctx, id)
}

// ListNotes returns a page of notes and the total matching f.
func (s *Service) ListNotes(ctx context.Context, f repo.NoteFilter) ([]models.Note, int, error) {
	items, err := s.notes.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.notes.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SearchNotes runs a full-text search over live notes.
func (s *Service) SearchNotes(ctx context.Context, query string, limit int) ([]models.Note, error) {
	return s.notes.Search(ctx, query, limit)
}

// checkFolder verifies folderID may hold notes or child folders. System
// folders are local views and hold neither.
func (s *Service) checkFolder(ctx context.Context, tx *sql.Tx, folderID string) error {
	if folderID == "" {
		return nil
	}
	f, err := s.folders.GetTx(ctx, tx, folderID)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("noteservice: folder %s: %w", folderID, apperr.ErrValidation)
	}
	if err != nil {
		return err
	}
	if f.Deleted {
		return fmt.Errorf("noteservice: folder %s is deleted: %w", folderID, apperr.ErrValidation)
	}
	if f.IsSystem {
		return fmt.Errorf("noteservice: folder %q: %w", f.Name, apperr.ErrSystemFolder)
	}
	return nil
}

// CreateNote stores a new note. A missing title is derived from the
// content, and #tags in the content are merged into the tags.
func (s *Service) CreateNote(ctx context.Context, in NoteInput) (models.Note, error) {
	if err := invalid("create note", in.Validate()); err != nil {
		return models.Note{}, err
	}
	parsed := parser.Parse(in.Content)
	n := models.Note{
		ID:       newID(),
		Title:    in.Title,
		Content:  in.Content,
		Summary:  in.Summary,
		FolderID: in.FolderID,
		Tags:     parser.MergeTags(in.Tags, parsed.Tags),
		Pinned:   in.Pinned || parsed.Pinned,
	}
	if n.Title == "" {
		n.Title = parsed.Title
	}
	err := s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		if err := s.checkFolder(ctx, tx, n.FolderID); err != nil {
			return err
		}
		n.Touch(now)
		if err := s.notes.UpsertTx(tx, n); err != nil {
			return err
		}
		return enqueue(models.OpCreate, models.EntityNote, n.ID, n)
	})
	if err != nil {
		return models.Note{}, err
	}
	return s.notes.Get(ctx, n.ID)
}

// UpdateNote applies p to a live note.
func (s *Service) UpdateNote(ctx context.Context, id string, p NotePatch) (models.Note, error) {
	if err := invalid("update note", p.Validate()); err != nil {
		return models.Note{}, err
	}
	err := s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		n, err := s.notes.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if n.Deleted {
			return fmt.Errorf("noteservice: note %s: %w", id, apperr.ErrNotFound)
		}
		if p.Title != nil {
			n.Title = *p.Title
		}
		if p.Content != nil {
			n.Content = *p.Content
			n.Tags = parser.MergeTags(n.Tags, parser.Parse(n.Content).Tags)
		}
		if p.Summary != nil {
			n.Summary = *p.Summary
		}
		if p.Tags != nil {
			n.Tags = parser.MergeTags(*p.Tags, nil)
		}
		if p.FolderID != nil {
			if err := s.checkFolder(ctx, tx, *p.FolderID); err != nil {
				return err
			}
			n.FolderID = *p.FolderID
		}
		if p.Pinned != nil {
			n.Pinned = *p.Pinned
		}
		if p.Archived != nil {
			n.Archived = *p.Archived
		}
		n.Touch(now)
		if err := s.notes.UpsertTx(tx, n); err != nil {
			return err
		}
		return enqueue(models.OpUpdate, models.EntityNote, n.ID, n)
	})
	if err != nil {
		return models.Note{}, err
	}
	return s.notes.Get(ctx, id)
}

// DeleteNote soft-deletes a note and queues the server delete. A note the
// server never saw is removed outright together with its queued entries.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	return s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		n, err := s.notes.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if n.RemoteID == "" {
			acts, err := s.actions.ListByNoteTx(ctx, tx, id)
			if err != nil {
				return err
			}
			for _, a := range acts {
				if err := syncqueue.RemoveForTx(tx, models.EntityAction, a.ID); err != nil {
					return err
				}
			}
			if err := syncqueue.RemoveForTx(tx, models.EntityNote, id); err != nil {
				return err
			}
			return s.notes.DeleteTx(tx, id)
		}
		if n.Deleted {
			return nil
		}
		if err := s.notes.SoftDeleteTx(tx, id, now); err != nil {
			return err
		}
		n.Deleted = true
		n.Touch(now)
		return enqueue(models.OpDelete, models.EntityNote, id, n)
	})
}

// RestoreNote undoes a soft delete whose server delete has not been
// acknowledged yet.
func (s *Service) RestoreNote(ctx context.Context, id string) (models.Note, error) {
	err := s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		n, err := s.notes.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !n.Deleted {
			return nil
		}
		if _, err := syncqueue.RemoveOpTx(tx, models.EntityNote, id, models.OpDelete); err != nil {
			return err
		}
		if err := s.notes.RestoreTx(ctx, tx, id, now); err != nil {
			return err
		}
		n, err = s.notes.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return enqueue(models.OpUpdate, models.EntityNote, id, n)
	})
	if err != nil {
		return models.Note{}, err
	}
	return s.notes.Get(ctx, id)
}

// CreateVoiceNote stores a local placeholder for a recording awaiting
// transcription. It is not queued: processing the recording creates the
// server copy and fills in the title, transcript and tags.
func (s *Service) CreateVoiceNote(ctx context.Context, title, audioPath string) (models.Note, error) {
	if title == "" {
		title = "Voice note"
	}
	n := models.Note{
		ID:        newID(),
		Title:     title,
		AudioPath: audioPath,
		Tags:      []string{},
	}
	err := s.db.Write(ctx, func(tx *sql.Tx) error {
		n.Touch(s.now())
		return s.notes.UpsertTx(tx, n)
	})
	if err != nil {
		return models.Note{}, err
	}
	if s.notify != nil {
		s.notify(Change{Entity: models.EntityNote, ID: n.ID, Op: models.OpCreate})
	}
	return n, nil
}
