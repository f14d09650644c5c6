package noteservice

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/repo"
	"github.com/starford/glide/internal/syncqueue"
)

// ActionInput is the payload of a new action.
type ActionInput struct {
	NoteID        string            `json:"note_id"`
	Type          models.ActionType `json:"action_type"`
	Priority      models.Priority   `json:"priority"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	ScheduledDate *time.Time        `json:"scheduled_date"`
	Location      string            `json:"location"`
	Attendees     []string          `json:"attendees"`
	EmailTo       string            `json:"email_to"`
	EmailSubject  string            `json:"email_subject"`
	EmailBody     string            `json:"email_body"`
	DueDate       *time.Time        `json:"due_date"`
}

// Validate checks the input.
func (in ActionInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.NoteID, validation.Required),
		validation.Field(&in.Type, validation.Required, validation.In(
			models.ActionCalendar, models.ActionEmail, models.ActionReminder, models.ActionNextStep)),
		validation.Field(&in.Priority, validation.In(
			models.PriorityLow, models.PriorityMedium, models.PriorityHigh)),
		validation.Field(&in.Title, validation.Required, validation.Length(1, MaxTitleLen)),
		validation.Field(&in.ScheduledDate, validation.Required.When(in.Type == models.ActionCalendar)),
		validation.Field(&in.EmailTo, validation.Required.When(in.Type == models.ActionEmail)),
	)
}

// ListActions returns actions matching f.
func (s *Service) ListActions(ctx context.Context, f repo.ActionFilter) ([]models.Action, error) {
	return s.actions.List(ctx, f)
}

// GetAction returns one action.
func (s *Service) GetAction(ctx context.Context, id string) (models.Action, error) {
	return s.actions.Get(ctx, id)
}

// CreateAction adds an action to a live note.
func (s *Service) CreateAction(ctx context.Context, in ActionInput) (models.Action, error) {
	if err := invalid("create action", in.Validate()); err != nil {
		return models.Action{}, err
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	a := models.Action{
		ID:            newID(),
		NoteID:        in.NoteID,
		Type:          in.Type,
		Status:        models.ActionPending,
		Priority:      in.Priority,
		Title:         in.Title,
		Description:   in.Description,
		ScheduledDate: in.ScheduledDate,
		Location:      in.Location,
		Attendees:     in.Attendees,
		EmailTo:       in.EmailTo,
		EmailSubject:  in.EmailSubject,
		EmailBody:     in.EmailBody,
		DueDate:       in.DueDate,
	}
	err := s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		n, err := s.notes.GetTx(ctx, tx, a.NoteID)
		if err != nil {
			return err
		}
		if n.Deleted {
			return fmt.Errorf("noteservice: note %s: %w", n.ID, apperr.ErrNotFound)
		}
		a.CreatedAt, a.UpdatedAt = now, now
		a.SyncStatus = models.SyncStatusPending
		if err := s.actions.UpsertTx(tx, a); err != nil {
			return err
		}
		return enqueue(models.OpCreate, models.EntityAction, a.ID, a)
	})
	if err != nil {
		return models.Action{}, err
	}
	return s.actions.Get(ctx, a.ID)
}

// CompleteAction marks an action completed.
func (s *Service) CompleteAction(ctx context.Context, id string) (models.Action, error) {
	var out models.Action
	err := s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		a, err := s.actions.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if a.Deleted {
			return fmt.Errorf("noteservice: action %s: %w", id, apperr.ErrNotFound)
		}
		if a, err = s.actions.CompleteTx(ctx, tx, id, now); err != nil {
			return err
		}
		out = a
		return enqueue(models.OpUpdate, models.EntityAction, a.ID, a)
	})
	if err != nil {
		return models.Action{}, err
	}
	return out, nil
}

// DeleteAction removes an action, queueing the server delete when the
// server knows it.
func (s *Service) DeleteAction(ctx context.Context, id string) error {
	return s.commit(ctx, func(tx *sql.Tx, now time.Time, enqueue func(models.Operation, models.EntityType, string, any) error) error {
		a, err := s.actions.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if a.RemoteID == "" {
			if err := syncqueue.RemoveForTx(tx, models.EntityAction, id); err != nil {
				return err
			}
			return s.actions.DeleteTx(tx, id)
		}
		if a.Deleted {
			return nil
		}
		if err := s.actions.SoftDeleteTx(tx, id, now); err != nil {
			return err
		}
		a.Deleted = true
		a.UpdatedAt = now
		return enqueue(models.OpDelete, models.EntityAction, id, a)
	})
}
