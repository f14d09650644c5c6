package models

import "time"

// ActionType is the kind of follow-up extracted from a note.
type ActionType string

const (
	ActionCalendar ActionType = "calendar"
	ActionEmail    ActionType = "email"
	ActionReminder ActionType = "reminder"
	ActionNextStep ActionType = "next_step"
)

// ActionStatus is the lifecycle of an action.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionCancelled  ActionStatus = "cancelled"
)

// Priority of an action.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Action is a follow-up item owned by a note. Only the payload fields
// matching Type are meaningful.
type Action struct {
	ID          string       `json:"id"`
	RemoteID    string       `json:"remote_id,omitempty"`
	NoteID      string       `json:"note_id"`
	Type        ActionType   `json:"action_type"`
	Status      ActionStatus `json:"status"`
	Priority    Priority     `json:"priority"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`

	// calendar
	ScheduledDate    *time.Time `json:"scheduled_date,omitempty"`
	ScheduledEndDate *time.Time `json:"scheduled_end_date,omitempty"`
	Location         string     `json:"location,omitempty"`
	Attendees        []string   `json:"attendees,omitempty"`

	// email
	EmailTo      string `json:"email_to,omitempty"`
	EmailSubject string `json:"email_subject,omitempty"`
	EmailBody    string `json:"email_body,omitempty"`

	// reminder
	DueDate *time.Time `json:"due_date,omitempty"`

	// set once pushed to a calendar or mail provider
	ExternalID      string `json:"external_id,omitempty"`
	ExternalService string `json:"external_service,omitempty"`
	ExternalURL     string `json:"external_url,omitempty"`

	Deleted bool `json:"is_deleted"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	SyncStatus SyncStatus `json:"sync_status"`
}
