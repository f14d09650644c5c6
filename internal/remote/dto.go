package remote

import "time"

// Wire types use server ids throughout: ID, FolderID, ParentID, and NoteID
// all refer to the server's identifiers, never local ones.

// Note is the server representation of a note.
type Note struct {
	ID         string    `json:"id,omitempty"`
	Title      string    `json:"title"`
	Transcript string    `json:"transcript"`
	Summary    string    `json:"summary,omitempty"`
	Duration   int       `json:"duration"`
	FolderID   *string   `json:"folder_id"`
	Tags       []string  `json:"tags"`
	IsPinned   bool      `json:"is_pinned"`
	IsArchived bool      `json:"is_archived"`
	IsDeleted  bool      `json:"is_deleted,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// NotePage is one page of GET /notes.
type NotePage struct {
	Items   []Note `json:"items"`
	Total   int    `json:"total"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Pages   int    `json:"pages"`
}

// Folder is the server representation of a folder.
type Folder struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	Color     string    `json:"color,omitempty"`
	ParentID  *string   `json:"parent_id"`
	SortOrder int       `json:"sort_order"`
	IsSystem  bool      `json:"is_system,omitempty"`
	IsDeleted bool      `json:"is_deleted,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Action is the server representation of an action.
type Action struct {
	ID               string     `json:"id,omitempty"`
	NoteID           string     `json:"note_id"`
	ActionType       string     `json:"action_type"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	ScheduledDate    *time.Time `json:"scheduled_date,omitzero"`
	ScheduledEndDate *time.Time `json:"scheduled_end_date,omitzero"`
	Location         string     `json:"location,omitempty"`
	Attendees        []string   `json:"attendees,omitempty"`
	EmailTo          string     `json:"email_to,omitempty"`
	EmailSubject     string     `json:"email_subject,omitempty"`
	EmailBody        string     `json:"email_body,omitempty"`
	DueDate          *time.Time `json:"due_date,omitzero"`
	ExternalID       string     `json:"external_id,omitempty"`
	ExternalService  string     `json:"external_service,omitempty"`
	ExternalURL      string     `json:"external_url,omitempty"`
	IsDeleted        bool       `json:"is_deleted,omitempty"`
	CreatedAt        time.Time  `json:"created_at,omitzero"`
	UpdatedAt        time.Time  `json:"updated_at,omitzero"`
	ExecutedAt       *time.Time `json:"executed_at,omitzero"`
}

// VoiceResult is the response of the voice processing endpoints.
type VoiceResult struct {
	NoteID     string       `json:"note_id"`
	Title      string       `json:"title"`
	Transcript string       `json:"transcript"`
	Summary    string       `json:"summary"`
	Duration   int          `json:"duration"`
	FolderID   *string      `json:"folder_id"`
	FolderName string       `json:"folder_name,omitempty"`
	Tags       []string     `json:"tags"`
	Actions    VoiceActions `json:"actions"`
}

// VoiceActions are the follow-ups extracted from a recording.
type VoiceActions struct {
	Calendar  []CalendarItem `json:"calendar"`
	Email     []EmailItem    `json:"email"`
	Reminders []ReminderItem `json:"reminders"`
	NextSteps []string       `json:"next_steps"`
}

// CalendarItem is an extracted event. Date is YYYY-MM-DD, Time is HH:MM.
type CalendarItem struct {
	Title     string   `json:"title"`
	Date      string   `json:"date"`
	Time      string   `json:"time,omitempty"`
	Location  string   `json:"location,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
}

// EmailItem is an extracted email draft.
type EmailItem struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ReminderItem is an extracted reminder.
type ReminderItem struct {
	Title    string `json:"title"`
	DueDate  string `json:"due_date"`
	DueTime  string `json:"due_time,omitempty"`
	Priority string `json:"priority,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type errorBody struct {
	Detail any    `json:"detail"`
	Error  string `json:"error"`
}
