package audio

import (
	"time"

	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/remote"
)

// defaultClock is used for extracted dates that carry no time.
const defaultClock = "09:00"

// parseWhen reads a YYYY-MM-DD date and optional HH:MM time in loc. An
// unparseable date yields nil.
func parseWhen(date, clock string, loc *time.Location) *time.Time {
	if date == "" {
		return nil
	}
	if clock == "" {
		clock = defaultClock
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, date+" "+clock, loc); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", date, loc); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}

func priorityOf(s string) models.Priority {
	switch models.Priority(s) {
	case models.PriorityHigh, models.PriorityLow:
		return models.Priority(s)
	}
	return models.PriorityMedium
}

// extractActions turns the follow-ups of a voice result into actions owned
// by noteID. IDs are left for the caller.
func extractActions(v remote.VoiceActions, noteID string, now time.Time, loc *time.Location) []models.Action {
	base := models.Action{
		NoteID:     noteID,
		Status:     models.ActionPending,
		Priority:   models.PriorityMedium,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: models.SyncStatusSynced,
	}
	var out []models.Action
	for _, c := range v.Calendar {
		a := base
		a.Type = models.ActionCalendar
		a.Title = c.Title
		a.ScheduledDate = parseWhen(c.Date, c.Time, loc)
		a.Location = c.Location
		a.Attendees = c.Attendees
		out = append(out, a)
	}
	for _, e := range v.Email {
		a := base
		a.Type = models.ActionEmail
		a.Title = "Email to " + e.To
		a.EmailTo, a.EmailSubject, a.EmailBody = e.To, e.Subject, e.Body
		out = append(out, a)
	}
	for _, r := range v.Reminders {
		a := base
		a.Type = models.ActionReminder
		a.Title = r.Title
		a.Priority = priorityOf(r.Priority)
		a.DueDate = parseWhen(r.DueDate, r.DueTime, loc)
		out = append(out, a)
	}
	for _, step := range v.NextSteps {
		a := base
		a.Type = models.ActionNextStep
		a.Title = step
		out = append(out, a)
	}
	return out
}
