// Package models defines the domain types for Glide.
package models

import "time"

// SyncStatus tracks an entity's reconciliation state with the server.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusError    SyncStatus = "error"
)

// Note is a voice or text note. ID is the local identifier; RemoteID is
// set once the server has acknowledged the note.
type Note struct {
	ID           string     `json:"id"`
	RemoteID     string     `json:"remote_id,omitempty"`
	Title        string     `json:"title"`
	Content      string     `json:"transcript"`
	Summary      string     `json:"summary,omitempty"`
	Duration     int        `json:"duration"`
	FolderID     string     `json:"folder_id,omitempty"`
	Tags         []string   `json:"tags"`
	Pinned       bool       `json:"is_pinned"`
	Archived     bool       `json:"is_archived"`
	Deleted      bool       `json:"is_deleted"`
	AudioPath    string     `json:"audio_path,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	SyncStatus   SyncStatus `json:"sync_status"`
}

// Touch stamps UpdatedAt and marks the note as awaiting sync.
func (n *Note) Touch(now time.Time) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	n.SyncStatus = SyncStatusPending
}
