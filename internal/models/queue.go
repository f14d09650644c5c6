package models

import (
	"encoding/json"
	"time"
)

// Operation is the mutation recorded by a sync queue entry.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EntityType names the table a queue entry refers to.
type EntityType string

const (
	EntityNote   EntityType = "note"
	EntityFolder EntityType = "folder"
	EntityAction EntityType = "action"
)

// SyncQueueEntry is one pending mutation awaiting transmission.
type SyncQueueEntry struct {
	ID         int64           `json:"id"`
	Operation  Operation       `json:"operation"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
}
