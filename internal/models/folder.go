package models

import "time"

// MaxFolderDepth is the deepest allowed nesting level (root is 0).
const MaxFolderDepth = 2

// Folder groups notes. Folders nest at most three levels deep.
type Folder struct {
	ID         string     `json:"id"`
	RemoteID   string     `json:"remote_id,omitempty"`
	Name       string     `json:"name"`
	Icon       string     `json:"icon,omitempty"`
	Color      string     `json:"color,omitempty"`
	ParentID   string     `json:"parent_id,omitempty"`
	SortOrder  int        `json:"sort_order"`
	IsSystem   bool       `json:"is_system"`
	Deleted    bool       `json:"is_deleted"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

// FolderNode is a folder with its materialized children.
type FolderNode struct {
	Folder
	Children []*FolderNode `json:"children"`
}
