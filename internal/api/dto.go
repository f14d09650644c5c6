package api

import (
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/syncqueue"
)

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes"`
	Total int           `json:"total" example:"42"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.Note `json:"results"`
}

// FolderTreeResponse wraps the folder hierarchy.
type FolderTreeResponse struct {
	Folders []*models.FolderNode `json:"folders"`
}

// FolderPathResponse lists a folder's ancestors, root first, ending with
// the folder itself.
type FolderPathResponse struct {
	Path []models.Folder `json:"path"`
}

// ActionListResponse wraps action listings.
type ActionListResponse struct {
	Actions []models.Action `json:"actions"`
}

// QueueResponse describes the sync queue.
type QueueResponse struct {
	Stats     syncqueue.Stats         `json:"stats"`
	Pending   []models.SyncQueueEntry `json:"pending"`
	Exhausted []models.SyncQueueEntry `json:"exhausted"`
}

// CountResponse reports how many records an operation touched.
type CountResponse struct {
	Count int `json:"count" example:"3"`
}

// UploadListResponse wraps audio upload listings.
type UploadListResponse struct {
	Uploads []models.AudioUpload `json:"uploads"`
}
