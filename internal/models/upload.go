package models

import "time"

// UploadStatus is the state of an audio upload.
type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadUploading  UploadStatus = "uploading"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// AudioUpload tracks a local recording awaiting upload and transcription.
type AudioUpload struct {
	ID            string       `json:"id"`
	NoteID        string       `json:"note_id"`
	FilePath      string       `json:"file_path"`
	FileSize      int64        `json:"file_size"`
	Status        UploadStatus `json:"status"`
	Progress      float64      `json:"progress"`
	RemoteURL     string       `json:"remote_url,omitempty"`
	Transcription string       `json:"transcription,omitempty"`
	RetryCount    int          `json:"retry_count"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}
