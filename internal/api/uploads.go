package api

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/starford/glide/internal/audio"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/storage"
)

const maxUploadBytes = 200 << 20 // 200 MB

// AudioHandler accepts recordings and manages their uploads.
type AudioHandler struct {
	uploads *audio.Manager
	files   storage.Provider
}

// NewAudioHandler creates an AudioHandler.
func NewAudioHandler(uploads *audio.Manager, files storage.Provider) *AudioHandler {
	return &AudioHandler{uploads: uploads, files: files}
}

// Upload handles POST /notes/{id}/audio (multipart/form-data, field "file").
// The recording is stored permanently and queued for transcription.
func (h *AudioHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	if !storage.IsAudio(header.Filename) {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported audio format"))
		return
	}

	af, err := h.files.Save(file, filepath.Ext(header.Filename))
	if err != nil {
		writeError(w, "store recording", err)
		return
	}
	u, err := h.uploads.Queue(r.Context(), chi.URLParam(r, "id"), af.Path)
	if err != nil {
		writeError(w, "queue upload", err)
		return
	}
	writeJSON(w, http.StatusAccepted, u)
}

// List handles GET /uploads?status=.
func (h *AudioHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.uploads.List(r.Context(), models.UploadStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, "list uploads", err)
		return
	}
	writeJSON(w, http.StatusOK, UploadListResponse{Uploads: items})
}

// Retry handles POST /uploads/retry.
func (h *AudioHandler) Retry(w http.ResponseWriter, r *http.Request) {
	n, err := h.uploads.RetryFailed(r.Context())
	if err != nil {
		writeError(w, "retry uploads", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// Cleanup handles POST /uploads/cleanup.
func (h *AudioHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.uploads.CleanupCompleted(r.Context())
	if err != nil {
		writeError(w, "cleanup uploads", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// Cancel handles DELETE /uploads/{id}?delete_file=true.
func (h *AudioHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	deleteFile := false
	if b := queryBool(r, "delete_file"); b != nil {
		deleteFile = *b
	}
	if err := h.uploads.Cancel(r.Context(), chi.URLParam(r, "id"), deleteFile); err != nil {
		writeError(w, "cancel upload", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
