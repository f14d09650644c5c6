package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/noteservice"
	"github.com/starford/glide/internal/repo"
)

// Handler holds the note, folder and action route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListNotes handles GET /notes.
//
//	@Summary		List notes, pinned first then newest
//	@Tags			notes
//	@Produce		json
//	@Param			folder_id	query		string	false	"Only notes in this folder"
//	@Param			unfiled		query		bool	false	"Only notes without a folder"
//	@Param			status		query		string	false	"Sync status"	Enums(synced, pending, conflict, error)
//	@Param			pinned		query		bool	false	"Filter by pinned"
//	@Param			archived	query		bool	false	"Filter by archived"
//	@Param			deleted		query		bool	false	"Include soft-deleted notes"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repo.NoteFilter{
		FolderID: q.Get("folder_id"),
		Status:   models.SyncStatus(q.Get("status")),
		Pinned:   queryBool(r, "pinned"),
		Archived: queryBool(r, "archived"),
		Limit:    queryInt(r, "limit"),
		Offset:   queryInt(r, "offset"),
	}
	if b := queryBool(r, "unfiled"); b != nil {
		f.Unfiled = *b
	}
	if b := queryBool(r, "deleted"); b != nil {
		f.IncludeDeleted = *b
	}

	items, total, err := h.svc.ListNotes(r.Context(), f)
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	if n.Deleted && queryBool(r, "deleted") == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// CreateNote handles POST /notes.
//
//	@Summary		Create a note; it is queued for sync and pushed at once when online
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		noteservice.NoteInput	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var in noteservice.NoteInput
	if !decodeJSON(w, r, &in) {
		return
	}
	n, err := h.svc.CreateNote(r.Context(), in)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// UpdateNote handles PATCH /notes/{id}.
//
//	@Summary		Change the given fields of a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Note id"
//	@Param			body	body		noteservice.NotePatch	true	"Fields to change"
//	@Success		200		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [patch]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var p noteservice.NotePatch
	if !decodeJSON(w, r, &p) {
		return
	}
	n, err := h.svc.UpdateNote(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// DeleteNote handles DELETE /notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreNote handles POST /notes/{id}/restore.
func (h *Handler) RestoreNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RestoreNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "restore note", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// NoteActions handles GET /notes/{id}/actions.
func (h *Handler) NoteActions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.GetNote(r.Context(), id); err != nil {
		writeError(w, "note actions", err)
		return
	}
	items, err := h.svc.ListActions(r.Context(), repo.ActionFilter{NoteID: id, Limit: -1})
	if err != nil {
		writeError(w, "note actions", err)
		return
	}
	writeJSON(w, http.StatusOK, ActionListResponse{Actions: items})
}

// Search handles GET /search.
//
//	@Summary		Full-text search across live notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	results, err := h.svc.SearchNotes(r.Context(), q, queryInt(r, "limit"))
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []models.Note{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// FolderTree handles GET /folders.
func (h *Handler) FolderTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.FolderTree(r.Context())
	if err != nil {
		writeError(w, "folder tree", err)
		return
	}
	if tree == nil {
		tree = []*models.FolderNode{}
	}
	writeJSON(w, http.StatusOK, FolderTreeResponse{Folders: tree})
}

// GetFolder handles GET /folders/{id}.
func (h *Handler) GetFolder(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.GetFolder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get folder", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// FolderPath handles GET /folders/{id}/path. The folder itself is the last
// element.
func (h *Handler) FolderPath(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, err := h.svc.GetFolder(r.Context(), id)
	if err != nil {
		writeError(w, "folder path", err)
		return
	}
	path, err := h.svc.FolderPath(r.Context(), id)
	if err != nil {
		writeError(w, "folder path", err)
		return
	}
	writeJSON(w, http.StatusOK, FolderPathResponse{Path: append(path, f)})
}

// CreateFolder handles POST /folders.
//
//	@Summary		Create a folder, at most three levels deep
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		noteservice.FolderInput	true	"Folder to create"
//	@Success		201		{object}	models.Folder
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var in noteservice.FolderInput
	if !decodeJSON(w, r, &in) {
		return
	}
	f, err := h.svc.CreateFolder(r.Context(), in)
	if err != nil {
		writeError(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// UpdateFolder handles PATCH /folders/{id}.
func (h *Handler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	var p noteservice.FolderPatch
	if !decodeJSON(w, r, &p) {
		return
	}
	f, err := h.svc.UpdateFolder(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, "update folder", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteFolder handles DELETE /folders/{id}?move_to=<folder id>.
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	moveTo := r.URL.Query().Get("move_to")
	if err := h.svc.DeleteFolder(r.Context(), chi.URLParam(r, "id"), moveTo); err != nil {
		writeError(w, "delete folder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListActions handles GET /actions.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.svc.ListActions(r.Context(), repo.ActionFilter{
		NoteID: q.Get("note_id"),
		Type:   models.ActionType(q.Get("type")),
		Status: models.ActionStatus(q.Get("status")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	})
	if err != nil {
		writeError(w, "list actions", err)
		return
	}
	writeJSON(w, http.StatusOK, ActionListResponse{Actions: items})
}

// CreateAction handles POST /actions.
func (h *Handler) CreateAction(w http.ResponseWriter, r *http.Request) {
	var in noteservice.ActionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	a, err := h.svc.CreateAction(r.Context(), in)
	if err != nil {
		writeError(w, "create action", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetAction handles GET /actions/{id}.
func (h *Handler) GetAction(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get action", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CompleteAction handles POST /actions/{id}/complete.
func (h *Handler) CompleteAction(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.CompleteAction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "complete action", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAction handles DELETE /actions/{id}.
func (h *Handler) DeleteAction(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete action", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
