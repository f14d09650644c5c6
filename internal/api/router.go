package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/glide/internal/audio"
	"github.com/starford/glide/internal/noteservice"
	"github.com/starford/glide/internal/storage"
	"github.com/starford/glide/internal/syncqueue"
)

// Deps are the components the API serves.
type Deps struct {
	Notes   *noteservice.Service
	Sync    Syncer
	Queue   *syncqueue.Queue
	Uploads *audio.Manager
	Files   storage.Provider

	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler

	AuthEnabled bool
	Token       string
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d.Notes)
	sh := NewSyncHandler(d.Sync, d.Queue)
	ah := NewAudioHandler(d.Uploads, d.Files)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Get("/{id}", h.GetNote)
		r.Patch("/{id}", h.UpdateNote)
		r.Delete("/{id}", h.DeleteNote)
		r.Post("/{id}/restore", h.RestoreNote)
		r.Get("/{id}/actions", h.NoteActions)
		r.Post("/{id}/audio", ah.Upload)
	})
	r.Get("/search", h.Search)

	r.Route("/folders", func(r chi.Router) {
		r.Get("/", h.FolderTree)
		r.Post("/", h.CreateFolder)
		r.Get("/{id}", h.GetFolder)
		r.Patch("/{id}", h.UpdateFolder)
		r.Delete("/{id}", h.DeleteFolder)
		r.Get("/{id}/path", h.FolderPath)
	})

	r.Route("/actions", func(r chi.Router) {
		r.Get("/", h.ListActions)
		r.Post("/", h.CreateAction)
		r.Get("/{id}", h.GetAction)
		r.Post("/{id}/complete", h.CompleteAction)
		r.Delete("/{id}", h.DeleteAction)
	})

	r.Get("/queue", sh.Queue)
	r.Post("/queue/retry", sh.RetryQueue)
	r.Get("/sync/status", sh.Status)
	r.Post("/sync", sh.Trigger)
	r.Post("/sync/hydrate", sh.Hydrate)

	r.Route("/uploads", func(r chi.Router) {
		r.Get("/", ah.List)
		r.Post("/retry", ah.Retry)
		r.Post("/cleanup", ah.Cleanup)
		r.Delete("/{id}", ah.Cancel)
	})

	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}

	return r
}
