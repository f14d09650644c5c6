package api

import (
	"context"
	"net/http"

	"github.com/starford/glide/internal/syncengine"
	"github.com/starford/glide/internal/syncqueue"
)

// Syncer is the part of the sync engine the API drives.
type Syncer interface {
	Status(ctx context.Context) syncengine.Status
	Trigger(reason syncengine.Reason)
	Hydrate(ctx context.Context, force bool) (syncengine.Result, error)
}

// SyncHandler serves sync status, triggers and the queue.
type SyncHandler struct {
	sync  Syncer
	queue *syncqueue.Queue
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(s Syncer, q *syncqueue.Queue) *SyncHandler {
	return &SyncHandler{sync: s, queue: q}
}

// Status handles GET /sync/status.
//
//	@Summary		Aggregate sync state for the status indicator
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	syncengine.Status
//	@Security		BearerAuth
//	@Router			/sync/status [get]
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.Status(r.Context()))
}

// Trigger handles POST /sync. The cycle runs in the background; requests
// made while one is pending are merged.
func (h *SyncHandler) Trigger(w http.ResponseWriter, _ *http.Request) {
	h.sync.Trigger(syncengine.ReasonManual)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// Hydrate handles POST /sync/hydrate?force=true.
func (h *SyncHandler) Hydrate(w http.ResponseWriter, r *http.Request) {
	force := false
	if b := queryBool(r, "force"); b != nil {
		force = *b
	}
	res, err := h.sync.Hydrate(r.Context(), force)
	if err != nil {
		writeError(w, "hydrate", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Queue handles GET /queue.
func (h *SyncHandler) Queue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.queue.Depth(ctx)
	if err != nil {
		writeError(w, "queue depth", err)
		return
	}
	pending, err := h.queue.Pending(ctx, queryInt(r, "limit"))
	if err != nil {
		writeError(w, "queue pending", err)
		return
	}
	exhausted, err := h.queue.Exhausted(ctx)
	if err != nil {
		writeError(w, "queue exhausted", err)
		return
	}
	writeJSON(w, http.StatusOK, QueueResponse{Stats: stats, Pending: pending, Exhausted: exhausted})
}

// RetryQueue handles POST /queue/retry: exhausted entries get a fresh
// retry budget and a cycle is scheduled.
func (h *SyncHandler) RetryQueue(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.ResetExhausted(r.Context())
	if err != nil {
		writeError(w, "retry queue", err)
		return
	}
	if n > 0 {
		h.sync.Trigger(syncengine.ReasonManual)
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}
