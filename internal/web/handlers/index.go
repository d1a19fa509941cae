package handlers

import (
	"context"
	"net/http"

	"github.com/kozaktomas/facesearch/internal/faceindex"
	"github.com/rs/zerolog/hlog"
)

// IndexManager is the index surface exposed over HTTP.
type IndexManager interface {
	Status() faceindex.Status
	Rebuild(ctx context.Context) (faceindex.RebuildStats, error)
	Persist() error
}

// IndexHandler handles vector index maintenance endpoints.
type IndexHandler struct {
	index IndexManager
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(index IndexManager) *IndexHandler {
	return &IndexHandler{index: index}
}

// Status returns the state of the published index.
func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.index.Status())
}

type rebuildResponse struct {
	Rows       int              `json:"rows"`
	Skipped    int              `json:"skipped"`
	DurationMs int64            `json:"duration_ms"`
	Status     faceindex.Status `json:"status"`
}

// Rebuild reloads the index from the embedding store and persists it.
func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Rebuild(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if err := h.index.Persist(); err != nil {
		// The new snapshot is live; only the on-disk copy is stale.
		hlog.FromRequest(r).Error().Err(err).Msg("persisting rebuilt index failed")
	}
	respondJSON(w, http.StatusOK, rebuildResponse{
		Rows:       stats.Rows,
		Skipped:    stats.Skipped,
		DurationMs: stats.Duration.Milliseconds(),
		Status:     h.index.Status(),
	})
}
