package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/index"
)

// IndexManager is the part of the index lifecycle exposed to operators.
type IndexManager interface {
	Rebuild(ctx context.Context, force bool) (*index.Snapshot, error)
	Status() index.Status
}

// IndexHandler handles index administration.
type IndexHandler struct {
	manager IndexManager
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(manager IndexManager) *IndexHandler {
	return &IndexHandler{manager: manager}
}

// Rebuild handles POST /api/admin/index/rebuild. The rebuild is forced unless
// ?force=false, in which case a valid cache is reused. The request waits for
// the new index to go live.
func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	force := true
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = parsed
	}

	if _, err := h.manager.Rebuild(r.Context(), force); err != nil {
		log.Error().Err(err).Bool("force", force).Msg("Index rebuild failed")
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, h.manager.Status())
}

// GetStatus handles GET /api/admin/index/status
func (h *IndexHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.manager.Status())
}
