package handlers

import (
	"net/http"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/index"
)

// IndexStatusReader reports whether the index is serving.
type IndexStatusReader interface {
	Status() index.Status
}

// HealthHandler reports process liveness and index readiness.
type HealthHandler struct {
	index IndexStatusReader
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(index IndexStatusReader) *HealthHandler {
	return &HealthHandler{index: index}
}

// Health handles GET /health. It returns 503 until the first index is live.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.index.Status()
	if !st.Ready {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "starting",
			"index":  st,
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"index":  st,
	})
}
