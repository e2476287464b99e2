package handlers

import (
	"context"
	"net/http"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
)

// ProviderHealthChecker reports generation provider health.
type ProviderHealthChecker interface {
	Health(ctx context.Context) []entities.ProviderHealth
	Default() string
}

// ProviderHandler exposes generation provider status.
type ProviderHandler struct {
	router ProviderHealthChecker
}

// NewProviderHandler creates a new provider handler.
func NewProviderHandler(router ProviderHealthChecker) *ProviderHandler {
	return &ProviderHandler{router: router}
}

// GetProviderHealth handles GET /api/providers/health
func (h *ProviderHandler) GetProviderHealth(w http.ResponseWriter, r *http.Request) {
	health := h.router.Health(r.Context())
	if health == nil {
		health = []entities.ProviderHealth{}
	}

	reachable := 0
	for _, p := range health {
		if p.Reachable {
			reachable++
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"default":   h.router.Default(),
		"providers": health,
		"reachable": reachable,
	})
}
