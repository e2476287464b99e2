package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
)

const (
	defaultCaseSearchLimit = 10
	maxCaseSearchLimit     = 50
)

// CaseSearchHandler offers keyword search over the case corpus.
type CaseSearchHandler struct {
	search providers.CaseSearchProvider
}

// NewCaseSearchHandler creates a new case search handler.
func NewCaseSearchHandler(search providers.CaseSearchProvider) *CaseSearchHandler {
	return &CaseSearchHandler{search: search}
}

// Search handles GET /api/cases/search?q=&limit=
func (h *CaseSearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := defaultCaseSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxCaseSearchLimit)
	}

	hits, err := h.search.Search(r.Context(), query, limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if hits == nil {
		hits = []entities.CaseSearchHit{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"query": query,
		"hits":  hits,
		"count": len(hits),
	})
}
