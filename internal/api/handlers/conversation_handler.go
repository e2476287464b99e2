package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
)

const (
	defaultConversationLimit = 20
	maxConversationLimit     = 100
)

// ConversationService defines the read operations used by the handler.
type ConversationService interface {
	ListConversations(ctx context.Context, ownerID string, limit int) ([]*entities.Conversation, error)
	ListMessages(ctx context.Context, ownerID, conversationID string) ([]*entities.Message, error)
}

// ConversationHandler exposes conversation history to its owner.
type ConversationHandler struct {
	service ConversationService
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(service ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// ListConversations handles GET /api/conversations
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if ownerID == "" {
		respondWithError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		return
	}

	limit := defaultConversationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxConversationLimit)
	}

	conversations, err := h.service.ListConversations(r.Context(), ownerID, limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if conversations == nil {
		conversations = []*entities.Conversation{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// ListMessages handles GET /api/conversations/{id}/messages
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if ownerID == "" {
		respondWithError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		return
	}
	conversationID := r.PathValue("id")
	if conversationID == "" {
		respondWithError(w, http.StatusBadRequest, "conversation ID is required")
		return
	}

	messages, err := h.service.ListMessages(r.Context(), ownerID, conversationID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if messages == nil {
		messages = []*entities.Message{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"messages":        messages,
	})
}
