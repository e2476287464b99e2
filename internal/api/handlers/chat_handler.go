package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/application/services"
)

const maxChatBodyBytes = 64 << 10

// ChatService defines the chat operation used by the handler.
type ChatService interface {
	Chat(ctx context.Context, req services.ChatRequest) (*services.ChatResponse, error)
}

// ChatHandler handles chat turns.
type ChatHandler struct {
	service ChatService
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(service ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Provider       string `json:"provider"`
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if ownerID == "" {
		respondWithError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		return
	}

	var payload chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "request body is too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	resp, err := h.service.Chat(r.Context(), services.ChatRequest{
		OwnerID:        ownerID,
		Message:        payload.Message,
		ConversationID: strings.TrimSpace(payload.ConversationID),
		Provider:       payload.Provider,
	})
	if err != nil {
		if r.Context().Err() != nil {
			// client is gone, nothing to write to
			return
		}
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}
