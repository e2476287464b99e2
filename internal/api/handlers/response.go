package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/generation"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

// UserIDHeader carries the owner id verified by the authentication layer in front of this service.
const UserIDHeader = "X-User-ID"

type errorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Provider string `json:"provider,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, errorResponse{Error: message})
}

// respondWithAppError maps an error onto a status code. Internal details are
// logged, never returned.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled error")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := statusFor(appErr.Type)
	resp := errorResponse{Error: appErr.Message, Code: string(appErr.Type)}

	var failure *generation.ProviderFailure
	if errors.As(err, &failure) {
		resp.Provider = failure.Provider
		resp.Kind = string(failure.Kind)
		if failure.Kind == generation.KindTimeout {
			status = http.StatusGatewayTimeout
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
		if status == http.StatusInternalServerError {
			resp.Error = "internal server error"
		}
	}
	respondWithJSON(w, status, resp)
}

func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound, apperrors.ErrorTypeConversationNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrorTypeConversationNotOwned:
		return http.StatusForbidden
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeProviderFailure, apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	case apperrors.ErrorTypeUnavailable, apperrors.ErrorTypeCorpusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
