package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/application/services"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/generation"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/index"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Chat(ctx context.Context, req services.ChatRequest) (*services.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ChatResponse), args.Error(1)
}

type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) ListConversations(ctx context.Context, ownerID string, limit int) ([]*entities.Conversation, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Conversation), args.Error(1)
}

func (m *MockConversationService) ListMessages(ctx context.Context, ownerID, conversationID string) ([]*entities.Message, error) {
	args := m.Called(ctx, ownerID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Message), args.Error(1)
}

type MockIndexManager struct {
	mock.Mock
}

func (m *MockIndexManager) Rebuild(ctx context.Context, force bool) (*index.Snapshot, error) {
	args := m.Called(ctx, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*index.Snapshot), args.Error(1)
}

func (m *MockIndexManager) Status() index.Status {
	args := m.Called()
	return args.Get(0).(index.Status)
}

type MockCaseSearch struct {
	mock.Mock
}

func (m *MockCaseSearch) EnsureCollection(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockCaseSearch) DropCollection(ctx context.Context) error   { return m.Called(ctx).Error(0) }
func (m *MockCaseSearch) IndexCases(ctx context.Context, records []entities.CaseRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}
func (m *MockCaseSearch) Search(ctx context.Context, query string, limit int) ([]entities.CaseSearchHit, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.CaseSearchHit), args.Error(1)
}

type stubHealth struct{ health []entities.ProviderHealth }

func (s stubHealth) Health(context.Context) []entities.ProviderHealth { return s.health }
func (s stubHealth) Default() string                                  { return "gemini" }

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestChatHandler_Chat(t *testing.T) {
	svc := new(MockChatService)
	svc.On("Chat", mock.Anything, services.ChatRequest{OwnerID: "u-1", Message: "I have a fever", ConversationID: "c-1", Provider: "groq"}).
		Return(&services.ChatResponse{
			ConversationID:   "c-1",
			UserMessage:      &entities.Message{ID: "m-1", Role: entities.RoleUser, Content: "I have a fever"},
			AssistantMessage: services.AssistantReply{Content: "Rest.", Provider: "groq", ModelIdentifier: "llama"},
			Retrieval:        services.RetrievalSummary{Triggered: true, MatchCount: 2},
		}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"I have a fever","conversation_id":" c-1 ","provider":"groq"}`))
	req.Header.Set(UserIDHeader, "u-1")
	rec := httptest.NewRecorder()
	NewChatHandler(svc).Chat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "c-1", body["conversation_id"])
	assistant := body["assistant_message"].(map[string]any)
	assert.Equal(t, "llama", assistant["model_identifier"])
	assert.Equal(t, true, body["retrieval"].(map[string]any)["triggered"])
	svc.AssertExpectations(t)
}

func TestChatHandler_MissingOwner(t *testing.T) {
	svc := new(MockChatService)
	rec := httptest.NewRecorder()
	NewChatHandler(svc).Chat(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestChatHandler_BadPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":`))
	req.Header.Set(UserIDHeader, "u")
	rec := httptest.NewRecorder()
	NewChatHandler(new(MockChatService)).Chat(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{name: "validation", err: apperrors.NewValidationError("message is required"), wantStatus: http.StatusBadRequest},
		{name: "not found", err: apperrors.NewConversationNotFoundError("c"), wantStatus: http.StatusNotFound},
		{name: "not owned", err: apperrors.NewConversationNotOwnedError("c"), wantStatus: http.StatusForbidden},
		{name: "unauthorized", err: apperrors.NewUnauthorizedError("missing caller identity"), wantStatus: http.StatusUnauthorized},
		{
			name:       "provider auth",
			err:        apperrors.NewProviderFailureError("groq", &generation.ProviderFailure{Provider: "groq", Kind: generation.KindAuth}),
			wantStatus: http.StatusBadGateway,
			wantKind:   "auth",
		},
		{
			name:       "provider timeout",
			err:        apperrors.NewProviderFailureError("groq", &generation.ProviderFailure{Provider: "groq", Kind: generation.KindTimeout}),
			wantStatus: http.StatusGatewayTimeout,
			wantKind:   "timeout",
		},
		{name: "unavailable", err: apperrors.NewUnavailableError("index is not built yet"), wantStatus: http.StatusServiceUnavailable},
		{name: "plain", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockChatService)
			svc.On("Chat", mock.Anything, mock.Anything).Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
			req.Header.Set(UserIDHeader, "u")
			rec := httptest.NewRecorder()
			NewChatHandler(svc).Chat(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, body["kind"])
				assert.Equal(t, "groq", body["provider"])
			}
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body["error"])
			}
		})
	}
}

func TestConversationHandler_List(t *testing.T) {
	svc := new(MockConversationService)
	svc.On("ListConversations", mock.Anything, "u-1", maxConversationLimit).
		Return([]*entities.Conversation{{ID: "c-1", OwnerID: "u-1", Title: "Fever"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations?limit=500", nil)
	req.Header.Set(UserIDHeader, "u-1")
	rec := httptest.NewRecorder()
	NewConversationHandler(svc).ListConversations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])
}

func TestConversationHandler_ListMessages(t *testing.T) {
	svc := new(MockConversationService)
	svc.On("ListMessages", mock.Anything, "u-2", "c-1").Return(nil, apperrors.NewConversationNotOwnedError("c-1"))
	svc.On("ListMessages", mock.Anything, "u-1", "c-1").Return(nil, nil)

	h := NewConversationHandler(svc)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.ListMessages)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/c-1/messages", nil)
	req.Header.Set(UserIDHeader, "u-2")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/conversations/c-1/messages", nil)
	req.Header.Set(UserIDHeader, "u-1")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["messages"])
}

func TestProviderHandler_Health(t *testing.T) {
	h := NewProviderHandler(stubHealth{health: []entities.ProviderHealth{
		{Name: "gemini", Configured: true, Reachable: true, CheckedAt: time.Now()},
		{Name: "openai", Error: "not_configured"},
	}})

	rec := httptest.NewRecorder()
	h.GetProviderHealth(rec, httptest.NewRequest(http.MethodGet, "/api/providers/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "gemini", body["default"])
	assert.Equal(t, float64(1), body["reachable"])
	assert.Len(t, body["providers"], 2)
}

func TestIndexHandler_Rebuild(t *testing.T) {
	mgr := new(MockIndexManager)
	mgr.On("Rebuild", mock.Anything, false).Return(&index.Snapshot{}, nil)
	mgr.On("Status").Return(index.Status{Ready: true, Records: 42})

	rec := httptest.NewRecorder()
	NewIndexHandler(mgr).Rebuild(rec, httptest.NewRequest(http.MethodPost, "/api/admin/index/rebuild?force=false", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(42), decode(t, rec)["records"])
	mgr.AssertExpectations(t)
}

func TestIndexHandler_RebuildFailure(t *testing.T) {
	mgr := new(MockIndexManager)
	mgr.On("Rebuild", mock.Anything, true).Return(nil, apperrors.NewCorpusUnavailableError("data/cases.csv", errors.New("no such file")))

	rec := httptest.NewRecorder()
	NewIndexHandler(mgr).Rebuild(rec, httptest.NewRequest(http.MethodPost, "/api/admin/index/rebuild", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "CORPUS_UNAVAILABLE", decode(t, rec)["code"])
}

func TestIndexHandler_RebuildBadForce(t *testing.T) {
	rec := httptest.NewRecorder()
	NewIndexHandler(new(MockIndexManager)).Rebuild(rec, httptest.NewRequest(http.MethodPost, "/api/admin/index/rebuild?force=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	mgr := new(MockIndexManager)
	mgr.On("Status").Return(index.Status{}).Once()
	mgr.On("Status").Return(index.Status{Ready: true}).Once()
	h := NewHealthHandler(mgr)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestCaseSearchHandler(t *testing.T) {
	search := new(MockCaseSearch)
	search.On("Search", mock.Anything, "malaria", 5).
		Return([]entities.CaseSearchHit{{Record: &entities.CaseRecord{ID: "c-1", Diagnosis: "Malaria"}, Score: 3}}, nil)
	h := NewCaseSearchHandler(search)

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/cases/search?q=malaria&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/cases/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
