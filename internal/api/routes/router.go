package routes

import (
	"net/http"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/api/handlers"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/api/middleware"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	chatHandler         *handlers.ChatHandler
	conversationHandler *handlers.ConversationHandler
	providerHandler     *handlers.ProviderHandler
	indexHandler        *handlers.IndexHandler
	healthHandler       *handlers.HealthHandler

	// optional
	caseSearchHandler  *handlers.CaseSearchHandler
	indexEventsHandler *handlers.IndexEventsHandler

	cacheMiddleware *middleware.CacheMiddleware
	metrics         *observability.Metrics
}

// Handlers groups the handlers the router serves. CaseSearch is nil without a
// search engine and IndexEvents is nil without an event bus.
type Handlers struct {
	Chat         *handlers.ChatHandler
	Conversation *handlers.ConversationHandler
	Provider     *handlers.ProviderHandler
	Index        *handlers.IndexHandler
	Health       *handlers.HealthHandler
	CaseSearch   *handlers.CaseSearchHandler
	IndexEvents  *handlers.IndexEventsHandler
}

// NewRouter creates a new router
func NewRouter(h Handlers, cacheMiddleware *middleware.CacheMiddleware, metrics *observability.Metrics) *Router {
	return &Router{
		mux:                 http.NewServeMux(),
		chatHandler:         h.Chat,
		conversationHandler: h.Conversation,
		providerHandler:     h.Provider,
		indexHandler:        h.Index,
		healthHandler:       h.Health,
		caseSearchHandler:   h.CaseSearch,
		indexEventsHandler:  h.IndexEvents,
		cacheMiddleware:     cacheMiddleware,
		metrics:             metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Chat
	r.mux.HandleFunc("POST /api/chat", r.chatHandler.Chat)

	// Conversation history
	r.mux.HandleFunc("GET /api/conversations", r.conversationHandler.ListConversations)
	r.mux.HandleFunc("GET /api/conversations/{id}/messages", r.conversationHandler.ListMessages)

	// Generation providers
	r.mux.HandleFunc("GET /api/providers/health", r.providerHandler.GetProviderHealth)

	// Index administration
	r.mux.HandleFunc("POST /api/admin/index/rebuild", r.indexHandler.Rebuild)
	r.mux.HandleFunc("GET /api/admin/index/status", r.indexHandler.GetStatus)

	if r.indexEventsHandler != nil {
		r.mux.HandleFunc("GET /api/admin/index/events", r.indexEventsHandler.Stream)
	}

	if r.caseSearchHandler != nil {
		r.mux.HandleFunc("GET /api/cases/search", r.caseSearchHandler.Search)
	}

	// Apply middleware in reverse order (last middleware wraps first).
	// CORS must be outermost so cached responses also get CORS headers.
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)

	if r.cacheMiddleware != nil {
		handler = r.cacheMiddleware.Middleware(handler)
	}

	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.CORSMiddleware(handler)

	return handler
}
