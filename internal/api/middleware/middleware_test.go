package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/cache"
)

func TestCacheMiddleware_CachesCaseSearch(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":[]}`))
	})
	h := NewCacheMiddleware(cache.NewMemoryAdapter(16, time.Minute), nil).Middleware(next)

	for i, want := range []string{"MISS", "HIT"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cases/search?q=malaria", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, rec.Header().Get("X-Cache"), "request %d", i)
		assert.JSONEq(t, `{"hits":[]}`, rec.Body.String())
	}
	assert.Equal(t, 1, calls)
}

func TestCacheMiddleware_SkipsPerUserRoutes(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{}`))
	})
	h := NewCacheMiddleware(cache.NewMemoryAdapter(16, time.Minute), nil).Middleware(next)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 2, calls)
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.org, https://admin.example.org")
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://admin.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://admin.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")
}

func TestCORSMiddleware_UnknownOrigin(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.org")
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestObservabilityMiddleware_NilMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	ObservabilityMiddleware(nil)(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWrappedWritersFlush(t *testing.T) {
	var flushable bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
	})
	h := ObservabilityMiddleware(nil)(LoggingMiddleware(inner))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/admin/index/events", nil))
	assert.True(t, flushable)
}
