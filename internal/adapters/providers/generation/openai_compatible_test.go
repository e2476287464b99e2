package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	generr "github.com/Tsili-spec/CareChat-DSWB-sub000/internal/generation"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/config"
)

func newCompatServer(t *testing.T, handler http.HandlerFunc) *OpenAICompatibleAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewOpenAICompatibleAdapter(OpenAICompatibleConfig{Name: "Groq", APIKey: "k", BaseURL: srv.URL + "/", Model: "llama-test"})
	require.NoError(t, err)
	return a
}

func TestOpenAICompatible_Generate(t *testing.T) {
	var body map[string]any
	a := newCompatServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","model":"llama-test-0801","choices":[{"index":0,"message":{"role":"assistant","content":" Stay hydrated. "},"finish_reason":"stop"}]}`))
	})

	gen, err := a.Generate(context.Background(), []entities.PromptMessage{
		{Role: entities.RoleSystem, Content: "sys"},
		{Role: entities.RoleUser, Content: "fever"},
	}, entities.GenerationParams{Temperature: 0.3, MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "Stay hydrated.", gen.Text)
	assert.Equal(t, "llama-test-0801", gen.Model)
	assert.Equal(t, "groq", gen.Provider)
	assert.Equal(t, "llama-test", body["model"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAICompatible_GenerateAuthFailure(t *testing.T) {
	a := newCompatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	})

	_, err := a.Generate(context.Background(), []entities.PromptMessage{{Role: entities.RoleUser, Content: "hi"}}, entities.GenerationParams{})

	require.Error(t, err)
	assert.Equal(t, generr.KindAuth, generr.Classify("groq", err).Kind)
}

func TestOpenAICompatible_GenerateNoChoices(t *testing.T) {
	a := newCompatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","model":"m","choices":[]}`))
	})

	_, err := a.Generate(context.Background(), []entities.PromptMessage{{Role: entities.RoleUser, Content: "hi"}}, entities.GenerationParams{})
	assert.ErrorIs(t, err, generr.ErrMalformedResponse)
}

func TestOpenAICompatible_Ping(t *testing.T) {
	a := newCompatServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama-test","object":"model"}]}`))
	})
	assert.NoError(t, a.Ping(context.Background()))
}

func TestNewProviders_SkipsUnconfigured(t *testing.T) {
	built, unconfigured := NewProviders(config.ProvidersConfig{
		Groq:   config.ProviderConfig{APIKey: "k", Model: "llama", BaseURL: "http://localhost:1"},
		Gemini: config.ProviderConfig{APIKey: "g", Model: "gemini-1.5-flash"},
		Ollama: config.ProviderConfig{Model: "llama3", BaseURL: "http://localhost:11434/v1"},
		OpenAI: config.ProviderConfig{Model: "gpt-4o-mini"},
	})

	names := make([]string, len(built))
	for i, p := range built {
		names[i] = p.Name()
	}
	assert.Equal(t, []string{"gemini", "groq", "ollama"}, names)
	assert.Equal(t, []string{"openai"}, unconfigured)
}
