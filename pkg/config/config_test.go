package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.InDelta(t, 0.3, cfg.RAG.Threshold, 1e-9)
	assert.Equal(t, 5, cfg.RAG.MaxMessages)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
	assert.Equal(t, 30*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, "http://localhost:8108", cfg.Typesense.URL)
}

func TestLoad_RAGOverrides(t *testing.T) {
	t.Setenv("RAG_TOP_K", "7")
	t.Setenv("RAG_THRESHOLD", "0.55")
	t.Setenv("RAG_MAX_MESSAGES", "9")
	t.Setenv("PROVIDER_TIMEOUT", "12")
	t.Setenv("PROVIDER_HEALTH_TTL", "2m")
	t.Setenv("DB_DRIVER", "SQLite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.RAG.TopK)
	assert.InDelta(t, 0.55, cfg.RAG.Threshold, 1e-9)
	assert.Equal(t, 9, cfg.RAG.MaxMessages)
	assert.Equal(t, 12*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Providers.HealthTTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown driver", key: "DB_DRIVER", val: "mongo"},
		{name: "unknown embedding provider", key: "EMBEDDING_PROVIDER", val: "word2vec"},
		{name: "threshold out of range", key: "RAG_THRESHOLD", val: "1.5"},
		{name: "zero top k", key: "RAG_TOP_K", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestProviderConfig_Configured(t *testing.T) {
	assert.False(t, ProviderConfig{Model: "gpt-4o-mini"}.Configured())
	assert.True(t, ProviderConfig{Model: "gpt-4o-mini", APIKey: "k"}.Configured())
	assert.True(t, ProviderConfig{Model: "llama3", BaseURL: "http://localhost:11434/v1"}.Configured())
	assert.False(t, ProviderConfig{APIKey: "k"}.Configured())
}

func TestProvidersConfig_Named(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk")

	cfg, err := Load()
	require.NoError(t, err)

	named := cfg.Providers.Named()
	assert.Len(t, named, 4)
	assert.Equal(t, "gsk", named["groq"].APIKey)
	assert.True(t, named["groq"].Configured())
}
