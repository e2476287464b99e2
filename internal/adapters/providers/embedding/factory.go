// Package embedding provides the embedding models used to build and query the case index.
package embedding

import (
	"fmt"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/config"
)

const defaultOllamaBaseURL = "http://localhost:11434/v1"

// NewProvider selects the embedding model named by cfg.Provider.
func NewProvider(cfg config.EmbeddingConfig) (providers.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "", "hashing":
		return NewHashingEmbedder(cfg.Dimension)
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    "ollama",
			BaseURL:   baseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
