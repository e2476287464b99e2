package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/retry"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint (OpenAI, Ollama, vLLM...).
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	retry     retry.Config
}

// NewOpenAIEmbedder creates an embedder for any OpenAI-compatible provider.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	rc := retry.QuickConfig()
	rc.Retryable = isTransient

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		retry:     rc,
	}, nil
}

// Model returns the configured model identifier.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Dimension returns the configured vector length.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// Embed embeds a batch of texts, retrying transient failures.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	var resp openai.EmbeddingResponse
	err := retry.DoWithLog(ctx, e.retry, "embeddings", func() error {
		var callErr error
		resp, callErr = e.client.CreateEmbeddings(ctx, req)
		return callErr
	}, func(attempt int, err error, nextDelay time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).Str("model", e.model).Msg("Embedding request failed, retrying")
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range", data.Index)
		}
		if len(data.Embedding) != e.dimension {
			return nil, fmt.Errorf("embedding dimension %d does not match configured %d", len(data.Embedding), e.dimension)
		}
		vectors[data.Index] = normalize(data.Embedding)
	}
	return vectors, nil
}

func normalize(v []float32) []float32 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// isTransient reports whether an embeddings error may succeed on retry.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
