package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	generr "github.com/Tsili-spec/CareChat-DSWB-sub000/internal/generation"
)

// OpenAICompatibleConfig configures a chat completions backend speaking the OpenAI API.
type OpenAICompatibleConfig struct {
	Name         string
	APIKey       string
	BaseURL      string
	Model        string
	RateLimitRPM int
	Timeout      time.Duration
}

// OpenAICompatibleAdapter serves OpenAI, Groq, Ollama and any other
// OpenAI-compatible endpoint.
type OpenAICompatibleAdapter struct {
	name    string
	model   string
	client  *openai.Client
	limiter *rate.Limiter
}

var _ providers.GenerationProvider = (*OpenAICompatibleAdapter)(nil)

// NewOpenAICompatibleAdapter creates an adapter for cfg.Name.
func NewOpenAICompatibleAdapter(cfg OpenAICompatibleConfig) (*OpenAICompatibleAdapter, error) {
	if cfg.Name == "" {
		return nil, errors.New("provider name is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s model is required", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	var limiter *rate.Limiter
	if cfg.RateLimitRPM > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimitRPM)), max(1, cfg.RateLimitRPM/10))
	}

	return &OpenAICompatibleAdapter{
		name:    strings.ToLower(cfg.Name),
		model:   cfg.Model,
		client:  openai.NewClientWithConfig(clientConfig),
		limiter: limiter,
	}, nil
}

func (a *OpenAICompatibleAdapter) Name() string  { return a.name }
func (a *OpenAICompatibleAdapter) Model() string { return a.model }

// Generate calls the chat completions endpoint.
func (a *OpenAICompatibleAdapter) Generate(ctx context.Context, messages []entities.PromptMessage, params entities.GenerationParams) (*entities.Generation, error) {
	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", generr.ErrRateLimited, err)
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: float32(params.Temperature),
		MaxTokens:   params.MaxTokens,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: chatRole(m.Role), Content: m.Content}
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", generr.ErrMalformedResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message (finish reason %q)", generr.ErrMalformedResponse, resp.Choices[0].FinishReason)
	}

	model := resp.Model
	if model == "" {
		model = a.model
	}
	return &entities.Generation{Text: text, Model: model, Provider: a.name}, nil
}

// Ping lists models, which every compatible server implements.
func (a *OpenAICompatibleAdapter) Ping(ctx context.Context) error {
	if _, err := a.client.ListModels(ctx); err != nil {
		return translateError(err)
	}
	return nil
}

func chatRole(role entities.Role) string {
	switch role {
	case entities.RoleSystem:
		return openai.ChatMessageRoleSystem
	case entities.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// translateError keeps the HTTP status of go-openai errors visible to the router.
func translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &generr.StatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &generr.StatusError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}
