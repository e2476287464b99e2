package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/generation"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-1.5-flash"
	providerName   = "gemini"
)

// Config configures the Gemini client.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	RateLimitRPM int
	Timeout      time.Duration
}

// Client implements the Gemini generation provider over the generateContent REST API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ providers.GenerationProvider = (*Client)(nil)

// NewClient creates a new Gemini client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: newLimiter(cfg.RateLimitRPM),
	}, nil
}

func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	burst := max(1, rpm/10)
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)
}

// Name returns the routing key.
func (c *Client) Name() string { return providerName }

// Model returns the configured model.
func (c *Client) Model() string { return c.model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	ModelVersion string `json:"modelVersion"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends the conversation to generateContent. System messages are
// merged into systemInstruction; assistant turns use Gemini's "model" role.
func (c *Client) Generate(ctx context.Context, messages []entities.PromptMessage, params entities.GenerationParams) (*entities.Generation, error) {
	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", generation.ErrRateLimited, err)
		}
		recordRateLimitWait(ctx, c.model, time.Since(waitStart))
	}

	payload := buildRequest(messages, params)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordMetric(ctx, c.model, 0, time.Since(start), err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := readStatusError(resp)
		recordMetric(ctx, c.model, resp.StatusCode, time.Since(start), statusErr)
		return nil, statusErr
	}

	var envelope generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		recordMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return nil, fmt.Errorf("%w: %v", generation.ErrMalformedResponse, err)
	}

	text := candidateText(&envelope)
	if text == "" {
		err := fmt.Errorf("%w: no candidate text", generation.ErrMalformedResponse)
		if envelope.PromptFeedback != nil && envelope.PromptFeedback.BlockReason != "" {
			err = fmt.Errorf("%w: prompt blocked (%s)", generation.ErrMalformedResponse, envelope.PromptFeedback.BlockReason)
		}
		recordMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return nil, err
	}

	model := envelope.ModelVersion
	if model == "" {
		model = c.model
	}
	recordMetric(ctx, c.model, resp.StatusCode, time.Since(start), nil)
	return &entities.Generation{
		Text:     text,
		Model:    model,
		Provider: providerName,
	}, nil
}

// Ping fetches the model resource, which checks the key without spending tokens.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/models/%s", c.baseURL, c.model), nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func buildRequest(messages []entities.PromptMessage, params entities.GenerationParams) generateRequest {
	var (
		system   []string
		contents []content
	)
	for _, m := range messages {
		switch m.Role {
		case entities.RoleSystem:
			system = append(system, m.Content)
		case entities.RoleAssistant:
			contents = append(contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}

	req := generateRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:     params.Temperature,
			MaxOutputTokens: params.MaxTokens,
		},
	}
	if len(system) > 0 {
		req.SystemInstruction = &content{Parts: []part{{Text: strings.Join(system, "\n\n")}}}
	}
	return req
}

func candidateText(envelope *generateResponse) string {
	for _, cand := range envelope.Candidates {
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text
		}
	}
	return ""
}

func readStatusError(resp *http.Response) *generation.StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	statusErr := &generation.StatusError{StatusCode: resp.StatusCode}
	var envelope errorEnvelope
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		statusErr.Message = envelope.Error.Message
	} else {
		statusErr.Message = strings.TrimSpace(string(raw))
	}
	return statusErr
}

type geminiMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
	rateLimitWait   metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	metrics     *geminiMetrics
)

func ensureMetrics() *geminiMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/Tsili-spec/CareChat-DSWB-sub000/gemini")

		requestCount, err := meter.Int64Counter(
			"ai.gemini.request.count",
			metric.WithDescription("Number of Gemini requests"),
		)
		if err != nil {
			return
		}
		requestDuration, err := meter.Float64Histogram(
			"ai.gemini.request.duration",
			metric.WithDescription("Gemini request duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return
		}
		requestErrors, err := meter.Int64Counter(
			"ai.gemini.request.errors",
			metric.WithDescription("Number of Gemini request errors"),
		)
		if err != nil {
			return
		}
		rateLimitWait, err := meter.Float64Histogram(
			"ai.gemini.rate_limit.wait",
			metric.WithDescription("Time spent waiting for the Gemini rate limiter in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return
		}
		metrics = &geminiMetrics{
			requestCount:    requestCount,
			requestDuration: requestDuration,
			requestErrors:   requestErrors,
			rateLimitWait:   rateLimitWait,
		}
	})
	return metrics
}

func recordMetric(ctx context.Context, model string, statusCode int, duration time.Duration, err error) {
	m := ensureMetrics()
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", providerName),
		attribute.String("ai.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}

	m.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.requestErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func recordRateLimitWait(ctx context.Context, model string, wait time.Duration) {
	m := ensureMetrics()
	if m == nil {
		return
	}
	m.rateLimitWait.Record(ctx, float64(wait.Milliseconds()), metric.WithAttributes(
		attribute.String("ai.provider", providerName),
		attribute.String("ai.model", model),
	))
}
