package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
)

type MockProvider struct {
	mock.Mock
	name  string
	model string
}

func (m *MockProvider) Name() string  { return m.name }
func (m *MockProvider) Model() string { return m.model }

func (m *MockProvider) Generate(ctx context.Context, messages []entities.PromptMessage, params entities.GenerationParams) (*entities.Generation, error) {
	args := m.Called(ctx, messages, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Generation), args.Error(1)
}

func (m *MockProvider) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// slowProvider blocks until its context ends.
type slowProvider struct{ pings atomic.Int32 }

func (p *slowProvider) Name() string  { return "slow" }
func (p *slowProvider) Model() string { return "slow-1" }
func (p *slowProvider) Generate(ctx context.Context, _ []entities.PromptMessage, _ entities.GenerationParams) (*entities.Generation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (p *slowProvider) Ping(context.Context) error {
	p.pings.Add(1)
	return nil
}

var prompt = []entities.PromptMessage{{Role: entities.RoleUser, Content: "hello"}}

func TestRouter_GenerateUsesDefaultProvider(t *testing.T) {
	gemini := &MockProvider{name: "gemini", model: "gemini-1.5-flash"}
	groq := &MockProvider{name: "groq", model: "llama"}
	gemini.On("Generate", mock.Anything, prompt, mock.Anything).
		Return(&entities.Generation{Text: "Hi there"}, nil).Once()

	r := NewRouter(RouterConfig{Default: "gemini"}, nil, gemini, groq)

	gen, err := r.Generate(context.Background(), "", prompt, entities.GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", gen.Text)
	assert.Equal(t, "gemini", gen.Provider)
	assert.Equal(t, "gemini-1.5-flash", gen.Model)
	gemini.AssertExpectations(t)
	groq.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_NoFailoverOnError(t *testing.T) {
	gemini := &MockProvider{name: "gemini", model: "g"}
	groq := &MockProvider{name: "groq", model: "l"}
	gemini.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &StatusError{StatusCode: http.StatusServiceUnavailable}).Once()

	r := NewRouter(RouterConfig{Default: "gemini"}, nil, gemini, groq)

	_, err := r.Generate(context.Background(), "GEMINI", prompt, entities.GenerationParams{})

	var failure *ProviderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "gemini", failure.Provider)
	assert.Equal(t, KindUnavailable, failure.Kind)
	groq.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_UnknownProvider(t *testing.T) {
	r := NewRouter(RouterConfig{Default: "gemini"}, nil)

	_, err := r.Generate(context.Background(), "openai", prompt, entities.GenerationParams{})

	var failure *ProviderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, KindNotConfigured, failure.Kind)
	assert.Equal(t, "openai", failure.Provider)
}

func TestRouter_Timeout(t *testing.T) {
	r := NewRouter(RouterConfig{Default: "slow", Timeout: 20 * time.Millisecond}, nil, &slowProvider{})

	start := time.Now()
	_, err := r.Generate(context.Background(), "", prompt, entities.GenerationParams{})

	var failure *ProviderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, KindTimeout, failure.Kind)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRouter_EmptyCompletionIsMalformed(t *testing.T) {
	p := &MockProvider{name: "groq", model: "l"}
	p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&entities.Generation{Text: "  "}, nil)

	r := NewRouter(RouterConfig{Default: "groq"}, nil, p)
	_, err := r.Generate(context.Background(), "", prompt, entities.GenerationParams{})

	var failure *ProviderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, KindMalformed, failure.Kind)
}

func TestRouter_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	p := &MockProvider{name: "groq", model: "l"}
	p.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &StatusError{StatusCode: http.StatusBadGateway}).Times(breakerTripFailures)

	r := NewRouter(RouterConfig{Default: "groq"}, nil, p)
	for i := 0; i < breakerTripFailures; i++ {
		_, err := r.Generate(context.Background(), "", prompt, entities.GenerationParams{})
		require.Error(t, err)
	}

	_, err := r.Generate(context.Background(), "", prompt, entities.GenerationParams{})
	var failure *ProviderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, KindUnavailable, failure.Kind)
	p.AssertNumberOfCalls(t, "Generate", breakerTripFailures)
}

func TestRouter_HealthIsCached(t *testing.T) {
	slow := &slowProvider{}
	broken := &MockProvider{name: "ollama", model: "llama3"}
	broken.On("Ping", mock.Anything).Return(errors.New("connection refused"))

	r := NewRouter(RouterConfig{Default: "openai", HealthTTL: time.Minute, Unconfigured: []string{"openai", "slow"}}, nil, slow, broken)

	first := r.Health(context.Background())
	second := r.Health(context.Background())

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), slow.pings.Load())

	byName := map[string]entities.ProviderHealth{}
	for _, h := range first {
		byName[h.Name] = h
	}
	assert.False(t, byName["ollama"].Reachable)
	assert.Contains(t, byName["ollama"].Error, "connection refused")
	assert.True(t, byName["slow"].Reachable)
	assert.Equal(t, "closed", byName["slow"].Breaker)
	assert.False(t, byName["openai"].Configured)
	assert.True(t, byName["openai"].Default)
}

func TestRouter_SelectFallsBackWhenDefaultUnconfigured(t *testing.T) {
	broken := &MockProvider{name: "groq", model: "l"}
	broken.On("Ping", mock.Anything).Return(errors.New("down"))
	ok := &MockProvider{name: "ollama", model: "llama3"}
	ok.On("Ping", mock.Anything).Return(nil)

	r := NewRouter(RouterConfig{Default: "gemini", Unconfigured: []string{"gemini"}}, nil, broken, ok)
	assert.Equal(t, "ollama", r.Select(context.Background()))

	configured := NewRouter(RouterConfig{Default: "groq"}, nil, broken, ok)
	assert.Equal(t, "groq", configured.Select(context.Background()))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "unauthorized", err: &StatusError{StatusCode: http.StatusUnauthorized}, want: KindAuth},
		{name: "forbidden", err: &StatusError{StatusCode: http.StatusForbidden}, want: KindAuth},
		{name: "too many requests", err: &StatusError{StatusCode: http.StatusTooManyRequests}, want: KindRateLimit},
		{name: "local limiter", err: ErrRateLimited, want: KindRateLimit},
		{name: "malformed", err: fmt.Errorf("%w: no candidates", ErrMalformedResponse), want: KindMalformed},
		{name: "server error", err: &StatusError{StatusCode: http.StatusInternalServerError}, want: KindUnavailable},
		{name: "unknown", err: errors.New("boom"), want: KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify("p", tt.err).Kind)
		})
	}

	original := &ProviderFailure{Provider: "x", Kind: KindAuth}
	assert.Same(t, original, Classify("y", fmt.Errorf("wrapped: %w", original)))
	assert.Nil(t, Classify("p", nil))
}
