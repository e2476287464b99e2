package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetrics_WithNoopProvider(t *testing.T) {
	m, err := InitMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordRequestMetric(ctx, m, "POST", "/api/chat", 200, 10*time.Millisecond)
		RecordRetrieval(ctx, m, true, 2)
		RecordProviderCall(ctx, m, "gemini", "ok", time.Second)
		RecordCacheHit(ctx, m, "query_embedding")
	})
}

func TestRecorders_NilMetrics(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordRequestMetric(context.Background(), nil, "GET", "/health", 200, 0)
		RecordProviderCall(context.Background(), nil, "groq", "timeout", 0)
	})
}

func TestLoggerFromContext_WithoutSpan(t *testing.T) {
	InitLogger("carechat-test", "test")
	logger := LoggerFromContext(context.Background())
	require.NotNil(t, logger)
}
