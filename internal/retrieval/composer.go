package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/index"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/observability"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

const (
	DefaultTopK         = 3
	DefaultThreshold    = 0.3
	DefaultEmbedTimeout = 15 * time.Second
)

// SnapshotSource supplies the live index generation.
type SnapshotSource interface {
	Current() *index.Snapshot
}

// ComposerConfig configures the context composer.
type ComposerConfig struct {
	TopK          int
	Threshold     float64
	MaxTokens     int
	QueryCacheTTL time.Duration
	EmbedTimeout  time.Duration
}

// Composer searches the live index and formats matches into a context block.
type Composer struct {
	source   SnapshotSource
	embedder providers.EmbeddingProvider
	cache    providers.CacheProvider
	metrics  *observability.Metrics
	cfg      ComposerConfig
	group    singleflight.Group
}

// NewComposer creates a composer. cache and metrics may be nil.
func NewComposer(source SnapshotSource, embedder providers.EmbeddingProvider, cache providers.CacheProvider, metrics *observability.Metrics, cfg ComposerConfig) *Composer {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	return &Composer{
		source:   source,
		embedder: embedder,
		cache:    cache,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Option overrides composer defaults for one call.
type Option func(*composeOptions)

type composeOptions struct {
	topK      int
	threshold float64
}

// WithTopK sets how many candidates are searched.
func WithTopK(k int) Option {
	return func(o *composeOptions) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithThreshold sets the minimum similarity a case needs to be surfaced.
func WithThreshold(t float64) Option {
	return func(o *composeOptions) { o.threshold = t }
}

// Compose embeds query with the model the index was built with, keeps the top
// candidates scoring at or above the threshold and formats them. It returns a
// nil context, not an error, when nothing is relevant enough.
func (c *Composer) Compose(ctx context.Context, query string, opts ...Option) (*entities.RetrievedContext, error) {
	ctx, span := observability.StartSpan(ctx, "retrieval.Compose")
	defer span.End()

	o := composeOptions{topK: c.cfg.TopK, threshold: c.cfg.Threshold}
	for _, opt := range opts {
		opt(&o)
	}

	snap := c.source.Current()
	if snap == nil {
		return nil, apperrors.NewUnavailableError("index is not built yet")
	}
	if snap.Model != c.embedder.Model() {
		return nil, apperrors.NewInternalError("query embedding model does not match index",
			fmt.Errorf("index built with %s, query model is %s", snap.Model, c.embedder.Model()))
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	vec, err := c.embedQuery(ctx, query)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	hits, err := snap.Index.Search(vec, o.topK)
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewInternalError("index search failed", err)
	}

	var scored []scoredCase
	for _, h := range hits {
		if h.Score < o.threshold {
			continue
		}
		rec, ok := snap.Record(h.Position)
		if !ok {
			continue
		}
		scored = append(scored, scoredCase{record: rec, score: h.Score})
	}
	observability.SetSpanAttributes(span,
		attribute.Int("retrieval.candidates", len(hits)),
		attribute.Int("retrieval.matches", len(scored)),
	)
	if len(scored) == 0 {
		return nil, nil
	}

	block, kept := formatBlock(scored, c.cfg.MaxTokens)
	rc := &entities.RetrievedContext{
		Query:          query,
		Matches:        make([]entities.RetrievalMatch, len(kept)),
		FormattedBlock: block,
	}
	for i, sc := range kept {
		rc.Matches[i] = entities.RetrievalMatch{
			RecordID:  sc.record.ID,
			Diagnosis: sc.record.Diagnosis,
			Score:     sc.score,
			Snippet:   caseLine(sc.record),
		}
	}
	return rc, nil
}

func (c *Composer) embedQuery(ctx context.Context, query string) ([]float32, error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	key := "rag:qemb:" + c.embedder.Model() + ":" + hex.EncodeToString(sum[:])

	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, key); err == nil {
			if vec, ok := decodeVector(raw, c.embedder.Dimension()); ok {
				observability.RecordCacheHit(ctx, c.metrics, "query_embedding")
				return vec, nil
			}
		} else if !errors.Is(err, providers.ErrCacheMiss) {
			log.Warn().Err(err).Msg("Query embedding cache read failed")
		}
		observability.RecordCacheMiss(ctx, c.metrics, "query_embedding")
	}

	// shared by every caller of key: detached from any one caller, bounded by its own deadline
	ch := c.group.DoChan(key, func() (any, error) {
		embedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.EmbedTimeout)
		defer cancel()

		out, err := c.embedder.Embed(embedCtx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("embedder returned %d vectors for one query", len(out))
		}
		return out[0], nil
	})

	var vec []float32
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		vec = res.Val.([]float32)
	}

	if c.cache != nil {
		ttl := int(c.cfg.QueryCacheTTL / time.Second)
		if err := c.cache.Set(ctx, key, encodeVector(vec), ttl); err != nil {
			log.Warn().Err(err).Msg("Query embedding cache write failed")
		}
	}
	return vec, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(raw []byte, dim int) ([]float32, bool) {
	if len(raw) != 4*dim {
		return nil, false
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return v, true
}
