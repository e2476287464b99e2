package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/corpus"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/observability"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

// Snapshot is a complete, immutable index generation: the vectors plus the
// records they were built from, aligned by position.
type Snapshot struct {
	Index       *FlatIndex
	Records     []entities.CaseRecord
	Fingerprint string
	Model       string
	BuiltAt     time.Time
	FromCache   bool
}

// Record returns the case at an index position.
func (s *Snapshot) Record(position int) (*entities.CaseRecord, bool) {
	if position < 0 || position >= len(s.Records) {
		return nil, false
	}
	return &s.Records[position], true
}

// BuilderConfig configures index builds.
type BuilderConfig struct {
	CorpusPath string
	Workers    int
	BatchSize  int
}

// Builder loads the corpus and produces a Snapshot, from cache when possible.
type Builder struct {
	cfg      BuilderConfig
	cache    *BoltCache
	embedder providers.EmbeddingProvider
}

// NewBuilder creates an index builder.
func NewBuilder(cfg BuilderConfig, cache *BoltCache, embedder providers.EmbeddingProvider) *Builder {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Builder{cfg: cfg, cache: cache, embedder: embedder}
}

// Embedder returns the model the builder embeds with.
func (b *Builder) Embedder() providers.EmbeddingProvider { return b.embedder }

// Cache returns the on-disk cache.
func (b *Builder) Cache() *BoltCache { return b.cache }

// Build returns a snapshot of the current corpus. A valid cache is reused unless
// force is set; a stale or corrupt cache is rebuilt. A missing corpus is an error.
func (b *Builder) Build(ctx context.Context, force bool) (*Snapshot, error) {
	ctx, span := observability.StartSpan(ctx, "index.Build")
	defer span.End()

	records, fingerprint, err := corpus.LoadWithFingerprint(b.cfg.CorpusPath)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	model := b.embedder.Model()
	dim := b.embedder.Dimension()
	observability.SetSpanAttributes(span,
		attribute.Int("index.records", len(records)),
		attribute.String("index.model", model),
		attribute.Bool("index.force", force),
	)

	if !force {
		snap, err := b.fromCache(records, fingerprint, model, dim)
		switch {
		case err == nil:
			log.Info().Int("entries", len(records)).Str("cache", b.cache.Path()).Msg("Loaded index from cache")
			return snap, nil
		case errors.Is(err, ErrCacheMiss):
			log.Info().Str("cache", b.cache.Path()).Msg("Index cache miss, rebuilding")
		default:
			log.Warn().Err(err).Str("cache", b.cache.Path()).Msg("Index cache unusable, rebuilding")
		}
	}

	start := time.Now()
	vectors, err := b.embedAll(ctx, records)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to embed corpus: %w", err)
	}

	entries := make([]entities.EmbeddingEntry, len(records))
	for i := range records {
		entries[i] = entities.EmbeddingEntry{
			RecordID:   records[i].ID,
			Vector:     vectors[i],
			SourceText: corpus.EmbeddingText(records[i]),
		}
	}
	idx, err := NewFlatIndex(dim, entries)
	if err != nil {
		return nil, err
	}

	meta := CacheMeta{Fingerprint: fingerprint, Model: model, Dimension: dim, CreatedAt: time.Now().UTC()}
	if err := b.cache.Save(meta, entries); err != nil {
		// the in-memory index is still usable; the next start embeds again
		log.Error().Err(err).Str("cache", b.cache.Path()).Msg("Failed to persist index cache")
	}

	log.Info().
		Int("entries", len(entries)).
		Str("model", model).
		Dur("duration", time.Since(start)).
		Msg("Built index")

	return &Snapshot{
		Index:       idx,
		Records:     records,
		Fingerprint: fingerprint,
		Model:       model,
		BuiltAt:     time.Now().UTC(),
	}, nil
}

func (b *Builder) fromCache(records []entities.CaseRecord, fingerprint, model string, dim int) (*Snapshot, error) {
	entries, meta, err := b.cache.Load(fingerprint, model, dim)
	if err != nil {
		return nil, err
	}
	if len(entries) != len(records) {
		return nil, apperrors.NewCacheCorruptError(b.cache.Path(), fmt.Errorf("cache has %d entries, corpus has %d records", len(entries), len(records)))
	}
	for i := range entries {
		if entries[i].RecordID != records[i].ID {
			return nil, apperrors.NewCacheCorruptError(b.cache.Path(), fmt.Errorf("entry %d is %s, corpus has %s", i, entries[i].RecordID, records[i].ID))
		}
		entries[i].SourceText = corpus.EmbeddingText(records[i])
	}
	idx, err := NewFlatIndex(dim, entries)
	if err != nil {
		return nil, apperrors.NewCacheCorruptError(b.cache.Path(), err)
	}
	return &Snapshot{
		Index:       idx,
		Records:     records,
		Fingerprint: fingerprint,
		Model:       model,
		BuiltAt:     meta.CreatedAt,
		FromCache:   true,
	}, nil
}

func (b *Builder) embedAll(ctx context.Context, records []entities.CaseRecord) ([][]float32, error) {
	vectors := make([][]float32, len(records))
	dim := b.embedder.Dimension()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for start := 0; start < len(records); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(records))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = corpus.EmbeddingText(records[i])
			}
			out, err := b.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			if len(out) != len(texts) {
				return fmt.Errorf("batch %d-%d: got %d vectors", start, end, len(out))
			}
			for i, v := range out {
				if len(v) != dim {
					return fmt.Errorf("batch %d-%d: vector dimension %d, want %d", start, end, len(v), dim)
				}
				vectors[start+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
