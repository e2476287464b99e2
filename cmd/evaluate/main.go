package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/cache"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/providers/embedding"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/evaluation"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/index"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/observability"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/retrieval"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/config"
)

func main() {
	var (
		goldenPath string
		k          int
		minRecall  float64
		minMRR     float64
		minGate    float64
		verbose    bool
	)
	flag.StringVar(&goldenPath, "golden", "config/golden_queries.json", "golden query file")
	flag.IntVar(&k, "k", evaluation.DefaultK, "cut-off for recall and MRR")
	flag.Float64Var(&minRecall, "min-recall", 0, "fail when average recall@k is below this")
	flag.Float64Var(&minMRR, "min-mrr", 0, "fail when average MRR@k is below this")
	flag.Float64Var(&minGate, "min-gate-accuracy", 0, "fail when gate accuracy is below this")
	flag.BoolVar(&verbose, "verbose", false, "include per-query results in the output")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	observability.InitLogger("carechat-evaluate", cfg.Environment)

	queries, err := evaluation.LoadGoldenQueries(goldenPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load golden queries")
	}
	if err := evaluation.ValidateGoldenQueries(queries); err != nil {
		log.Fatal().Err(err).Msg("Invalid golden queries")
	}

	ctx := context.Background()

	embedder, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize embedding provider")
	}
	builder := index.NewBuilder(index.BuilderConfig{
		CorpusPath: cfg.RAG.CorpusPath,
		Workers:    cfg.RAG.BuildWorkers,
		BatchSize:  cfg.RAG.BuildBatchSize,
	}, index.NewBoltCache(cfg.RAG.CachePath), embedder)
	manager := index.NewManager(builder, nil)
	if err := manager.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to build index")
	}

	vocabulary := retrieval.DefaultVocabulary
	if cfg.RAG.VocabularyPath != "" {
		vocabulary = func() (*retrieval.Vocabulary, error) { return retrieval.LoadVocabulary(cfg.RAG.VocabularyPath) }
	}
	v, err := vocabulary()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load medical vocabulary")
	}
	gate, err := retrieval.NewGate(v)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build retrieval gate")
	}

	composer := retrieval.NewComposer(manager, embedder, cache.NewMemoryAdapter(cfg.RAG.QueryCacheSize, cfg.RAG.QueryCacheTTL), nil, retrieval.ComposerConfig{
		TopK:          k,
		Threshold:     cfg.RAG.Threshold,
		MaxTokens:     cfg.RAG.ContextMaxTokens,
		QueryCacheTTL: cfg.RAG.QueryCacheTTL,
	})

	summary, err := evaluation.NewRunner(gate, composer, k).Run(ctx, queries)
	if err != nil {
		log.Fatal().Err(err).Msg("Evaluation failed")
	}
	if !verbose {
		summary.Results = nil
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode summary")
	}
	fmt.Println(string(out))

	violations := evaluation.NewGuardrails(evaluation.GuardrailConfig{
		MinRecallAtK:    minRecall,
		MinMRRAtK:       minMRR,
		MinGateAccuracy: minGate,
	}).Check(summary)
	for _, v := range violations {
		log.Error().Str("violation", v).Msg("Evaluation below threshold")
	}
	if len(violations) > 0 {
		os.Exit(1)
	}
}
