package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/events"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/providers/embedding"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/search"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/index"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/clients/redis"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/clients/typesense"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/observability"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/config"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/secrets"
)

type options struct {
	force     bool
	typesense bool
	reset     bool
}

func main() {
	var opts options
	var intervalFlag string
	flag.BoolVar(&opts.force, "force", false, "re-embed the corpus even when the cache is valid")
	flag.BoolVar(&opts.typesense, "typesense", false, "also sync case records into Typesense")
	flag.BoolVar(&opts.reset, "reset", false, "drop the Typesense collection before syncing")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.Parse()

	_ = godotenv.Load()

	// Provider keys may live in Vault; they must be in the environment before config.Load.
	vaultResult, vaultErr := secrets.ApplyVaultSecrets(context.Background(), secrets.VaultConfigFromEnv())

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	observability.InitLogger("carechat-indexer", cfg.Environment)
	if vaultErr != nil {
		log.Fatal().Err(vaultErr).Str("path", vaultResult.Path).Msg("Failed to load secrets from Vault")
	}
	if vaultResult.Enabled {
		log.Info().Str("path", vaultResult.Path).Int("loaded", len(vaultResult.Loaded)).Int("skipped", len(vaultResult.Skipped)).Msg("Vault secrets applied")
	}

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}
	var interval time.Duration
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			log.Fatal().Err(err).Str("interval", intervalValue).Msg("Invalid interval")
		}
		if interval <= 0 {
			log.Fatal().Msg("Interval must be greater than zero")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := indexOnce(ctx, cfg, opts); err != nil {
			log.Error().Err(err).Msg("Reindex failed")
			if interval <= 0 {
				os.Exit(1)
			}
		}

		if interval <= 0 {
			return
		}

		opts.reset = false
		log.Info().Dur("interval", interval).Msg("Reindex complete, waiting for next run")

		select {
		case <-ctx.Done():
			log.Info().Msg("Reindexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, cfg *config.Config, opts options) error {
	embedder, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		return err
	}

	// Announce the rebuild so running API replicas reload the shared cache.
	var bus providers.EventBus
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, rebuild will not be announced")
		} else {
			defer redisClient.Close()
			bus = events.NewRedisEventBus(redisClient)
			defer bus.Close()
		}
	}

	builder := index.NewBuilder(index.BuilderConfig{
		CorpusPath: cfg.RAG.CorpusPath,
		Workers:    cfg.RAG.BuildWorkers,
		BatchSize:  cfg.RAG.BuildBatchSize,
	}, index.NewBoltCache(cfg.RAG.CachePath), embedder)
	manager := index.NewManager(builder, bus)

	start := time.Now()
	snap, err := manager.Rebuild(ctx, opts.force)
	if err != nil {
		return err
	}
	log.Info().
		Int("records", snap.Index.Len()).
		Str("model", snap.Model).
		Str("fingerprint", snap.Fingerprint).
		Bool("from_cache", snap.FromCache).
		Dur("took", time.Since(start)).
		Msg("Index ready")

	if !opts.typesense {
		return nil
	}

	tsClient, err := typesense.NewClient(ctx, &cfg.Typesense)
	if err != nil {
		return err
	}
	caseSearch := search.NewTypesenseAdapter(tsClient)

	if opts.reset || os.Getenv("RESET_TYPESENSE") == "true" {
		log.Info().Str("collection", search.CaseRecordsCollection).Msg("Dropping Typesense collection")
		if err := caseSearch.DropCollection(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to drop collection")
		}
	}
	if err := caseSearch.EnsureCollection(ctx); err != nil {
		return err
	}

	log.Info().Int("records", len(snap.Records)).Msg("Syncing case records to Typesense")
	indexed, err := caseSearch.IndexCases(ctx, snap.Records)
	if err != nil {
		log.Error().Err(err).Int("indexed", indexed).Msg("Typesense sync incomplete")
		return err
	}
	log.Info().Int("indexed", indexed).Msg("Typesense sync complete")
	return nil
}
