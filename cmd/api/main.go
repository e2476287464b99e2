package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/cache"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/database"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/events"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/providers/embedding"
	genproviders "github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/providers/generation"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/search"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/api/handlers"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/api/middleware"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/api/routes"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/application/services"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/corpus"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/repositories"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/generation"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/index"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/clients/postgres"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/clients/redis"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/clients/sqlite"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/clients/typesense"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/observability"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/retrieval"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/config"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/secrets"
)

func main() {
	_ = godotenv.Load()

	// Provider keys may live in Vault; they must be in the environment before config.Load.
	vaultResult, vaultErr := secrets.ApplyVaultSecrets(context.Background(), secrets.VaultConfigFromEnv())

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Environment)
	if vaultErr != nil {
		log.Fatal().Err(vaultErr).Str("path", vaultResult.Path).Msg("Failed to load secrets from Vault")
	}
	if vaultResult.Enabled {
		log.Info().Str("path", vaultResult.Path).Int("loaded", len(vaultResult.Loaded)).Int("skipped", len(vaultResult.Skipped)).Msg("Vault secrets applied")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	conversationRepo, closeStore, err := openConversationStore(ctx, &cfg.Database, metrics)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to open conversation store")
	}
	defer closeStore()

	// Redis backs the query embedding cache and the index event bus. Without it
	// the cache is process-local and replicas do not hear about rebuilds.
	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing with in-process cache")
		} else {
			defer redisClient.Close()
			cacheProvider = cache.NewRedisAdapter(redisClient)
			eventBus = events.NewRedisEventBus(redisClient)
		}
	}
	if cacheProvider == nil {
		cacheProvider = cache.NewMemoryAdapter(cfg.RAG.QueryCacheSize, cfg.RAG.QueryCacheTTL)
	}

	embedder, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize embedding provider")
	}

	// the corpus is required; only the embedding work is left to the background build
	records, err := corpus.Load(cfg.RAG.CorpusPath)
	if err != nil {
		log.Fatal().Err(err).Str("corpus", cfg.RAG.CorpusPath).Msg("Case corpus unavailable")
	}
	log.Info().Int("records", len(records)).Str("corpus", cfg.RAG.CorpusPath).Msg("Case corpus loaded")

	builder := index.NewBuilder(index.BuilderConfig{
		CorpusPath: cfg.RAG.CorpusPath,
		Workers:    cfg.RAG.BuildWorkers,
		BatchSize:  cfg.RAG.BuildBatchSize,
	}, index.NewBoltCache(cfg.RAG.CachePath), embedder)
	indexManager := index.NewManager(builder, eventBus)

	go func() {
		if err := indexManager.Start(ctx); err != nil {
			log.Error().Err(err).Str("corpus", cfg.RAG.CorpusPath).Msg("Initial index build failed, retrieval disabled until rebuild")
			return
		}
		st := indexManager.Status()
		log.Info().Int("records", st.Records).Str("model", st.Model).Bool("from_cache", st.FromCache).Msg("Index ready")
	}()
	go func() {
		if err := indexManager.Listen(ctx); err != nil {
			log.Warn().Err(err).Msg("Index update listener stopped")
		}
	}()

	vocabulary, err := loadVocabulary(cfg.RAG.VocabularyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load medical vocabulary")
	}
	gate, err := retrieval.NewGate(vocabulary)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build retrieval gate")
	}

	composer := retrieval.NewComposer(indexManager, embedder, cacheProvider, metrics, retrieval.ComposerConfig{
		TopK:          cfg.RAG.TopK,
		Threshold:     cfg.RAG.Threshold,
		MaxTokens:     cfg.RAG.ContextMaxTokens,
		QueryCacheTTL: cfg.RAG.QueryCacheTTL,
		EmbedTimeout:  cfg.Providers.Timeout,
	})

	generationProviders, unconfigured := genproviders.NewProviders(cfg.Providers)
	router := generation.NewRouter(generation.RouterConfig{
		Default:      cfg.Providers.Default,
		Timeout:      cfg.Providers.Timeout,
		HealthTTL:    cfg.Providers.HealthTTL,
		Unconfigured: unconfigured,
	}, metrics, generationProviders...)
	if !router.Configured(router.Default()) {
		log.Warn().Str("provider", router.Default()).Msg("Default generation provider is not configured")
	}

	conversationService := services.NewConversationService(conversationRepo, gate)
	chatService := services.NewChatService(conversationService, gate, composer, router, services.ChatConfig{
		MaxMessages: cfg.RAG.MaxMessages,
		Params: entities.GenerationParams{
			Temperature: cfg.Providers.Temperature,
			MaxTokens:   cfg.Providers.MaxTokens,
		},
	}, metrics)

	h := routes.Handlers{
		Chat:         handlers.NewChatHandler(chatService),
		Conversation: handlers.NewConversationHandler(conversationService),
		Provider:     handlers.NewProviderHandler(router),
		Index:        handlers.NewIndexHandler(indexManager),
		Health:       handlers.NewHealthHandler(indexManager),
	}
	if eventBus != nil {
		h.IndexEvents = handlers.NewIndexEventsHandler(eventBus)
	}

	if cfg.Typesense.Enabled {
		tsClient, err := typesense.NewClient(ctx, &cfg.Typesense)
		if err != nil {
			log.Warn().Err(err).Msg("Typesense unavailable, case search disabled")
		} else {
			caseSearch := search.NewTypesenseAdapter(tsClient)
			if err := caseSearch.EnsureCollection(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to ensure Typesense collection")
			}
			h.CaseSearch = handlers.NewCaseSearchHandler(caseSearch)
		}
	}

	handler := routes.NewRouter(h, middleware.NewCacheMiddleware(cacheProvider, metrics), metrics).SetupRoutes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Providers.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Str("default_provider", router.Default()).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Providers.Timeout+5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing event bus")
		}
	}

	log.Info().Msg("Server stopped")
}

// openConversationStore opens the configured conversation store and makes sure
// its schema exists.
func openConversationStore(ctx context.Context, cfg *config.DatabaseConfig, metrics *observability.Metrics) (repositories.ConversationRepository, func(), error) {
	switch cfg.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory conversation store, history is lost on restart")
		return database.NewMemoryConversationAdapter(), func() {}, nil
	case "sqlite":
		client, err := sqlite.NewClient(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		adapter := database.NewConversationAdapter(client, metrics)
		if err := adapter.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		return adapter, func() { client.Close() }, nil
	default:
		client, err := postgres.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		adapter := database.NewConversationAdapter(client, metrics)
		if err := adapter.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		return adapter, func() { client.Close() }, nil
	}
}

func loadVocabulary(path string) (*retrieval.Vocabulary, error) {
	if path == "" {
		return retrieval.DefaultVocabulary()
	}
	return retrieval.LoadVocabulary(path)
}
