package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Typesense   TypesenseConfig
	RAG         RAGConfig
	Embedding   EmbeddingConfig
	Providers   ProvidersConfig
	OTEL        OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds conversation store configuration
type DatabaseConfig struct {
	Driver     string // postgres, sqlite or memory
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	SQLitePath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	Enabled bool
	URL     string
	APIKey  string
}

// RAGConfig holds retrieval configuration
type RAGConfig struct {
	CorpusPath       string
	CachePath        string
	VocabularyPath   string
	TopK             int
	Threshold        float64
	MaxMessages      int
	ContextMaxTokens int
	BuildWorkers     int
	BuildBatchSize   int
	QueryCacheTTL    time.Duration
	QueryCacheSize   int
}

// EmbeddingConfig selects the embedding model shared by index build and query time
type EmbeddingConfig struct {
	Provider  string // hashing or openai
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
}

// ProviderConfig holds settings for one generation backend
type ProviderConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	RateLimit int // requests per minute, 0 disables
}

// Configured reports whether the provider has enough settings to be called
func (p ProviderConfig) Configured() bool {
	return p.Model != "" && (p.APIKey != "" || p.BaseURL != "")
}

// ProvidersConfig holds generation router configuration
type ProvidersConfig struct {
	Default     string
	Timeout     time.Duration
	HealthTTL   time.Duration
	Temperature float64
	MaxTokens   int
	OpenAI      ProviderConfig
	Groq        ProviderConfig
	Gemini      ProviderConfig
	Ollama      ProviderConfig
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvAsInt("DB_PORT", 5432),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			Database:   getEnv("DB_NAME", "carechat"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "data/carechat.db"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			Enabled: getEnvAsBool("TYPESENSE_ENABLED", false),
			URL:     getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey:  getEnv("TYPESENSE_API_KEY", "xyz"),
		},
		RAG: RAGConfig{
			CorpusPath:       getEnv("RAG_CORPUS_PATH", "data/cases.csv"),
			CachePath:        getEnv("RAG_CACHE_PATH", "data/index.bolt"),
			VocabularyPath:   getEnv("RAG_VOCABULARY_PATH", ""),
			TopK:             getEnvAsInt("RAG_TOP_K", 3),
			Threshold:        getEnvAsFloat("RAG_THRESHOLD", 0.3),
			MaxMessages:      getEnvAsInt("RAG_MAX_MESSAGES", 5),
			ContextMaxTokens: getEnvAsInt("RAG_CONTEXT_MAX_TOKENS", 1200),
			BuildWorkers:     getEnvAsInt("RAG_BUILD_WORKERS", 4),
			BuildBatchSize:   getEnvAsInt("RAG_BUILD_BATCH_SIZE", 64),
			QueryCacheTTL:    getEnvAsDuration("RAG_QUERY_CACHE_TTL", time.Hour),
			QueryCacheSize:   getEnvAsInt("RAG_QUERY_CACHE_SIZE", 1024),
		},
		Embedding: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", "hashing")),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:   getEnv("EMBEDDING_BASE_URL", ""),
			APIKey:    getEnv("EMBEDDING_API_KEY", getEnv("OPENAI_API_KEY", "")),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 384),
		},
		Providers: ProvidersConfig{
			Default:     strings.ToLower(getEnv("PROVIDER_DEFAULT", "gemini")),
			Timeout:     getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
			HealthTTL:   getEnvAsDuration("PROVIDER_HEALTH_TTL", 30*time.Second),
			Temperature: getEnvAsFloat("PROVIDER_TEMPERATURE", 0.4),
			MaxTokens:   getEnvAsInt("PROVIDER_MAX_TOKENS", 1024),
			OpenAI: ProviderConfig{
				APIKey:    getEnv("OPENAI_API_KEY", ""),
				Model:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				BaseURL:   getEnv("OPENAI_BASE_URL", ""),
				RateLimit: getEnvAsInt("OPENAI_RATE_LIMIT_RPM", 60),
			},
			Groq: ProviderConfig{
				APIKey:    getEnv("GROQ_API_KEY", ""),
				Model:     getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
				BaseURL:   getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
				RateLimit: getEnvAsInt("GROQ_RATE_LIMIT_RPM", 30),
			},
			Gemini: ProviderConfig{
				APIKey:    getEnv("GEMINI_API_KEY", ""),
				Model:     getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
				BaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
				RateLimit: getEnvAsInt("GEMINI_RATE_LIMIT_RPM", 60),
			},
			Ollama: ProviderConfig{
				Model:     getEnv("OLLAMA_MODEL", ""),
				BaseURL:   getEnv("OLLAMA_BASE_URL", ""),
				RateLimit: getEnvAsInt("OLLAMA_RATE_LIMIT_RPM", 0),
			},
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "carechat-rag"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside a request
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Embedding.Provider {
	case "hashing", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported EMBEDDING_PROVIDER %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.Embedding.Dimension)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.Threshold < -1 || c.RAG.Threshold > 1 {
		return fmt.Errorf("RAG_THRESHOLD must be within [-1, 1], got %v", c.RAG.Threshold)
	}
	if c.RAG.MaxMessages < 0 {
		return fmt.Errorf("RAG_MAX_MESSAGES must not be negative, got %d", c.RAG.MaxMessages)
	}
	if c.Providers.Timeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.Providers.Timeout)
	}
	return nil
}

// Named returns the generation provider settings keyed by provider name
func (p *ProvidersConfig) Named() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai": p.OpenAI,
		"groq":   p.Groq,
		"gemini": p.Gemini,
		"ollama": p.Ollama,
	}
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45s") or plain seconds ("45")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
