package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pdf-rag/internal/domain"
)

// Chunk store backends.
const (
	StorePgvector = "pgvector"
	StoreQdrant   = "qdrant"
	StoreMemory   = "memory"
)

// Job queue backends.
const (
	QueuePostgres = "postgres"
	QueueRedis    = "redis"
)

type Config struct {
	Env      string
	Port     string
	HTTPH2C  bool
	LogLevel string

	DB        DBConfig
	Store     StoreConfig
	Embedding EmbeddingConfig
	RAG       RAGConfig
	LLM       LLMConfig
	Jobs      JobsConfig
	OTel      OTelConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int
}

// DSN renders the pgx connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type StoreConfig struct {
	Backend    string
	VectorURL  string
	APIKey     string
	Collection string
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	CacheSize int
	CacheTTL  time.Duration
}

// ProviderConfig returns the embedder selection for the LLM gateway.
func (c EmbeddingConfig) ProviderConfig() domain.ProviderConfig {
	return domain.ProviderConfig{Provider: c.Provider, Model: c.Model, BaseURL: c.BaseURL}
}

type RAGConfig struct {
	Segmentor          string
	KeywordK           int
	SemanticK          int
	PromptTemplateFile string
	RebuildAfterIngest bool
	ModelsFile         string
	// Models maps the public model name to a provider selection.
	Models map[string]domain.ProviderConfig
}

type LLMConfig struct {
	Timeout      time.Duration
	RateLimitRPS float64
}

type JobsConfig struct {
	Queue               string
	RedisURL            string
	RedisPrefix         string
	MarkdownFolder      string
	WatchMarkdownFolder bool
	BackendServerURL    string
	PollInterval        time.Duration
}

type OTelConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRatio float64
}

// DefaultModels is the catalogue used when no models file is configured.
func DefaultModels() map[string]domain.ProviderConfig {
	return map[string]domain.ProviderConfig{
		domain.ProviderGemini: {Provider: domain.ProviderGemini},
		domain.ProviderOpenAI: {Provider: domain.ProviderOpenAI},
		domain.ProviderOllama: {Provider: domain.ProviderOllama},
	}
}

// Load reads the configuration from the environment, plus the model
// catalogue file when RAG_MODELS_FILE is set.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnv("PORT", "5000"),
		HTTPH2C:  getEnvBool("HTTP_H2C", true),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "rag_user"),
			Password: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "rag_password"),
			Name:     getEnv("DB_NAME", "rag_db"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("CHUNK_STORE", StorePgvector)),
			VectorURL:  getEnv("VECTOR_STORE_URL", "http://localhost:6333"),
			APIKey:     getSecret("VECTOR_STORE_API_KEY", "VECTOR_STORE_API_KEY_FILE", ""),
			Collection: getEnv("VECTOR_STORE_COLLECTION", "rag_chunks"),
		},
		Embedding: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", domain.ProviderGemini)),
			Model:     getEnv("EMBEDDING_MODEL", ""),
			BaseURL:   getEnv("EMBEDDING_BASE_URL", ""),
			CacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", 512),
			CacheTTL:  time.Duration(getEnvInt("EMBEDDING_CACHE_TTL_MINUTES", 30)) * time.Minute,
		},
		RAG: RAGConfig{
			Segmentor:          getEnv("RAG_SEGMENTOR", domain.SegmentorMarkdownHeader),
			KeywordK:           getEnvInt("RAG_KEYWORD_K", 1),
			SemanticK:          getEnvInt("RAG_SEMANTIC_K", 1),
			PromptTemplateFile: getEnv("RAG_PROMPT_TEMPLATE_FILE", ""),
			RebuildAfterIngest: getEnvBool("RAG_REBUILD_AFTER_INGEST", true),
			ModelsFile:         getEnv("RAG_MODELS_FILE", ""),
		},
		LLM: LLMConfig{
			Timeout:      time.Duration(getEnvInt("LLM_TIMEOUT_SECONDS", 120)) * time.Second,
			RateLimitRPS: getEnvFloat("LLM_RATE_LIMIT_RPS", 0),
		},
		Jobs: JobsConfig{
			Queue:               strings.ToLower(getEnv("JOB_QUEUE", QueuePostgres)),
			RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisPrefix:         getEnv("REDIS_PREFIX", "pdfrag"),
			MarkdownFolder:      getEnv("MARKDOWN_FOLDER", "./data/markdown"),
			WatchMarkdownFolder: getEnvBool("WATCH_MARKDOWN_FOLDER", false),
			BackendServerURL:    getEnv("BACKEND_SERVER_URL", ""),
			PollInterval:        time.Duration(getEnvInt("JOB_POLL_INTERVAL_MS", 100)) * time.Millisecond,
		},
		OTel: OTelConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "pdf-rag"),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
			SampleRatio: getEnvFloat("OTEL_TRACE_SAMPLE_RATIO", 1.0),
		},
	}

	cfg.RAG.Models = DefaultModels()
	if cfg.RAG.ModelsFile != "" {
		models, err := LoadModelCatalogue(cfg.RAG.ModelsFile)
		if err != nil {
			return nil, err
		}
		cfg.RAG.Models = models
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StorePgvector, StoreQdrant, StoreMemory:
	default:
		return fmt.Errorf("%w: chunk store %q", domain.ErrUnknownStrategy, c.Store.Backend)
	}
	switch c.Jobs.Queue {
	case QueuePostgres, QueueRedis:
	default:
		return fmt.Errorf("%w: job queue %q", domain.ErrUnknownStrategy, c.Jobs.Queue)
	}
	if c.RAG.KeywordK < 1 || c.RAG.SemanticK < 1 {
		return fmt.Errorf("retrieval k must be positive: keyword=%d semantic=%d", c.RAG.KeywordK, c.RAG.SemanticK)
	}
	return nil
}

type modelCatalogue struct {
	Models map[string]domain.ProviderConfig `yaml:"models"`
}

// LoadModelCatalogue parses a YAML file of the form
//
//	models:
//	  gemini:
//	    provider: gemini
//	    model: gemini-1.5-flash
//
// An entry without a provider uses its own name as the provider.
func LoadModelCatalogue(path string) (map[string]domain.ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalogue: %w", err)
	}
	var cat modelCatalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse model catalogue %s: %w", path, err)
	}
	if len(cat.Models) == 0 {
		return nil, fmt.Errorf("model catalogue %s defines no models", path)
	}
	for name, pc := range cat.Models {
		if pc.Provider == "" {
			pc.Provider = name
		}
		pc.Provider = strings.ToLower(pc.Provider)
		cat.Models[name] = pc
	}
	return cat.Models, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getSecret prefers envKey and falls back to the file named by fileEnvKey.
func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
