package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/medibot/internal/apperr"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Index    IndexConfig
	Ingest   IngestConfig
	RAG      RAGConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	TemplateDir string
	StaticDir   string
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	GeminiKey        string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	FallbackModel    string
	MaxRetries       int
	Temperature      float64

	EmbeddingProvider string
	EmbeddingModel    string
}

type IndexConfig struct {
	Name      string
	Dimension int
	Metric    string
	Cloud     string
	Region    string
}

type IngestConfig struct {
	PDFPath      string
	BatchSize    int
	ChunkSize    int
	ChunkOverlap int
}

type RAGConfig struct {
	TopK            int
	MaxHistoryTurns int
	AnswerCacheTTL  time.Duration
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, apperr.Config("load .env", err)
	}

	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, apperr.Config("invalid SERVER_PORT", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, apperr.Config("invalid DB_MAX_CONNS", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, apperr.Config("invalid DB_MIN_CONNS", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, apperr.Config("invalid REDIS_DB", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 2)
	if err != nil {
		return nil, apperr.Config("invalid LLM_MAX_RETRIES", err)
	}

	temperature, err := getEnvFloat("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return nil, apperr.Config("invalid LLM_TEMPERATURE", err)
	}

	dimension, err := getEnvInt("INDEX_DIMENSION", 768)
	if err != nil {
		return nil, apperr.Config("invalid INDEX_DIMENSION", err)
	}

	batchSize, err := getEnvInt("INGEST_BATCH_SIZE", 32)
	if err != nil {
		return nil, apperr.Config("invalid INGEST_BATCH_SIZE", err)
	}

	chunkSize, err := getEnvInt("CHUNK_SIZE", 1000)
	if err != nil {
		return nil, apperr.Config("invalid CHUNK_SIZE", err)
	}

	chunkOverlap, err := getEnvInt("CHUNK_OVERLAP", 200)
	if err != nil {
		return nil, apperr.Config("invalid CHUNK_OVERLAP", err)
	}

	topK, err := getEnvInt("RAG_TOP_K", 5)
	if err != nil {
		return nil, apperr.Config("invalid RAG_TOP_K", err)
	}

	historyTurns, err := getEnvInt("RAG_MAX_HISTORY_TURNS", 10)
	if err != nil {
		return nil, apperr.Config("invalid RAG_MAX_HISTORY_TURNS", err)
	}

	cacheTTL, err := getEnvDuration("ANSWER_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, apperr.Config("invalid ANSWER_CACHE_TTL", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        port,
			TemplateDir: getEnv("TEMPLATE_DIR", ""),
			StaticDir:   getEnv("STATIC_DIR", ""),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		LLM: LLMConfig{
			OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:      getEnv("ANTHROPIC_API_KEY", ""),
			GeminiKey:         getEnv("GOOGLE_API_KEY", ""),
			OllamaURL:         getEnv("OLLAMA_URL", ""),
			DefaultProvider:   getEnv("LLM_DEFAULT_PROVIDER", "gemini"),
			DefaultModel:      getEnv("LLM_DEFAULT_MODEL", "gemini-2.0-flash"),
			FallbackProvider:  getEnv("LLM_FALLBACK_PROVIDER", ""),
			FallbackModel:     getEnv("LLM_FALLBACK_MODEL", ""),
			MaxRetries:        maxRetries,
			Temperature:       temperature,
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "gemini"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		},
		Index: IndexConfig{
			Name:      getEnv("INDEX_NAME", "diabetes-knowledge"),
			Dimension: dimension,
			Metric:    getEnv("INDEX_METRIC", "cosine"),
			Cloud:     getEnv("INDEX_CLOUD", "aws"),
			Region:    getEnv("INDEX_REGION", "us-east-1"),
		},
		Ingest: IngestConfig{
			PDFPath:      getEnv("INGEST_PDF_PATH", "knowledge_source/diabetes_common.pdf"),
			BatchSize:    batchSize,
			ChunkSize:    chunkSize,
			ChunkOverlap: chunkOverlap,
		},
		RAG: RAGConfig{
			TopK:            topK,
			MaxHistoryTurns: historyTurns,
			AnswerCacheTTL:  cacheTTL,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports every missing required setting at once. The database and
// the API keys of the selected chat and embedding providers are required.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	for _, p := range []string{c.LLM.DefaultProvider, c.LLM.EmbeddingProvider} {
		if key := c.LLM.requiredKey(p); key != "" && !contains(missing, key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return apperr.Config("validate", fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", ")))
	}

	switch c.LLM.DefaultProvider {
	case "openai", "anthropic", "gemini", "ollama":
	default:
		return apperr.Config("validate", fmt.Errorf("unknown LLM_DEFAULT_PROVIDER %q", c.LLM.DefaultProvider))
	}
	switch c.LLM.EmbeddingProvider {
	case "openai", "gemini", "ollama":
	default:
		return apperr.Config("validate", fmt.Errorf("provider %q cannot produce embeddings", c.LLM.EmbeddingProvider))
	}
	if c.Index.Dimension <= 0 {
		return apperr.Config("validate", fmt.Errorf("INDEX_DIMENSION must be positive, got %d", c.Index.Dimension))
	}
	if c.Ingest.BatchSize <= 0 {
		return apperr.Config("validate", fmt.Errorf("INGEST_BATCH_SIZE must be positive, got %d", c.Ingest.BatchSize))
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return apperr.Config("validate", fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize))
	}
	return nil
}

// requiredKey returns the env var holding the API key for provider p, or ""
// when the provider needs none or its key is already set.
func (c LLMConfig) requiredKey(p string) string {
	switch p {
	case "openai":
		if c.OpenAIKey == "" {
			return "OPENAI_API_KEY"
		}
	case "anthropic":
		if c.AnthropicKey == "" {
			return "ANTHROPIC_API_KEY"
		}
	case "gemini":
		if c.GeminiKey == "" {
			return "GOOGLE_API_KEY"
		}
	case "ollama":
		if c.OllamaURL == "" {
			return "OLLAMA_URL"
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
