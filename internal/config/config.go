package config

import (
	"os"
	"strconv"
	"time"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

type Config struct {
	APIPort  string
	LogLevel string

	// APIRateLimitRPS <= 0 disables the request limiter.
	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration
	APIRequestTimeout   time.Duration
	// APIKey enables bearer authentication on the /v1 endpoints.
	APIKey               string
	APIMaxRetries        int
	APIMaxFanOut         int
	APIAllowLLMOverrides bool

	// PostgresDSN enables run persistence when set.
	PostgresDSN string

	// NATSURL enables asynchronous runs when set.
	NATSURL     string
	NATSSubject string

	LLMBackend    string
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMEmbedModel string

	LLMRateLimitPerSecond float64
	LLMRateLimitBurst     int
	LLMBreakerEnabled     bool

	PromptBankPath string

	SearchBackend    string
	SearchThreads    int
	SearchCorpusPath string
	// ChunkSize and ChunkOverlap are in words; 0 indexes whole documents.
	ChunkSize    int
	ChunkOverlap int

	QdrantURL        string
	QdrantCollection string
	QdrantAPIKey     string
	QdrantContentKey string
	QdrantDense      bool

	MeiliHost   string
	MeiliAPIKey string
	MeiliIndex  string

	FewShotQueriesPath    string
	FewShotCollectionPath string
	FewShotQrelsPath      string

	WorkerMetricsPort string
}

const (
	SearchNone   = "none"
	SearchMemory = "memory"
	SearchQdrant = "qdrant"
	SearchMeili  = "meili"
)

// RequestLimits are the bounds applied to method configs from API and MCP
// callers.
func (c Config) RequestLimits() domain.RequestLimits {
	return domain.RequestLimits{
		MaxRetries:            c.APIMaxRetries,
		MaxFanOut:             c.APIMaxFanOut,
		AllowEndpointOverride: c.APIAllowLLMOverrides,
	}
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		APIRateLimitRPS:      mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:    mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:       mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIBackpressureWait:  time.Duration(mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250)) * time.Millisecond,
		APIRequestTimeout:    time.Duration(mustEnvInt("API_REQUEST_TIMEOUT_SECONDS", 600)) * time.Second,
		APIKey:               mustEnv("API_KEY", ""),
		APIMaxRetries:        mustEnvInt("API_MAX_RETRIES", 5),
		APIMaxFanOut:         mustEnvInt("API_MAX_FANOUT", 32),
		APIAllowLLMOverrides: mustEnvBool("API_ALLOW_LLM_OVERRIDES", false),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "reformulation.runs"),

		LLMBackend:    mustEnv("LLM_BACKEND", "openai"),
		LLMBaseURL:    mustEnv("LLM_BASE_URL", "http://localhost:8000/v1"),
		LLMAPIKey:     mustEnv("LLM_API_KEY", ""),
		LLMModel:      mustEnv("LLM_MODEL", "qwen2.5-7b-instruct"),
		LLMEmbedModel: mustEnv("LLM_EMBED_MODEL", ""),

		LLMRateLimitPerSecond: mustEnvFloat("LLM_RATE_LIMIT_PER_SECOND", 0),
		LLMRateLimitBurst:     mustEnvInt("LLM_RATE_LIMIT_BURST", 1),
		LLMBreakerEnabled:     mustEnvBool("LLM_BREAKER_ENABLED", true),

		PromptBankPath: mustEnv("PROMPT_BANK_PATH", ""),

		SearchBackend:    mustEnv("SEARCH_BACKEND", SearchNone),
		SearchThreads:    mustEnvInt("SEARCH_THREADS", 16),
		SearchCorpusPath: mustEnv("SEARCH_CORPUS_PATH", ""),
		ChunkSize:        mustEnvInt("CHUNK_SIZE", 0),
		ChunkOverlap:     mustEnvInt("CHUNK_OVERLAP", 0),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "passages"),
		QdrantAPIKey:     mustEnv("QDRANT_API_KEY", ""),
		QdrantContentKey: mustEnv("QDRANT_CONTENT_KEY", "contents"),
		QdrantDense:      mustEnvBool("QDRANT_DENSE", false),

		MeiliHost:   mustEnv("MEILI_HOST", "http://localhost:7700"),
		MeiliAPIKey: mustEnv("MEILI_API_KEY", ""),
		MeiliIndex:  mustEnv("MEILI_INDEX", "passages"),

		FewShotQueriesPath:    mustEnv("FEWSHOT_QUERIES_PATH", ""),
		FewShotCollectionPath: mustEnv("FEWSHOT_COLLECTION_PATH", ""),
		FewShotQrelsPath:      mustEnv("FEWSHOT_QRELS_PATH", ""),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

// FewShotConfigured reports whether all three training files are set.
func (c Config) FewShotConfigured() bool {
	return c.FewShotQueriesPath != "" && c.FewShotCollectionPath != "" && c.FewShotQrelsPath != ""
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
