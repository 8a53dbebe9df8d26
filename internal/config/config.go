package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Resume document that gets indexed at startup.
	ResumePath string

	// LLM backends
	GeminiAPIKey   string
	GeminiModel    string
	GeminiTier     string
	OpenAIAPIKey   string
	OpenAIModel    string
	BackendOrder   []string // default fallback order, e.g. "gemini,openai"
	DefaultTimeout int      // per-attempt timeout in seconds
	RetryBackoffMs int      // backoff before the single transient retry
	// Whether the fallback chain advances past a content-policy rejection.
	AdvanceOnPolicyError bool

	// Embeddings
	EmbeddingsProvider    string // "google" (default) or "openai"
	GoogleEmbeddingsModel string
	OpenAIEmbeddingsModel string
	EmbeddingCacheSize    int
	MaxEmbeddingInput     int // runes; longer inputs are truncated

	// Retrieval
	RetrievalTopK          int
	RetrievalVectorWeight  float64
	RetrievalLexicalWeight float64
	CitationMinRelevance   float64

	// Job matching
	MatchSkillsWeight     float64
	MatchExperienceWeight float64
	MatchEducationWeight  float64
	MatchKeywordsWeight   float64
	MatchSkillThreshold   float64
	// Years of shortfall that still earns partial experience credit.
	ExperienceToleranceYears int

	// Redis (rate limiting + asynq broker)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Mongo (chat history + saved analyses)
	MongoURI string
	DBName   string

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Background reindex schedule (cron spec for the worker), empty disables.
	ReindexCron string

	// Telemetry
	OTLPEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		ResumePath: getEnv("RESUME_PATH", "./data/resume.pdf"),

		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:           getEnv("GEMINI_TIER", "free"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		BackendOrder:         strings.Split(getEnv("LLM_BACKEND_ORDER", "gemini,openai"), ","),
		DefaultTimeout:       getEnvInt("LLM_TIMEOUT_SECONDS", 30),
		RetryBackoffMs:       getEnvInt("LLM_RETRY_BACKOFF_MS", 250),
		AdvanceOnPolicyError: getEnvBool("LLM_ADVANCE_ON_POLICY_ERROR", false),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		EmbeddingCacheSize:    getEnvInt("EMBEDDING_CACHE_SIZE", 10000),
		MaxEmbeddingInput:     getEnvInt("MAX_EMBEDDING_INPUT", 8000),

		RetrievalTopK:          getEnvInt("RETRIEVAL_TOP_K", 5),
		RetrievalVectorWeight:  getEnvFloat64("RETRIEVAL_VECTOR_WEIGHT", 0.7),
		RetrievalLexicalWeight: getEnvFloat64("RETRIEVAL_LEXICAL_WEIGHT", 0.3),
		CitationMinRelevance:   getEnvFloat64("CITATION_MIN_RELEVANCE", 0.1),

		MatchSkillsWeight:        getEnvFloat64("MATCH_SKILLS_WEIGHT", 0.40),
		MatchExperienceWeight:    getEnvFloat64("MATCH_EXPERIENCE_WEIGHT", 0.25),
		MatchEducationWeight:     getEnvFloat64("MATCH_EDUCATION_WEIGHT", 0.15),
		MatchKeywordsWeight:      getEnvFloat64("MATCH_KEYWORDS_WEIGHT", 0.20),
		MatchSkillThreshold:      getEnvFloat64("MATCH_SKILL_THRESHOLD", 0.25),
		ExperienceToleranceYears: getEnvInt("EXPERIENCE_TOLERANCE_YEARS", 2),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/resume_ai"),
		DBName:   getEnv("DB_NAME", "resume_ai"),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		ReindexCron: getEnv("REINDEX_CRON", ""),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("at least one of GEMINI_API_KEY or OPENAI_API_KEY is required - set it in .env file")
	}

	if cfg.RetrievalVectorWeight < 0 || cfg.RetrievalLexicalWeight < 0 {
		return nil, fmt.Errorf("retrieval weights must be non-negative")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
