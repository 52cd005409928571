// Package config loads configuration from environment variables and .env files.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the finrag service
type Config struct {
	// Server
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// APIKey protects the HTTP surface. Empty disables auth (development).
	APIKey string `env:"FINRAG_API_KEY"`

	// EmbeddingProvider is "ollama", "openai", or "hash" (offline,
	// deterministic). GenerationProvider is "ollama" or "openai"; there
	// is no offline generator.
	EmbeddingProvider  string `env:"EMBEDDING_PROVIDER" envDefault:"ollama"`
	GenerationProvider string `env:"GENERATION_PROVIDER" envDefault:"ollama"`

	// Ollama
	OllamaURL            string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbeddingModel string `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	OllamaLLMModel       string `env:"OLLAMA_LLM_MODEL" envDefault:"llama3.2"`

	// OpenAI
	OpenAIAPIKey         string `env:"OPENAI_API_KEY"`
	OpenAIEmbeddingModel string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	OpenAILLMModel       string `env:"OPENAI_LLM_MODEL" envDefault:"gpt-4o-mini"`

	// External call deadlines
	EmbedTimeout    time.Duration `env:"EMBED_TIMEOUT" envDefault:"30s"`
	GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"2m"`
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`

	// Extraction
	MaxSourceBytes     int64  `env:"MAX_SOURCE_BYTES" envDefault:"33554432"`
	MaxChunkChars      int    `env:"MAX_CHUNK_CHARS" envDefault:"2000"`
	MarketWindow       string `env:"MARKET_WINDOW" envDefault:"quarter"`
	MarketPeriodMonths int    `env:"MARKET_PERIOD_MONTHS" envDefault:"20"`

	// Retrieval
	RerankProvider  string  `env:"RERANK_PROVIDER" envDefault:"lexical"` // "lexical", "llm", or "none"
	TopK            int     `env:"TOP_K" envDefault:"5"`
	RerankTopK      int     `env:"RERANK_TOP_K" envDefault:"4"`
	RerankMinScore  float64 `env:"RERANK_MIN_SCORE" envDefault:"0"`
	MaxContextChars int     `env:"MAX_CONTEXT_CHARS" envDefault:"12000"`
	BuildWorkers    int     `env:"BUILD_WORKERS" envDefault:"4"`

	// Market data source
	MarketDataURL string `env:"MARKET_DATA_URL" envDefault:"https://query1.finance.yahoo.com"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
