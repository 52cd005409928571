package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astrali/finrag/internal/config"
	"github.com/astrali/finrag/internal/embedder"
	"github.com/astrali/finrag/internal/llm"
	"github.com/astrali/finrag/internal/marketdata"
	"github.com/astrali/finrag/internal/pipeline"
	"github.com/astrali/finrag/internal/reranker"
	"github.com/astrali/finrag/internal/server"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting finrag service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
		"embedding_provider", cfg.EmbeddingProvider,
		"generation_provider", cfg.GenerationProvider,
	)

	emb, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	slog.Info("initialized embedder", "model", emb.ModelName(), "dimension", emb.Dimension())

	llmClient, model, err := buildLLM(cfg)
	if err != nil {
		return err
	}
	slog.Info("initialized LLM", "model", model)

	fetcher := marketdata.NewChartFetcher(marketdata.ChartConfig{
		BaseURL:    cfg.MarketDataURL,
		HTTPClient: &http.Client{Timeout: cfg.FetchTimeout},
		Logger:     slog.Default(),
	})

	svcOpts := []pipeline.ServiceOption{
		pipeline.WithFetcher(fetcher),
		pipeline.WithLogger(slog.Default()),
	}
	switch cfg.RerankProvider {
	case "llm":
		svcOpts = append(svcOpts, pipeline.WithReranker(reranker.NewLLMReranker(llmClient)))
	case "none":
		svcOpts = append(svcOpts, pipeline.WithReranker(&reranker.Passthrough{}))
	case "lexical", "":
		svcOpts = append(svcOpts, pipeline.WithReranker(&reranker.LexicalReranker{
			MinScore: float32(cfg.RerankMinScore),
			Logger:   slog.Default(),
		}))
	default:
		return fmt.Errorf("unknown rerank provider %q", cfg.RerankProvider)
	}

	svc := pipeline.NewService(emb, llmClient, pipeline.Options{
		TopK:            cfg.TopK,
		RerankTopK:      cfg.RerankTopK,
		MaxContextChars: cfg.MaxContextChars,
		MaxSourceBytes:  cfg.MaxSourceBytes,
		MaxChunkChars:   cfg.MaxChunkChars,
		MarketWindow:    cfg.MarketWindow,
		BuildWorkers:    cfg.BuildWorkers,
		EmbedTimeout:    cfg.EmbedTimeout,
		GenerateTimeout: cfg.GenerateTimeout,
		Model:           model,
	}, svcOpts...)

	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		APIKey:         cfg.APIKey,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production
		MaxSourceBytes: cfg.MaxSourceBytes,
		PeriodMonths:   cfg.MarketPeriodMonths,
		Service:        svc,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func buildEmbedder(cfg *config.Config) (embedder.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "ollama":
		return embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaEmbeddingModel,
		}), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai embedding provider")
		}
		return embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIEmbeddingModel,
		}), nil
	case "hash":
		return embedder.NewHashEmbedder(0), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func buildLLM(cfg *config.Config) (llm.LLM, string, error) {
	switch cfg.GenerationProvider {
	case "ollama":
		return llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.OllamaLLMModel),
		), cfg.OllamaLLMModel, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY is required for the openai generation provider")
		}
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey,
			llm.WithOpenAIModel(cfg.OpenAILLMModel),
		), cfg.OpenAILLMModel, nil
	default:
		return nil, "", fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
	}
}
