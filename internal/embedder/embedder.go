// Package embedder provides interfaces and implementations for text embedding.
package embedder

import (
	"context"
	"fmt"
)

// Embedder defines the interface for text embedding services.
//
// A single instance must be deterministic: embedding the same text twice
// yields the same vector. The semantic index relies on this to make
// rebuilds reproducible.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple text inputs.
	// Returns a slice of embeddings in the same order as the input texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// Error reports a failed or rejected embedding call.
type Error struct {
	Model string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding with %s: %v", e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrEmptyText rejects embedding requests with no content.
var ErrEmptyText = fmt.Errorf("text is empty")

// ErrInputTooLong rejects inputs beyond a model's context capacity.
var ErrInputTooLong = fmt.Errorf("input exceeds model limit")

// ModelConfig holds configuration for a specific embedding model.
type ModelConfig struct {
	Dimension     int // Embedding dimension
	MaxInputChars int // Conservative input cap to stay under the context window
}

// KnownModels maps embedding model names to their configurations.
// These limits are conservative to avoid "context length exceeded" errors.
var KnownModels = map[string]ModelConfig{
	"nomic-embed-text": {
		Dimension:     768,
		MaxInputChars: 24000,
	},
	"mxbai-embed-large": {
		Dimension:     1024,
		MaxInputChars: 1500,
	},
	"all-minilm": {
		Dimension:     384,
		MaxInputChars: 800,
	},
	"text-embedding-3-small": {
		Dimension:     1536,
		MaxInputChars: 24000,
	},
	"text-embedding-3-large": {
		Dimension:     3072,
		MaxInputChars: 24000,
	},
}

// GetModelConfig returns the configuration for a model, or defaults if unknown.
func GetModelConfig(modelName string) ModelConfig {
	if cfg, ok := KnownModels[modelName]; ok {
		return cfg
	}
	// Conservative defaults for unknown models
	return ModelConfig{
		Dimension:     768,
		MaxInputChars: 6000,
	}
}

// validateInput applies the shared input checks for all implementations.
func validateInput(model, text string, maxChars int) error {
	if text == "" {
		return &Error{Model: model, Err: ErrEmptyText}
	}
	if maxChars > 0 && len(text) > maxChars {
		return &Error{Model: model, Err: fmt.Errorf("%w: %d chars, limit %d", ErrInputTooLong, len(text), maxChars)}
	}
	return nil
}
