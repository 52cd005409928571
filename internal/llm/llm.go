// Package llm provides the generation capability: prompt in, answer text
// out. Provider internals (Ollama, OpenAI) stay behind the LLM interface;
// the pipeline never depends on a specific vendor.
package llm

import (
	"context"
)

// GenerateOptions configures a generation request.
type GenerateOptions struct {
	// Model overrides the client's default model when non-empty.
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float32

	// MaxTokens limits the response length. 0 means provider default.
	MaxTokens int
}

// StreamChunk is a single fragment of a streamed response.
type StreamChunk struct {
	// Token contains the generated text fragment.
	Token string

	// Done indicates the final chunk of the stream.
	Done bool

	// Error carries a mid-stream failure; the channel closes after it.
	Error error
}

// LLM defines the interface for answer generation clients.
type LLM interface {
	// Generate sends a prompt and blocks until the full response arrives.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream sends a prompt and returns a channel of response
	// fragments. The channel closes when generation completes or fails;
	// callers must check StreamChunk.Error.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error)
}
