package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is the default OpenAI chat model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient implements the LLM interface using the OpenAI chat API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// OpenAIOption is a functional option for configuring OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithOpenAIModel sets the default model for the client.
func WithOpenAIModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.model = model
	}
}

// NewOpenAIClient creates a new OpenAI LLM client.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  DefaultOpenAIModel,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Generate sends a prompt and returns the complete response.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.buildParams(prompt, opts))
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream sends a prompt and streams response chunks.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.buildParams(prompt, opts))

	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for stream.Next() {
			current := stream.Current()
			if len(current.Choices) == 0 {
				continue
			}

			token := current.Choices[0].Delta.Content
			done := current.Choices[0].FinishReason != ""

			select {
			case <-ctx.Done():
				chunks <- StreamChunk{Error: ctx.Err(), Done: true}
				return
			case chunks <- StreamChunk{Token: token, Done: done}:
			}
		}

		if err := stream.Err(); err != nil {
			chunks <- StreamChunk{Error: fmt.Errorf("openai stream: %w", err), Done: true}
		}
	}()

	return chunks, nil
}

func (c *OpenAIClient) buildParams(prompt string, opts GenerateOptions) openai.ChatCompletionNewParams {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(opts.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(float64(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	return params
}

// Ensure OpenAIClient implements LLM interface.
var _ LLM = (*OpenAIClient)(nil)
