package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/astrali/finrag/internal/llm"
)

// LLMReranker uses an LLM to re-score query-document pairs, a
// cross-encoder style approach: the model sees query and chunk together,
// which judges relevance far better than independent embeddings.
type LLMReranker struct {
	llmClient llm.LLM
	model     string
	minScore  float32
	logger    *slog.Logger
}

// LLMRerankerOption is a functional option for configuring LLMReranker.
type LLMRerankerOption func(*LLMReranker)

// WithModel sets the model used for scoring.
func WithModel(model string) LLMRerankerOption {
	return func(r *LLMReranker) {
		r.model = model
	}
}

// WithMinScore drops candidates scoring below the floor.
func WithMinScore(minScore float32) LLMRerankerOption {
	return func(r *LLMReranker) {
		r.minScore = minScore
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(logger *slog.Logger) LLMRerankerOption {
	return func(r *LLMReranker) {
		r.logger = logger
	}
}

// NewLLMReranker creates a new LLM-based reranker.
func NewLLMReranker(llmClient llm.LLM, opts ...LLMRerankerOption) *LLMReranker {
	r := &LLMReranker{
		llmClient: llmClient,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// relevanceScore represents the structured output from the LLM.
type relevanceScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float32 `json:"score"`
}

type rerankResponse struct {
	Scores []relevanceScore `json:"scores"`
}

// Rerank asks the LLM to score every candidate's relevance to the query
// in one call. Candidates the model omits from its answer are dropped
// with a warning; a generation failure or an unparseable answer fails the
// whole call with ErrNoScores so the caller can fall back.
func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Scored, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	prompt := r.buildPrompt(query, candidates)

	response, err := r.llmClient.Generate(ctx, prompt, llm.GenerateOptions{
		Model:       r.model,
		Temperature: 0.0, // Deterministic scoring
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scoring call failed: %w", ErrNoScores, err)
	}

	byIndex, err := r.parseResponse(response, len(candidates))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoScores, err)
	}

	scored := make([]Scored, 0, len(candidates))
	for i, cand := range candidates {
		score, ok := byIndex[i]
		if !ok {
			r.logger.Warn("dropping candidate the model did not score", "chunk_id", cand.ChunkID)
			continue
		}
		if score < r.minScore {
			continue
		}
		scored = append(scored, Scored{ChunkID: cand.ChunkID, Relevance: score})
	}

	if len(byIndex) == 0 {
		return nil, ErrNoScores
	}

	sortByRelevance(scored)
	return scored, nil
}

// buildPrompt constructs the scoring prompt.
func (r *LLMReranker) buildPrompt(query string, candidates []Candidate) string {
	var sb strings.Builder

	sb.WriteString("You are a relevance scoring system. Score each document's relevance to the query.\n\n")
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("Documents to score:\n")
	for i, cand := range candidates {
		// Truncate content to avoid token limits
		content := cand.Text
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		sb.WriteString(fmt.Sprintf("[Doc %d]: %s\n\n", i, content))
	}

	sb.WriteString(`Score each document from 0.0 to 1.0 based on relevance to the query.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 0.9}, {"doc_index": 1, "score": 0.3}, ...]}

Be strict: irrelevant documents should score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.
Output only JSON, no explanation:`)

	return sb.String()
}

// parseResponse extracts per-candidate scores from the LLM response.
func (r *LLMReranker) parseResponse(response string, numCandidates int) (map[int]float32, error) {
	response = strings.TrimSpace(response)

	// Strip markdown code fences if the model added them.
	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}

	response = strings.TrimSpace(response)

	var parsed rerankResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("parsing rerank response: %w", err)
	}

	byIndex := make(map[int]float32, len(parsed.Scores))
	for _, s := range parsed.Scores {
		if s.DocIndex < 0 || s.DocIndex >= numCandidates {
			continue
		}
		// Clamp score to valid range
		score := s.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		byIndex[s.DocIndex] = score
	}

	return byIndex, nil
}

// Ensure LLMReranker implements Reranker interface.
var _ Reranker = (*LLMReranker)(nil)
