package reranker

import (
	"context"
	"log/slog"
	"strings"
)

// LexicalReranker scores candidates by word overlap with the query
// (Jaccard similarity on lowercased word sets). No model, no network:
// the default when no reranking model is configured but pure passthrough
// is too coarse.
type LexicalReranker struct {
	// MinScore drops candidates scoring below it. 0 keeps everything.
	MinScore float32

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Rerank scores each candidate by query-token overlap.
func (r *LexicalReranker) Rerank(_ context.Context, query string, candidates []Candidate) ([]Scored, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	queryTokens := tokenize(query)

	failed := 0
	scored := make([]Scored, 0, len(candidates))
	for _, cand := range candidates {
		candTokens := tokenize(cand.Text)
		if len(candTokens) == 0 {
			// Nothing scoreable in this chunk's text.
			logger.Warn("dropping unscoreable candidate", "chunk_id", cand.ChunkID)
			failed++
			continue
		}

		score := float32(jaccardSimilarity(queryTokens, candTokens))
		if score < r.MinScore {
			continue
		}
		scored = append(scored, Scored{ChunkID: cand.ChunkID, Relevance: score})
	}

	// A floor that cut everything is an empty result, not a failure.
	if len(candidates) > 0 && failed == len(candidates) {
		return nil, ErrNoScores
	}

	sortByRelevance(scored)
	return scored, nil
}

// Overlap computes the Jaccard word-set similarity of two texts, 0 (no
// shared vocabulary) to 1 (identical). Retrieval uses it to suppress
// near-duplicate chunks before reranking.
func Overlap(a, b string) float64 {
	return jaccardSimilarity(tokenize(a), tokenize(b))
}

// tokenize converts content into a set of lowercase words for similarity comparison.
func tokenize(content string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(content))
	wordSet := make(map[string]struct{}, len(words))
	for _, word := range words {
		// Remove common punctuation
		word = strings.Trim(word, ".,!?;:\"'()[]{}=<>")
		if len(word) > 2 { // Skip very short tokens
			wordSet[word] = struct{}{}
		}
	}
	return wordSet
}

// jaccardSimilarity computes the Jaccard similarity between two word sets.
// Returns a value between 0 (no overlap) and 1 (identical).
func jaccardSimilarity(set1, set2 map[string]struct{}) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for word := range set1 {
		if _, exists := set2[word]; exists {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection

	return float64(intersection) / float64(union)
}

// Ensure LexicalReranker implements Reranker.
var _ Reranker = (*LexicalReranker)(nil)
