package reranker

import "context"

// Passthrough keeps the retrieval order and scores unchanged. Used when no
// reranking model is configured.
type Passthrough struct{}

// Rerank returns every candidate with its similarity as the relevance.
func (Passthrough) Rerank(_ context.Context, _ string, candidates []Candidate) ([]Scored, error) {
	scored := make([]Scored, len(candidates))
	for i, cand := range candidates {
		scored[i] = Scored{ChunkID: cand.ChunkID, Relevance: cand.Similarity}
	}
	return scored, nil
}

// Ensure Passthrough implements Reranker.
var _ Reranker = Passthrough{}
