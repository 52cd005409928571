// Package reranker provides the second, finer-grained relevance pass over
// retrieved candidates.
//
// Vector retrieval scores query and chunk independently; reranking scores
// them together (lexical overlap or a cross-encoder style LLM call), which
// is slower but markedly more precise on small candidate sets. The
// reranked order is authoritative: downstream assembly uses the reranker's
// score and discards the raw similarity.
package reranker

import (
	"context"
	"errors"
	"sort"
)

// Candidate is one retrieved chunk offered for rescoring.
type Candidate struct {
	ChunkID string
	Text    string

	// Similarity is the retrieval score, carried for fallbacks and logging.
	Similarity float32
}

// Scored is a candidate with the reranker's own relevance score. Score
// scales differ between implementations and need not match similarity.
type Scored struct {
	ChunkID   string
	Relevance float32
}

// ErrNoScores reports that every candidate failed to score.
var ErrNoScores = errors.New("reranking produced no scored candidates")

// Reranker rescores candidates against the query.
//
// Implementations never introduce chunks absent from candidates, but may
// return fewer: a candidate whose scoring fails individually is dropped
// with a logged warning, and a relevance floor may cut low scorers. The
// result is sorted by relevance descending, ties keeping candidate order.
// When no candidate scores at all the call fails with ErrNoScores.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Scored, error)
}

// sortByRelevance orders scored results descending, stable on input order.
func sortByRelevance(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Relevance > scored[j].Relevance
	})
}
