package reranker

import (
	"context"
	"errors"
	"testing"
)

func TestLexicalReranker_OrdersByOverlap(t *testing.T) {
	r := &LexicalReranker{}

	candidates := []Candidate{
		{ChunkID: "off-topic", Text: "treasury bond yields rose sharply today"},
		{ChunkID: "on-topic", Text: "apple quarterly revenue grew twelve percent"},
	}

	scored, err := r.Rerank(context.Background(), "apple quarterly revenue", candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 scored candidates, got %d", len(scored))
	}
	if scored[0].ChunkID != "on-topic" {
		t.Errorf("expected the overlapping chunk first, got %s", scored[0].ChunkID)
	}
	if scored[0].Relevance <= scored[1].Relevance {
		t.Errorf("expected descending relevance, got %f then %f", scored[0].Relevance, scored[1].Relevance)
	}
}

func TestLexicalReranker_MinScoreFloor(t *testing.T) {
	r := &LexicalReranker{MinScore: 0.9}

	candidates := []Candidate{
		{ChunkID: "weak", Text: "completely unrelated subject matter entirely"},
	}

	// A floor that cuts everything is an empty result, not a failure.
	scored, err := r.Rerank(context.Background(), "apple quarterly revenue", candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scored) != 0 {
		t.Errorf("expected the floor to cut the candidate, got %d results", len(scored))
	}
}

func TestLexicalReranker_DropsUnscoreable(t *testing.T) {
	r := &LexicalReranker{}

	// Tokenization skips words of two characters or fewer, so these two
	// candidates cannot be scored; the other three can.
	candidates := []Candidate{
		{ChunkID: "c1", Text: "apple revenue numbers"},
		{ChunkID: "c2", Text: "a b"},
		{ChunkID: "c3", Text: "cloud segment results"},
		{ChunkID: "c4", Text: ". ,"},
		{ChunkID: "c5", Text: "guidance for next quarter"},
	}

	scored, err := r.Rerank(context.Background(), "apple revenue", candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scored) != 3 {
		t.Fatalf("expected 3 scored candidates, got %d", len(scored))
	}
	for _, s := range scored {
		if s.ChunkID == "c2" || s.ChunkID == "c4" {
			t.Errorf("unscoreable candidate %s survived", s.ChunkID)
		}
	}
}

func TestLexicalReranker_AllFailed(t *testing.T) {
	r := &LexicalReranker{}

	candidates := []Candidate{
		{ChunkID: "c1", Text: "a"},
		{ChunkID: "c2", Text: ".."},
	}

	_, err := r.Rerank(context.Background(), "apple revenue", candidates)
	if !errors.Is(err, ErrNoScores) {
		t.Errorf("expected ErrNoScores when every candidate fails, got %v", err)
	}
}

func TestLexicalReranker_EmptyCandidates(t *testing.T) {
	r := &LexicalReranker{}

	scored, err := r.Rerank(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scored) != 0 {
		t.Errorf("expected no results for no candidates, got %d", len(scored))
	}
}

func TestOverlap(t *testing.T) {
	if got := Overlap("apple revenue grew", "apple revenue grew"); got != 1.0 {
		t.Errorf("identical texts should overlap 1.0, got %f", got)
	}
	if got := Overlap("apple revenue grew", "treasury yields fell"); got != 0.0 {
		t.Errorf("disjoint texts should overlap 0.0, got %f", got)
	}
	partial := Overlap("apple revenue grew", "apple revenue fell")
	if partial <= 0.0 || partial >= 1.0 {
		t.Errorf("partial overlap should be strictly between 0 and 1, got %f", partial)
	}
}

func TestPassthrough_KeepsSimilarity(t *testing.T) {
	r := Passthrough{}

	// Retrieval hands candidates over already sorted; passthrough must
	// keep that order and carry the similarity as the relevance.
	candidates := []Candidate{
		{ChunkID: "high", Similarity: 0.9},
		{ChunkID: "low", Similarity: 0.2},
	}

	scored, err := r.Rerank(context.Background(), "query", candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 results, got %d", len(scored))
	}
	if scored[0].ChunkID != "high" || scored[0].Relevance != 0.9 {
		t.Errorf("expected similarity carried over in order, got %+v", scored[0])
	}
}
