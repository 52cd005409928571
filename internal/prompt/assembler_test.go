package prompt

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/astrali/finrag/internal/chunk"
	"github.com/astrali/finrag/internal/reranker"
)

func assemblerFixture(texts ...string) ([]reranker.Scored, Lookup) {
	chunks := make(map[string]chunk.Chunk, len(texts))
	ranked := make([]reranker.Scored, len(texts))
	for i, text := range texts {
		id := fmt.Sprintf("c%d", i)
		chunks[id] = chunk.Chunk{
			ID:      id,
			Text:    text,
			Locator: chunk.PageLocator{PageNumber: i + 1},
		}
		ranked[i] = reranker.Scored{ChunkID: id, Relevance: 1 - float32(i)*0.1}
	}
	lookup := func(id string) (chunk.Chunk, bool) {
		c, ok := chunks[id]
		return c, ok
	}
	return ranked, lookup
}

func TestAssemble_MarkersContiguousFromOne(t *testing.T) {
	a := &Assembler{}
	ranked, lookup := assemblerFixture("first chunk", "second chunk", "third chunk")

	out, err := a.Assemble("what happened?", ranked, lookup, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.Citations) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(out.Citations))
	}
	for i, c := range out.Citations {
		if c.Marker != i+1 {
			t.Errorf("citation %d has marker %d, want %d", i, c.Marker, i+1)
		}
		if !strings.Contains(out.Prompt, fmt.Sprintf("[%d] (page %d)", c.Marker, i+1)) {
			t.Errorf("prompt missing context block for marker %d", c.Marker)
		}
	}
}

func TestAssemble_PromptSections(t *testing.T) {
	a := &Assembler{}
	ranked, lookup := assemblerFixture("revenue grew 12%")

	out, err := a.Assemble("how did revenue do?", ranked, lookup, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, section := range []string{
		"## Source Excerpts",
		"## Question",
		"how did revenue do?",
		"## Answer",
	} {
		if !strings.Contains(out.Prompt, section) {
			t.Errorf("prompt missing %q", section)
		}
	}
	if strings.Contains(out.Prompt, "## Conversation History") {
		t.Error("history section must be absent when there is no history")
	}
}

func TestAssemble_IncludesHistory(t *testing.T) {
	a := &Assembler{}
	ranked, lookup := assemblerFixture("some context")

	history := "User: what is AAPL?\nAssistant: Apple Inc. [1]\n"
	out, err := a.Assemble("and its revenue?", ranked, lookup, history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.Prompt, "## Conversation History") {
		t.Error("expected history section")
	}
	if !strings.Contains(out.Prompt, "User: what is AAPL?") {
		t.Error("expected the transcript in the prompt")
	}
}

func TestAssemble_BudgetDropsWholeChunks(t *testing.T) {
	big := strings.Repeat("x", 200)
	ranked, lookup := assemblerFixture(big, big, big)

	// Room for roughly one block only.
	a := &Assembler{MaxContextChars: 250}

	out, err := a.Assemble("question", ranked, lookup, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Citations) != 1 {
		t.Fatalf("expected exactly 1 chunk to fit, got %d", len(out.Citations))
	}
	// The surviving block must be complete, never truncated.
	if !strings.Contains(out.Prompt, big) {
		t.Error("kept chunk was truncated")
	}
}

func TestAssemble_EmptyContext(t *testing.T) {
	ranked, lookup := assemblerFixture(strings.Repeat("x", 500))
	a := &Assembler{MaxContextChars: 50}

	_, err := a.Assemble("question", ranked, lookup, "")
	if !errors.Is(err, ErrEmptyContext) {
		t.Errorf("expected ErrEmptyContext, got %v", err)
	}
}

func TestAssemble_UnknownChunk(t *testing.T) {
	a := &Assembler{}
	lookup := func(string) (chunk.Chunk, bool) { return chunk.Chunk{}, false }

	_, err := a.Assemble("question", []reranker.Scored{{ChunkID: "ghost"}}, lookup, "")
	if err == nil {
		t.Error("expected error for a chunk missing from the store")
	}
}

func TestAssemble_CustomSystemPrompt(t *testing.T) {
	a := &Assembler{SystemPrompt: "Answer in French."}
	ranked, lookup := assemblerFixture("du texte")

	out, err := a.Assemble("question", ranked, lookup, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.Prompt, "Answer in French.") {
		t.Error("custom system prompt not used")
	}
	if strings.Contains(out.Prompt, DefaultSystemPrompt) {
		t.Error("default system prompt must be replaced, not appended")
	}
}
