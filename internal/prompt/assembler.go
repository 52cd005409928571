// Package prompt builds the generation prompt from reranked chunks. The
// assembler owns citation marker assignment: markers are handed out in
// context order starting at 1 and the generator is instructed to reuse
// them, so the resolver can map an answer's markers back to chunks.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/astrali/finrag/internal/chunk"
	"github.com/astrali/finrag/internal/reranker"
)

// ErrEmptyContext reports that no chunk fit in the context budget.
var ErrEmptyContext = errors.New("no chunk fits in the context budget")

// Citation links a marker in the assembled context to its chunk.
type Citation struct {
	Marker  int
	ChunkID string
}

// Assembled is the built prompt plus the markers it issued.
type Assembled struct {
	Prompt    string
	Citations []Citation
}

// Lookup resolves a chunk ID to its chunk, normally a store's Get.
type Lookup func(chunkID string) (chunk.Chunk, bool)

// DefaultSystemPrompt instructs the generator to stay inside the supplied
// context and to cite with the assigned markers.
const DefaultSystemPrompt = `You are a financial analysis assistant. Answer using ONLY the numbered source excerpts supplied in the context.
Cite every factual statement with the bracketed number of the excerpt it comes from, e.g. [1]. When multiple excerpts support a statement, cite each, e.g. [1][2].
If the context does not contain the answer, say so. Do not invent sources or numbers.`

// Assembler builds generation prompts within a character budget.
type Assembler struct {
	// MaxContextChars caps the context block. Chunks are dropped whole
	// once the budget is reached, never truncated mid-chunk.
	MaxContextChars int

	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string
}

// Assemble walks the reranked chunks in order, appending each to the
// context block with the next marker until the budget would be exceeded.
// history, when non-empty, is a preformatted conversation transcript.
// Fails with ErrEmptyContext when not even the first chunk fits.
func (a *Assembler) Assemble(query string, ranked []reranker.Scored, lookup Lookup, history string) (Assembled, error) {
	system := a.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	var (
		context   strings.Builder
		citations []Citation
	)

	for _, s := range ranked {
		c, ok := lookup(s.ChunkID)
		if !ok {
			return Assembled{}, fmt.Errorf("chunk %s not found in store", s.ChunkID)
		}

		marker := len(citations) + 1
		block := fmt.Sprintf("[%d] (%s)\n%s\n\n", marker, c.Locator.Describe(), c.Text)

		if a.MaxContextChars > 0 && context.Len()+len(block) > a.MaxContextChars {
			// Budget reached: drop this and everything after it.
			break
		}

		context.WriteString(block)
		citations = append(citations, Citation{Marker: marker, ChunkID: c.ID})
	}

	if len(citations) == 0 {
		return Assembled{}, ErrEmptyContext
	}

	var sb strings.Builder
	sb.WriteString(system)
	sb.WriteString("\n\n")

	if history != "" {
		sb.WriteString("## Conversation History\n")
		sb.WriteString("(Previous exchanges in this session for context)\n\n")
		sb.WriteString(history)
		sb.WriteString("\n")
	}

	sb.WriteString("## Source Excerpts\n\n")
	sb.WriteString(context.String())

	sb.WriteString("## Question\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("## Answer (cite sources with their bracketed numbers)\n")

	return Assembled{Prompt: sb.String(), Citations: citations}, nil
}
