// Package citation maps the markers in a generated answer back to source
// locators. The generator is an external component whose output is only
// mostly well-formed, so resolution degrades gracefully: markers it
// invented stay plain text, markers it never used are simply unused.
package citation

import (
	"log/slog"
	"regexp"
	"strconv"

	"github.com/astrali/finrag/internal/chunk"
	"github.com/astrali/finrag/internal/prompt"
)

// markerRe matches citation marker tokens like [3].
var markerRe = regexp.MustCompile(`\[(\d+)\]`)

// Resolved is one marker mapped back to its source.
type Resolved struct {
	Marker  int
	ChunkID string
	Locator chunk.Locator
}

// Answer is the generated text with its resolved citations.
type Answer struct {
	// Text is the generator's output, marker tokens left in place.
	Text string

	// Citations holds each distinct resolvable marker found in Text, in
	// order of first appearance.
	Citations []Resolved

	// Unresolved lists distinct markers found in Text that were never
	// issued for this prompt. They render as plain text.
	Unresolved []int
}

// Resolve scans the answer text for marker tokens and attaches each known
// marker's chunk locator. issued is the citation set the assembler handed
// out; lookup resolves chunk IDs against the session's store.
func Resolve(answerText string, issued []prompt.Citation, lookup prompt.Lookup, logger *slog.Logger) Answer {
	if logger == nil {
		logger = slog.Default()
	}

	byMarker := make(map[int]string, len(issued))
	for _, c := range issued {
		byMarker[c.Marker] = c.ChunkID
	}

	answer := Answer{Text: answerText}
	seen := make(map[int]bool)

	for _, match := range markerRe.FindAllStringSubmatch(answerText, -1) {
		marker, err := strconv.Atoi(match[1])
		if err != nil || seen[marker] {
			continue
		}
		seen[marker] = true

		chunkID, known := byMarker[marker]
		if !known {
			logger.Warn("answer cites unknown marker", "marker", marker)
			answer.Unresolved = append(answer.Unresolved, marker)
			continue
		}

		c, ok := lookup(chunkID)
		if !ok {
			logger.Warn("cited chunk missing from store", "marker", marker, "chunk_id", chunkID)
			answer.Unresolved = append(answer.Unresolved, marker)
			continue
		}

		answer.Citations = append(answer.Citations, Resolved{
			Marker:  marker,
			ChunkID: chunkID,
			Locator: c.Locator,
		})
	}

	return answer
}
