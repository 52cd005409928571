package ingestion

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	controlRe    = regexp.MustCompile(`[\x00-\x08\x0B-\x0C\x0E-\x1F\x7F]`)
	sentenceRe   = regexp.MustCompile(`[^.!?]*[.!?]+\s*|[^.!?]+$`)
)

// CleanText collapses whitespace runs and strips control characters that
// PDF extraction tends to leave behind.
func CleanText(text string) string {
	text = controlRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SplitToLimit splits text into pieces no longer than maxChars, breaking
// at sentence boundaries. A single sentence longer than maxChars is split
// at word boundaries instead; pieces are never cut mid-word. A single
// word longer than maxChars is emitted whole as its own piece, so a piece
// can exceed the limit by the length of that one word. Text within the
// limit comes back as a single piece. maxChars <= 0 disables splitting.
func SplitToLimit(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var (
		pieces  []string
		current strings.Builder
	)

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			pieces = append(pieces, s)
		}
		current.Reset()
	}

	for _, sentence := range sentenceRe.FindAllString(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if len(sentence) > maxChars {
			flush()
			pieces = append(pieces, splitLongSentence(sentence, maxChars)...)
			continue
		}

		if current.Len() > 0 && current.Len()+1+len(sentence) > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()

	return pieces
}

// splitLongSentence breaks a sentence at word boundaries.
func splitLongSentence(sentence string, maxChars int) []string {
	var (
		pieces  []string
		current strings.Builder
	)

	for _, word := range strings.Fields(sentence) {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		// A single word beyond the limit goes out as its own piece.
		current.WriteString(word)
		if current.Len() >= maxChars {
			pieces = append(pieces, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	return pieces
}
