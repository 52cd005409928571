// Package ingestion turns raw sources (PDF documents, market series) into
// chunk stores. Extraction is the only place that knows source formats;
// everything downstream works on chunks and locators.
package ingestion

import (
	"errors"
	"fmt"
)

// ExtractionError reports a source that could not be turned into chunks.
type ExtractionError struct {
	Source string // "pdf" or "market"
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s source: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ErrEmptySource marks a source with no extractable content.
var ErrEmptySource = errors.New("source has no extractable content")

// ErrSourceTooLarge marks a source beyond the configured size limit.
var ErrSourceTooLarge = errors.New("source exceeds size limit")
