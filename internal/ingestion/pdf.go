package ingestion

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"

	"github.com/astrali/finrag/internal/chunk"
)

// PDFExtractor turns an uploaded PDF into a chunk store with one chunk per
// page. Pages whose text exceeds MaxChunkChars are split at sentence
// boundaries; every resulting chunk keeps the page's locator.
type PDFExtractor struct {
	// MaxSourceBytes rejects documents beyond this size. 0 means no limit.
	MaxSourceBytes int64

	// MaxChunkChars caps a single chunk's length. 0 means one chunk per
	// page regardless of length.
	MaxChunkChars int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Extract reads the PDF bytes and produces a page-located chunk store.
func (x *PDFExtractor) Extract(data []byte) (*chunk.Store, error) {
	logger := x.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(data) == 0 {
		return nil, &ExtractionError{Source: "pdf", Err: ErrEmptySource}
	}
	if x.MaxSourceBytes > 0 && int64(len(data)) > x.MaxSourceBytes {
		return nil, &ExtractionError{Source: "pdf", Err: fmt.Errorf("%w: %d bytes, limit %d", ErrSourceTooLarge, len(data), x.MaxSourceBytes)}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{Source: "pdf", Err: fmt.Errorf("opening document: %w", err)}
	}

	store := chunk.NewStore(chunk.SourcePDF)
	ordinal := 0

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not fail the document.
			logger.Warn("page text extraction failed", "page", pageNum, "error", err)
			continue
		}

		cleaned := CleanText(text)
		if cleaned == "" {
			continue
		}

		for _, piece := range SplitToLimit(cleaned, x.MaxChunkChars) {
			c := chunk.Chunk{
				ID:      chunk.NewChunkID(store.ID(), ordinal),
				Text:    piece,
				Locator: chunk.PageLocator{PageNumber: pageNum},
			}
			if err := store.Append(c); err != nil {
				return nil, &ExtractionError{Source: "pdf", Err: err}
			}
			ordinal++
		}
	}

	if store.Len() == 0 {
		return nil, &ExtractionError{Source: "pdf", Err: ErrEmptySource}
	}

	logger.Info("extracted PDF", "pages", reader.NumPage(), "chunks", store.Len())
	return store, nil
}
