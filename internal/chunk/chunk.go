// Package chunk defines the addressable units of source content and the
// session-scoped store that owns them. Every chunk carries a locator that
// points back to where in the original source it came from, which is what
// citation resolution navigates to.
package chunk

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies the type of source a store was built from.
type SourceKind string

const (
	// SourcePDF marks a store built from an uploaded PDF document.
	SourcePDF SourceKind = "pdf"

	// SourceMarket marks a store built from financial time-series data.
	SourceMarket SourceKind = "market"
)

// Locator identifies where in the original source a chunk came from.
// It is a closed variant: PageLocator for PDF sources, RangeLocator for
// market-data sources. Callers switch on the concrete type.
type Locator interface {
	// Describe returns a short human-readable reference, e.g. "page 12"
	// or "AAPL 2024-01-01..2024-03-31".
	Describe() string

	sealed()
}

// PageLocator points to a page of a PDF document. Pages are 1-indexed.
type PageLocator struct {
	PageNumber int `json:"page_number"`
}

func (l PageLocator) Describe() string {
	return fmt.Sprintf("page %d", l.PageNumber)
}

func (PageLocator) sealed() {}

// RangeLocator points to a date window of one ticker's series.
type RangeLocator struct {
	Ticker    string    `json:"ticker"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

func (l RangeLocator) Describe() string {
	return fmt.Sprintf("%s %s..%s", l.Ticker, l.StartDate.Format("2006-01-02"), l.EndDate.Format("2006-01-02"))
}

func (RangeLocator) sealed() {}

// Chunk is an immutable unit of extracted content. Embedding vectors live
// in the semantic index, not on the chunk.
type Chunk struct {
	ID      string
	Text    string
	Locator Locator
}

// Store is an ordered sequence of chunks extracted from a single source.
// A store is owned by exactly one session; it is created on ingest and
// discarded when the session's source changes. Chunk IDs are unique within
// a store and stable for its lifetime.
type Store struct {
	id     uuid.UUID
	kind   SourceKind
	chunks []Chunk
	byID   map[string]int
}

// NewStore creates an empty store for the given source kind.
func NewStore(kind SourceKind) *Store {
	return &Store{
		id:   uuid.New(),
		kind: kind,
		byID: make(map[string]int),
	}
}

// ID returns the store's unique identifier.
func (s *Store) ID() uuid.UUID { return s.id }

// Kind returns the source kind all chunks in this store share.
func (s *Store) Kind() SourceKind { return s.kind }

// Append adds a chunk to the store. It returns an error if the chunk's ID
// collides with an existing chunk or its locator kind does not match the
// store's source kind.
func (s *Store) Append(c Chunk) error {
	if c.ID == "" {
		return fmt.Errorf("chunk ID must not be empty")
	}
	if _, exists := s.byID[c.ID]; exists {
		return fmt.Errorf("duplicate chunk ID %q", c.ID)
	}
	switch c.Locator.(type) {
	case PageLocator:
		if s.kind != SourcePDF {
			return fmt.Errorf("page locator in %s store", s.kind)
		}
	case RangeLocator:
		if s.kind != SourceMarket {
			return fmt.Errorf("range locator in %s store", s.kind)
		}
	default:
		return fmt.Errorf("chunk %q has no locator", c.ID)
	}
	s.byID[c.ID] = len(s.chunks)
	s.chunks = append(s.chunks, c)
	return nil
}

// Len returns the number of chunks in the store.
func (s *Store) Len() int { return len(s.chunks) }

// At returns the chunk at position i in extraction order.
func (s *Store) At(i int) Chunk { return s.chunks[i] }

// Get returns the chunk with the given ID.
func (s *Store) Get(id string) (Chunk, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Chunk{}, false
	}
	return s.chunks[i], true
}

// Position returns the extraction-order position of the chunk with the
// given ID. Used for stable tie-breaking during retrieval.
func (s *Store) Position(id string) (int, bool) {
	i, ok := s.byID[id]
	return i, ok
}

// Chunks returns the chunks in extraction order. The returned slice is
// shared; callers must not modify it.
func (s *Store) Chunks() []Chunk { return s.chunks }

// NewChunkID builds a stable chunk ID from the store and the chunk's
// ordinal. IDs survive for the store's lifetime so citations keep
// resolving across queries in the same session.
func NewChunkID(storeID uuid.UUID, ordinal int) string {
	return fmt.Sprintf("%s-%04d", storeID.String()[:8], ordinal)
}
