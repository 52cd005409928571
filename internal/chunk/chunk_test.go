package chunk

import (
	"strings"
	"testing"
	"time"
)

func TestStore_AppendAndGet(t *testing.T) {
	store := NewStore(SourcePDF)

	c := Chunk{
		ID:      NewChunkID(store.ID(), 0),
		Text:    "revenue grew 12% year over year",
		Locator: PageLocator{PageNumber: 3},
	}
	if err := store.Append(c); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("expected 1 chunk, got %d", store.Len())
	}

	got, ok := store.Get(c.ID)
	if !ok {
		t.Fatalf("chunk %s not found", c.ID)
	}
	if got.Text != c.Text {
		t.Errorf("expected text %q, got %q", c.Text, got.Text)
	}

	pos, ok := store.Position(c.ID)
	if !ok || pos != 0 {
		t.Errorf("expected position 0, got %d (ok=%v)", pos, ok)
	}
}

func TestStore_DuplicateID(t *testing.T) {
	store := NewStore(SourcePDF)
	c := Chunk{ID: "dup", Text: "first", Locator: PageLocator{PageNumber: 1}}

	if err := store.Append(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Append(c); err == nil {
		t.Error("expected error for duplicate chunk ID")
	}
}

func TestStore_LocatorKindMismatch(t *testing.T) {
	pdfStore := NewStore(SourcePDF)
	err := pdfStore.Append(Chunk{
		ID:      "c1",
		Text:    "AAPL Q1",
		Locator: RangeLocator{Ticker: "AAPL", StartDate: time.Now(), EndDate: time.Now()},
	})
	if err == nil {
		t.Error("expected error for range locator in pdf store")
	}

	marketStore := NewStore(SourceMarket)
	err = marketStore.Append(Chunk{
		ID:      "c2",
		Text:    "page text",
		Locator: PageLocator{PageNumber: 1},
	})
	if err == nil {
		t.Error("expected error for page locator in market store")
	}
}

func TestStore_MissingLocator(t *testing.T) {
	store := NewStore(SourcePDF)
	if err := store.Append(Chunk{ID: "c1", Text: "no locator"}); err == nil {
		t.Error("expected error for chunk without locator")
	}
}

func TestStore_OrderPreserved(t *testing.T) {
	store := NewStore(SourcePDF)
	for i := 0; i < 5; i++ {
		err := store.Append(Chunk{
			ID:      NewChunkID(store.ID(), i),
			Text:    "text",
			Locator: PageLocator{PageNumber: i + 1},
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	for i := 0; i < store.Len(); i++ {
		loc := store.At(i).Locator.(PageLocator)
		if loc.PageNumber != i+1 {
			t.Errorf("chunk %d: expected page %d, got %d", i, i+1, loc.PageNumber)
		}
	}
}

func TestNewChunkID_StableFormat(t *testing.T) {
	store := NewStore(SourcePDF)
	id := NewChunkID(store.ID(), 7)

	if !strings.HasPrefix(id, store.ID().String()[:8]) {
		t.Errorf("chunk ID %q does not carry the store prefix", id)
	}
	if !strings.HasSuffix(id, "-0007") {
		t.Errorf("chunk ID %q does not carry the zero-padded ordinal", id)
	}
	if id != NewChunkID(store.ID(), 7) {
		t.Error("chunk IDs must be deterministic for the same store and ordinal")
	}
}

func TestLocator_Describe(t *testing.T) {
	page := PageLocator{PageNumber: 12}
	if page.Describe() != "page 12" {
		t.Errorf("unexpected page description %q", page.Describe())
	}

	rng := RangeLocator{
		Ticker:    "AAPL",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	if rng.Describe() != "AAPL 2024-01-01..2024-03-31" {
		t.Errorf("unexpected range description %q", rng.Describe())
	}
}
