package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/astrali/finrag/internal/chunk"
	"github.com/astrali/finrag/internal/embedder"
	"github.com/astrali/finrag/internal/llm"
	"github.com/astrali/finrag/internal/marketdata"
)

// scriptedLLM returns a fixed answer and records the prompts it saw.
type scriptedLLM struct {
	answer  string
	prompts []string
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.answer, nil
}

func (s *scriptedLLM) GenerateStream(_ context.Context, _ string, _ llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Token: s.answer, Done: true}
	close(ch)
	return ch, nil
}

// staticFetcher serves canned series without touching the network.
type staticFetcher struct {
	series []marketdata.Series
	err    error
}

func (f *staticFetcher) Fetch(_ context.Context, _ []string, _, _ time.Time) ([]marketdata.Series, error) {
	return f.series, f.err
}

func tradingDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// quarterBars spreads bars across Q1 and Q2 2024 with distinct prices so
// no two window chunks read as near-duplicates.
func quarterBars(base float64) []marketdata.Bar {
	dates := []time.Time{
		tradingDay(2024, 1, 2), tradingDay(2024, 2, 15), tradingDay(2024, 3, 28),
		tradingDay(2024, 4, 3), tradingDay(2024, 5, 17), tradingDay(2024, 6, 28),
	}
	bars := make([]marketdata.Bar, len(dates))
	for i, d := range dates {
		price := base + float64(i)*7.5
		bars[i] = marketdata.Bar{
			Date: d, Open: price, High: price + 3, Low: price - 3, Close: price + 1.5,
			Volume: int64(10000 + i*1234),
		}
	}
	return bars
}

func marketService(t *testing.T, gen *scriptedLLM) (*Service, uuid.UUID) {
	t.Helper()

	fetcher := &staticFetcher{series: []marketdata.Series{
		{Ticker: "AAPL", Bars: quarterBars(180)},
		{Ticker: "MSFT", Bars: quarterBars(390)},
	}}

	svc := NewService(embedder.NewHashEmbedder(64), gen, Options{},
		WithFetcher(fetcher),
	)

	id, err := svc.IngestTickers(context.Background(), []string{"AAPL", "MSFT"},
		tradingDay(2024, 1, 1), tradingDay(2024, 6, 30))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return svc, id
}

func TestService_IngestTickersOpensSession(t *testing.T) {
	svc, id := marketService(t, &scriptedLLM{answer: "ok"})

	info, err := svc.Session(id)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	if info.Source != chunk.SourceMarket {
		t.Errorf("expected market session, got %s", info.Source)
	}
	// Two quarters plus a summary per ticker.
	if info.Chunks != 6 {
		t.Errorf("expected 6 chunks, got %d", info.Chunks)
	}
}

func TestService_AskResolvesMarketCitation(t *testing.T) {
	gen := &scriptedLLM{answer: "AAPL climbed through the first quarter of 2024 [1]."}
	svc, id := marketService(t, gen)

	answer, err := svc.Ask(context.Background(), id, "How did AAPL perform from 2024-01-01 to 2024-03-31?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if len(answer.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(answer.Citations))
	}
	c := answer.Citations[0]
	if c.Marker != 1 {
		t.Errorf("expected marker 1, got %d", c.Marker)
	}
	loc, ok := c.Locator.(chunk.RangeLocator)
	if !ok {
		t.Fatalf("expected a range locator, got %T", c.Locator)
	}
	if loc.Ticker != "AAPL" {
		t.Errorf("expected the citation to point at AAPL, got %s", loc.Ticker)
	}
	// The top reranked chunk for a first-quarter question is the AAPL Q1
	// window, so the citation carries the Q1 calendar bounds.
	if !loc.StartDate.Equal(tradingDay(2024, 1, 1)) || !loc.EndDate.Equal(tradingDay(2024, 3, 31)) {
		t.Errorf("expected the Q1 2024 window, got %s..%s",
			loc.StartDate.Format("2006-01-02"), loc.EndDate.Format("2006-01-02"))
	}

	if answer.Metadata.ChunksCited != 1 {
		t.Errorf("expected 1 cited chunk in metadata, got %d", answer.Metadata.ChunksCited)
	}
	if answer.Metadata.ChunksRetrieved == 0 {
		t.Error("expected retrieved chunk count in metadata")
	}

	// The generation prompt must carry the numbered excerpts.
	if len(gen.prompts) != 1 {
		t.Fatalf("expected 1 generation call, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "## Source Excerpts") {
		t.Error("prompt missing the context section")
	}
	if !strings.Contains(gen.prompts[0], "[1] (AAPL ") {
		t.Error("prompt missing the first marker block")
	}
}

func TestService_AskResolvesPDFPageCitation(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "report.pdf"))
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}

	gen := &scriptedLLM{answer: "Quarterly revenue grew twelve percent [1]."}
	svc := NewService(embedder.NewHashEmbedder(64), gen, Options{})

	id, err := svc.IngestPDF(context.Background(), data)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	info, err := svc.Session(id)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	if info.Source != chunk.SourcePDF {
		t.Errorf("expected pdf session, got %s", info.Source)
	}
	// One chunk per page of the three-page document.
	if info.Chunks != 3 {
		t.Errorf("expected 3 chunks, got %d", info.Chunks)
	}

	answer, err := svc.Ask(context.Background(), id, "How much did quarterly revenue grow?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if len(answer.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(answer.Citations))
	}
	// The revenue statement lives on page 2, so the top reranked chunk is
	// the page-2 chunk and the citation must resolve to it.
	loc, ok := answer.Citations[0].Locator.(chunk.PageLocator)
	if !ok {
		t.Fatalf("expected a page locator, got %T", answer.Citations[0].Locator)
	}
	if loc.PageNumber != 2 {
		t.Errorf("expected the citation to resolve to page 2, got page %d", loc.PageNumber)
	}
}

func TestService_AskUnknownMarkerUnresolved(t *testing.T) {
	gen := &scriptedLLM{answer: "A claim [1] and an invented one [9]."}
	svc, id := marketService(t, gen)

	answer, err := svc.Ask(context.Background(), id, "How did AAPL perform in 2024?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if len(answer.Unresolved) != 1 || answer.Unresolved[0] != 9 {
		t.Errorf("expected [9] unresolved, got %v", answer.Unresolved)
	}
	if len(answer.Citations) != 1 {
		t.Errorf("expected [1] still resolved, got %d citations", len(answer.Citations))
	}
}

func TestService_SecondAskCarriesHistory(t *testing.T) {
	gen := &scriptedLLM{answer: "An answer [1]."}
	svc, id := marketService(t, gen)

	if _, err := svc.Ask(context.Background(), id, "How did AAPL perform in 2024?"); err != nil {
		t.Fatalf("first ask: %v", err)
	}
	if _, err := svc.Ask(context.Background(), id, "And compared to MSFT?"); err != nil {
		t.Fatalf("second ask: %v", err)
	}

	second := gen.prompts[1]
	if !strings.Contains(second, "## Conversation History") {
		t.Error("second prompt missing the history section")
	}
	if !strings.Contains(second, "User: How did AAPL perform in 2024?") {
		t.Error("second prompt missing the first turn")
	}
}

func TestService_AskUnknownSession(t *testing.T) {
	svc := NewService(embedder.NewHashEmbedder(64), &scriptedLLM{answer: "ok"}, Options{})

	_, err := svc.Ask(context.Background(), uuid.New(), "anything")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Stage != StageRetrieving {
		t.Errorf("expected a retrieving-stage error, got %v", err)
	}
}

func TestService_AskEmptyQuery(t *testing.T) {
	svc, id := marketService(t, &scriptedLLM{answer: "ok"})

	if _, err := svc.Ask(context.Background(), id, ""); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestService_DropSession(t *testing.T) {
	svc, id := marketService(t, &scriptedLLM{answer: "ok"})

	svc.DropSession(id)

	if _, err := svc.Session(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after drop, got %v", err)
	}
	if _, err := svc.Ask(context.Background(), id, "anything"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on ask after drop, got %v", err)
	}
}

func TestService_ChunkLocator(t *testing.T) {
	gen := &scriptedLLM{answer: "An answer [1]."}
	svc, id := marketService(t, gen)

	answer, err := svc.Ask(context.Background(), id, "How did AAPL perform in 2024?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	cited := answer.Citations[0]
	loc, err := svc.ChunkLocator(id, cited.ChunkID)
	if err != nil {
		t.Fatalf("locator lookup: %v", err)
	}
	if loc.Describe() != cited.Locator.Describe() {
		t.Errorf("locator lookup disagrees with the citation: %q vs %q",
			loc.Describe(), cited.Locator.Describe())
	}

	if _, err := svc.ChunkLocator(id, "no-such-chunk"); !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestService_IngestTickersNoFetcher(t *testing.T) {
	svc := NewService(embedder.NewHashEmbedder(64), &scriptedLLM{answer: "ok"}, Options{})

	_, err := svc.IngestTickers(context.Background(), []string{"AAPL"},
		tradingDay(2024, 1, 1), tradingDay(2024, 6, 30))
	if err == nil {
		t.Fatal("expected error without a fetcher")
	}
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Stage != StageIngest {
		t.Errorf("expected an ingest-stage error, got %v", err)
	}
}

func TestService_IngestTickersFetchFailure(t *testing.T) {
	svc := NewService(embedder.NewHashEmbedder(64), &scriptedLLM{answer: "ok"}, Options{},
		WithFetcher(&staticFetcher{err: errors.New("upstream down")}),
	)

	_, err := svc.IngestTickers(context.Background(), []string{"AAPL"},
		tradingDay(2024, 1, 1), tradingDay(2024, 6, 30))
	if err == nil {
		t.Fatal("expected error when the fetch fails outright")
	}
}

func TestService_IngestPDFRejectsGarbage(t *testing.T) {
	svc := NewService(embedder.NewHashEmbedder(64), &scriptedLLM{answer: "ok"}, Options{})

	_, err := svc.IngestPDF(context.Background(), []byte("not a pdf at all"))
	if err == nil {
		t.Fatal("expected error for non-PDF bytes")
	}
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Stage != StageIngest {
		t.Errorf("expected an ingest-stage error, got %v", err)
	}
}
