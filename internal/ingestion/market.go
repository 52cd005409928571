package ingestion

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/astrali/finrag/internal/chunk"
	"github.com/astrali/finrag/internal/marketdata"
)

// Window sizes for market series chunking.
const (
	WindowQuarter = "quarter"
	WindowMonth   = "month"
)

// MarketExtractor turns fetched ticker series into a chunk store. Each
// chunk is one ticker over one calendar window (quarter or month) so it is
// independently citable and of roughly uniform size. A per-ticker summary
// chunk covering the whole period is appended after the windows.
type MarketExtractor struct {
	// Window selects the chunk granularity (WindowQuarter or WindowMonth,
	// default WindowQuarter).
	Window string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// window is an aggregated slice of one ticker's bars.
type window struct {
	start, end time.Time
	open, high float64
	low, close float64
	volume     int64
	days       int
	label      string
}

// Extract builds range-located chunks from the series.
func (x *MarketExtractor) Extract(series []marketdata.Series) (*chunk.Store, error) {
	logger := x.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(series) == 0 {
		return nil, &ExtractionError{Source: "market", Err: ErrEmptySource}
	}

	store := chunk.NewStore(chunk.SourceMarket)
	ordinal := 0

	for _, s := range series {
		if len(s.Bars) == 0 {
			logger.Warn("skipping empty series", "ticker", s.Ticker)
			continue
		}

		windows := x.aggregate(s.Bars)
		for _, w := range windows {
			c := chunk.Chunk{
				ID:      chunk.NewChunkID(store.ID(), ordinal),
				Text:    windowText(s.Ticker, w),
				Locator: chunk.RangeLocator{Ticker: s.Ticker, StartDate: w.start, EndDate: w.end},
			}
			if err := store.Append(c); err != nil {
				return nil, &ExtractionError{Source: "market", Err: err}
			}
			ordinal++
		}

		// Whole-period summary, cited with the full date range.
		summary := summarize(s.Ticker, s.Bars)
		c := chunk.Chunk{
			ID:      chunk.NewChunkID(store.ID(), ordinal),
			Text:    summary,
			Locator: chunk.RangeLocator{Ticker: s.Ticker, StartDate: s.Bars[0].Date, EndDate: s.Bars[len(s.Bars)-1].Date},
		}
		if err := store.Append(c); err != nil {
			return nil, &ExtractionError{Source: "market", Err: err}
		}
		ordinal++
	}

	if store.Len() == 0 {
		return nil, &ExtractionError{Source: "market", Err: ErrEmptySource}
	}

	logger.Info("extracted market data", "tickers", len(series), "chunks", store.Len())
	return store, nil
}

// aggregate groups bars into calendar windows, preserving date order.
func (x *MarketExtractor) aggregate(bars []marketdata.Bar) []window {
	var (
		windows []window
		current *window
		curKey  string
	)

	for _, b := range bars {
		key, label, start, end := x.windowOf(b.Date)
		if current == nil || key != curKey {
			if current != nil {
				windows = append(windows, *current)
			}
			current = &window{
				start: start, end: end,
				open: b.Open, high: b.High, low: b.Low, close: b.Close,
				volume: b.Volume, days: 1, label: label,
			}
			curKey = key
			continue
		}
		if b.High > current.high {
			current.high = b.High
		}
		if b.Low < current.low {
			current.low = b.Low
		}
		current.close = b.Close
		current.volume += b.Volume
		current.days++
	}
	if current != nil {
		windows = append(windows, *current)
	}

	return windows
}

// windowOf maps a date to its calendar window key, label and bounds.
func (x *MarketExtractor) windowOf(d time.Time) (key, label string, start, end time.Time) {
	d = d.UTC()
	if x.Window == WindowMonth {
		start = time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, -1)
		key = start.Format("2006-01")
		label = start.Format("January 2006")
		return key, label, start, end
	}

	q := (int(d.Month()) - 1) / 3
	start = time.Date(d.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 3, -1)
	key = fmt.Sprintf("%d-Q%d", d.Year(), q+1)
	label = fmt.Sprintf("Q%d %d", q+1, d.Year())
	return key, label, start, end
}

// windowText renders one window as prose the embedder and LLM consume.
func windowText(ticker string, w window) string {
	variation := percentChange(w.open, w.close)
	return fmt.Sprintf("%s %s (%s to %s): Open $%.2f, High $%.2f, Low $%.2f, Close $%.2f (%+.2f%% return), Volume %d over %d trading days",
		ticker, w.label,
		w.start.Format("2006-01-02"), w.end.Format("2006-01-02"),
		w.open, w.high, w.low, w.close, variation, w.volume, w.days)
}

// summarize renders the whole fetched period for one ticker.
func summarize(ticker string, bars []marketdata.Bar) string {
	first, last := bars[0], bars[len(bars)-1]
	high, low := first.High, first.Low
	var volume int64
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
		volume += b.Volume
	}
	variation := percentChange(first.Open, last.Close)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s period summary %s to %s: ", ticker, first.Date.Format("2006-01-02"), last.Date.Format("2006-01-02"))
	fmt.Fprintf(&sb, "$%.2f→$%.2f (%+.2f%%), ", first.Open, last.Close, variation)
	fmt.Fprintf(&sb, "period high $%.2f, period low $%.2f, total volume %d across %d trading days", high, low, volume, len(bars))
	return sb.String()
}

func percentChange(open, close float64) float64 {
	if open == 0 {
		return 0
	}
	return (close - open) / open * 100
}
