// Package marketdata provides the source-fetch capability for financial
// time series. Network transport, rate limits and vendor quirks live behind
// the Fetcher interface; the retrieval core only sees ordered OHLCV bars.
package marketdata

import (
	"context"
	"fmt"
	"time"
)

// Bar is one trading period of a ticker's series.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Series holds the fetched bars for one ticker, oldest first.
type Series struct {
	Ticker string
	Bars   []Bar
}

// Fetcher retrieves daily series for a set of tickers over a date range.
type Fetcher interface {
	// Fetch returns one Series per ticker that could be retrieved, in the
	// order requested. Tickers that fail are reported through the error;
	// an error with no series means nothing was fetched.
	Fetch(ctx context.Context, tickers []string, start, end time.Time) ([]Series, error)
}

// FetchError reports a failed fetch for one ticker.
type FetchError struct {
	Ticker string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Ticker, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
