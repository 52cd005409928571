package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultChartBaseURL is the default quote endpoint.
const DefaultChartBaseURL = "https://query1.finance.yahoo.com"

// ChartConfig holds configuration for the chart-API fetcher.
type ChartConfig struct {
	// BaseURL is the quote API base URL (default: DefaultChartBaseURL).
	BaseURL string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ChartFetcher implements Fetcher against a Yahoo-style chart API.
// Tickers are fetched sequentially; the upstream misbehaves under
// concurrent requests for the same client.
type ChartFetcher struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewChartFetcher creates a fetcher with the given configuration.
func NewChartFetcher(cfg ChartConfig) *ChartFetcher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultChartBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChartFetcher{baseURL: baseURL, client: client, logger: logger}
}

// chartResponse mirrors the chart API payload, limited to what we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch retrieves daily bars for each ticker. Failed tickers are skipped
// with a logged warning; the last failure is returned alongside whatever
// succeeded so the caller can decide whether partial data is enough.
func (f *ChartFetcher) Fetch(ctx context.Context, tickers []string, start, end time.Time) ([]Series, error) {
	var (
		series  []Series
		lastErr error
	)

	for _, ticker := range tickers {
		s, err := f.fetchOne(ctx, ticker, start, end)
		if err != nil {
			lastErr = &FetchError{Ticker: ticker, Err: err}
			f.logger.Warn("ticker fetch failed", "ticker", ticker, "error", err)
			continue
		}
		series = append(series, s)
	}

	if len(series) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return series, nil
}

func (f *ChartFetcher) fetchOne(ctx context.Context, ticker string, start, end time.Time) (Series, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		f.baseURL, url.PathEscape(ticker), start.Unix(), end.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Series{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Series{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Series{}, fmt.Errorf("chart API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Series{}, fmt.Errorf("decoding response: %w", err)
	}

	if parsed.Chart.Error != nil {
		return Series{}, fmt.Errorf("chart API error: %s (%s)", parsed.Chart.Error.Description, parsed.Chart.Error.Code)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return Series{}, fmt.Errorf("no data returned for %s", ticker)
	}

	result := parsed.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		bars = append(bars, Bar{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  at(quote.Close, i),
			Volume: atInt(quote.Volume, i),
		})
	}

	if len(bars) == 0 {
		return Series{}, fmt.Errorf("empty series for %s", ticker)
	}

	return Series{Ticker: ticker, Bars: bars}, nil
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func atInt(vals []int64, i int) int64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

// Ensure ChartFetcher implements Fetcher.
var _ Fetcher = (*ChartFetcher)(nil)
