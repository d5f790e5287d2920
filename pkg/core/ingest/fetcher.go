// Package ingest talks to SEC EDGAR: it locates annual filings, fetches
// documents under a shared rate limit and splits 10-K documents into items.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/phuslu/log"

	"filing_ingest/pkg/core/logging"
)

// Fetcher retrieves EDGAR resources with the required User-Agent, a shared
// request floor and bounded retries.
type Fetcher struct {
	httpClient  *http.Client
	limiter     Limiter
	userAgent   string
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	minDocBytes int
	logger      *log.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = hc }
}

// WithLimiter sets the request limiter. Share one limiter across every Fetcher.
func WithLimiter(l Limiter) FetcherOption {
	return func(f *Fetcher) { f.limiter = l }
}

// WithRetry sets the total attempt budget and the exponential backoff bounds.
func WithRetry(maxAttempts int, base, max time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.maxAttempts = maxAttempts
		f.backoffBase = base
		f.backoffMax = max
	}
}

// WithMinDocumentBytes sets the smallest body FetchDocument accepts.
func WithMinDocumentBytes(n int) FetcherOption {
	return func(f *Fetcher) { f.minDocBytes = n }
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l *log.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a fetcher. userAgent must name the application and a contact.
func NewFetcher(userAgent string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		limiter:     NewSpacingLimiter(100 * time.Millisecond),
		userAgent:   userAgent,
		maxAttempts: 3,
		backoffBase: 500 * time.Millisecond,
		backoffMax:  10 * time.Second,
		minDocBytes: 512,
		logger:      logging.NewSilent(),
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxAttempts < 1 {
		f.maxAttempts = 1
	}
	return f
}

// HTTPClient returns the client used for every request.
func (f *Fetcher) HTTPClient() *http.Client { return f.httpClient }

// FetchDocument downloads a filing document. Bodies below the minimum
// document size are treated as throttle or redirect pages and retried.
func (f *Fetcher) FetchDocument(ctx context.Context, url string) (string, error) {
	body, err := f.get(ctx, url, "text/html", f.minDocBytes)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetJSON downloads url and decodes the JSON body into v.
func (f *Fetcher) GetJSON(ctx context.Context, url string, v interface{}) error {
	body, err := f.get(ctx, url, "application/json", 0)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON from %s: %w", url, err)
	}
	return nil
}

// attemptResult is the outcome of one HTTP round trip.
type attemptResult struct {
	body       []byte
	status     int
	retryAfter time.Duration
	err        error
	retryable  bool
}

func (f *Fetcher) get(ctx context.Context, url, accept string, minBytes int) ([]byte, error) {
	var last attemptResult
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := f.backoff(attempt - 1)
			if last.retryAfter > wait {
				wait = last.retryAfter
			}
			f.logger.Warn().Str("url", url).Int("attempt", attempt).Int("status", last.status).Dur("wait", wait).Msg("retrying fetch")
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		last = f.do(ctx, url, accept, minBytes)
		if last.err == nil {
			f.logger.Debug().Str("url", url).Int("attempt", attempt).Int("bytes", len(last.body)).Msg("fetched")
			return last.body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !last.retryable {
			return nil, last.err
		}
	}
	return nil, &TransientFetchError{
		URL:        url,
		StatusCode: last.status,
		Attempts:   f.maxAttempts,
		Err:        last.err,
	}
}

func (f *Fetcher) do(ctx context.Context, url, accept string, minBytes int) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return attemptResult{err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return attemptResult{err: fmt.Errorf("request failed: %w", err), retryable: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return attemptResult{
			status:     resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			err:        fmt.Errorf("rate limited (HTTP %d)", resp.StatusCode),
			retryable:  true,
		}
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return attemptResult{status: resp.StatusCode, err: fmt.Errorf("server error (HTTP %d)", resp.StatusCode), retryable: true}
	case resp.StatusCode >= 400:
		io.Copy(io.Discard, resp.Body)
		return attemptResult{status: resp.StatusCode, err: &PermanentFetchError{URL: url, StatusCode: resp.StatusCode}}
	case resp.StatusCode != http.StatusOK:
		return attemptResult{status: resp.StatusCode, err: fmt.Errorf("unexpected status %d", resp.StatusCode), retryable: true}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptResult{status: resp.StatusCode, err: fmt.Errorf("failed to read response: %w", err), retryable: true}
	}
	if len(body) < minBytes {
		return attemptResult{
			status:    resp.StatusCode,
			err:       fmt.Errorf("%w: %d < %d bytes", ErrDocumentTooSmall, len(body), minBytes),
			retryable: true,
		}
	}
	return attemptResult{body: body, status: resp.StatusCode}
}

// backoff returns base*2^(n-1), capped at backoffMax.
func (f *Fetcher) backoff(n int) time.Duration {
	d := f.backoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= f.backoffMax {
			return f.backoffMax
		}
	}
	if f.backoffMax > 0 && d > f.backoffMax {
		return f.backoffMax
	}
	return d
}

// parseRetryAfter reads a Retry-After header in either delta-seconds or HTTP-date form.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// errorStatus extracts the HTTP status from a fetch error, or 0.
func errorStatus(err error) int {
	var te *TransientFetchError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	var pe *PermanentFetchError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}
