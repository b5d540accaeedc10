package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/graaaaa/eventhub/internal/appinfo"
)

// maxBodyBytes caps a single response body.
const maxBodyBytes = 8 << 20

// Fetcher performs rate-limited HTTP GETs for one connector.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	retries   int
	backoff   *BackoffCalculator
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.client = &http.Client{Timeout: d} }
}

// WithRateLimit sets requests per second and burst. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) FetcherOption {
	return func(f *Fetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetries sets the number of retries for list pages.
func WithRetries(n int) FetcherOption {
	return func(f *Fetcher) {
		if n >= 0 {
			f.retries = n
		}
	}
}

// WithBackoff sets the backoff calculator for list-page retries.
func WithBackoff(b *BackoffCalculator) FetcherOption {
	return func(f *Fetcher) { f.backoff = b }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher with a 10s timeout and no rate limit.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: appinfo.UserAgent,
		backoff:   NewBackoffCalculator(DefaultBackoffConfig),
		logger:    slog.Default(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get fetches url once.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

// GetWithRetry fetches url, retrying transport errors and 429/5xx responses
// with exponential backoff. A Retry-After on the failed response raises the
// delay. Other 4xx responses fail immediately.
func (f *Fetcher) GetWithRetry(ctx context.Context, url string) ([]byte, error) {
	var (
		lastErr error
		hint    time.Duration
	)
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			delay := f.backoff.Delay(attempt-1, hint)
			f.logger.Debug("retrying fetch", "url", url, "attempt", attempt, "delay", delay)
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, err := f.Get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		hint = 0
		var se *StatusError
		if errors.As(err, &se) {
			if !se.Retryable() {
				return nil, err
			}
			hint = se.RetryAfter
		}
	}
	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
