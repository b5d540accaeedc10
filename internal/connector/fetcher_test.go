package connector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/eventhub/internal/appinfo"
)

func TestFetcher_UserAgentAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	f := testFetcher()
	body, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, appinfo.UserAgent, string(body))

	_, err = f.Get(context.Background(), srv.URL+"/missing")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.False(t, se.Retryable())
}

func TestFetcher_RetryThenSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := testFetcher().GetWithRetry(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetcher_NoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testFetcher().GetWithRetry(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetcher_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	f := NewFetcher(WithRateLimit(0.001, 1), WithFetchLogger(discardLogger()))
	_, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err, "burst allows the first request")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Get(ctx, srv.URL)
	assert.Error(t, err)
}

func TestBackoffCalculator(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
	b := NewBackoffCalculatorWithSeed(cfg, 42)

	assert.Equal(t, time.Second, b.Calculate(0))
	assert.Equal(t, 4*time.Second, b.Calculate(2))
	assert.Equal(t, 10*time.Second, b.Calculate(10), "capped at MaxDelay")

	cfg.JitterFactor = 0.5
	b = NewBackoffCalculatorWithSeed(cfg, 42)
	for i := 0; i < 20; i++ {
		d := b.Calculate(1)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestFetcher_RetryAfterRaisesDelay(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(
		WithRetries(1),
		WithBackoff(NewBackoffCalculatorWithSeed(BackoffConfig{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     time.Minute,
			Multiplier:   2,
		}, 1)),
		WithFetchLogger(discardLogger()),
	)
	var slept []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	body, err := f.GetWithRetry(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, []time.Duration{3 * time.Second}, slept)
}

func TestBackoffCalculator_DelayHint(t *testing.T) {
	b := NewBackoffCalculatorWithSeed(BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}, 7)

	assert.Equal(t, 2*time.Second, b.Delay(1, 0), "no hint")
	assert.Equal(t, 2*time.Second, b.Delay(1, time.Second), "shorter hint ignored")
	assert.Equal(t, 5*time.Second, b.Delay(1, 5*time.Second))
	assert.Equal(t, 10*time.Second, b.Delay(0, time.Hour), "hint capped at MaxDelay")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := map[string]time.Duration{
		"":                              0,
		"3":                             3 * time.Second,
		" 0.5 ":                         500 * time.Millisecond,
		"-1":                            0,
		"NaN":                           0,
		"soon":                          0,
		"Sat, 01 Mar 2025 12:00:30 GMT": 30 * time.Second,
		"Sat, 01 Mar 2025 11:59:00 GMT": 0,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseRetryAfter(in, now), "ParseRetryAfter(%q)", in)
	}
}
