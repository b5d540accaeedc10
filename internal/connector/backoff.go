package connector

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BackoffConfig configures exponential backoff.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0
}

// DefaultBackoffConfig paces list-page retries.
var DefaultBackoffConfig = BackoffConfig{
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
	JitterFactor: 0.2,
}

// BackoffCalculator computes retry delays for upstream fetches and alert
// delivery. It is safe for concurrent use.
type BackoffCalculator struct {
	cfg BackoffConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoffCalculator creates a BackoffCalculator seeded from the clock.
func NewBackoffCalculator(cfg BackoffConfig) *BackoffCalculator {
	return NewBackoffCalculatorWithSeed(cfg, time.Now().UnixNano())
}

// NewBackoffCalculatorWithSeed creates a BackoffCalculator with a fixed
// jitter sequence.
func NewBackoffCalculatorWithSeed(cfg BackoffConfig, seed int64) *BackoffCalculator {
	return &BackoffCalculator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)),
	}
}

// Calculate returns the delay before retry number attempt, counting from 0.
func (b *BackoffCalculator) Calculate(attempt int) time.Duration {
	ceiling := float64(b.cfg.MaxDelay)
	delay := float64(b.cfg.InitialDelay)
	for i := 0; i < attempt && delay < ceiling; i++ {
		delay *= b.cfg.Multiplier
	}
	delay = min(delay, ceiling)

	if j := b.cfg.JitterFactor; j > 0 {
		b.mu.Lock()
		delay += delay * j * (2*b.rng.Float64() - 1)
		b.mu.Unlock()
	}
	return time.Duration(max(delay, 0))
}

// Delay is Calculate raised to hint, the wait the server asked for, with
// the hint capped at MaxDelay. A zero hint means none was given.
func (b *BackoffCalculator) Delay(attempt int, hint time.Duration) time.Duration {
	d := b.Calculate(attempt)
	if hint > 0 {
		d = max(d, min(hint, b.cfg.MaxDelay))
	}
	return d
}

// ParseRetryAfter reads a Retry-After value given as seconds (fractions
// allowed, as Discord sends them) or as an HTTP date relative to now.
// It returns 0 when the value is missing, malformed or in the past.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if !(secs > 0) || math.IsInf(secs, 1) {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
