package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate and Burst bound every request from one client.
	Rate  float64
	Burst int
	// WriteRate and WriteBurst additionally bound mutating requests per
	// client and X-User-ID. A zero WriteRate disables the write budget.
	WriteRate  float64
	WriteBurst int
	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration
	// TrustProxy keys clients by the first X-Forwarded-For hop.
	// Enable only behind a proxy that overwrites the header.
	TrustProxy bool
}

// DefaultRateLimiterConfig returns the public API defaults: 20 requests per
// second per client with a burst of 40, and 2 writes per second per user with
// a burst of 10.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:            20,
		Burst:           40,
		WriteRate:       2,
		WriteBurst:      10,
		CleanupInterval: 5 * time.Minute,
	}
}

// bucketSet holds one token bucket per key.
type bucketSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newBucketSet(r float64, burst int) *bucketSet {
	return &bucketSet{
		limit:   rate.Limit(r),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

func (bs *bucketSet) allow(key string, now time.Time) bool {
	bs.mu.Lock()
	b, ok := bs.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(bs.limit, bs.burst)}
		bs.buckets[key] = b
	}
	b.lastSeen = now
	bs.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

func (bs *bucketSet) prune(before time.Time) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for key, b := range bs.buckets {
		if b.lastSeen.Before(before) {
			delete(bs.buckets, key)
		}
	}
}

func (bs *bucketSet) len() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return len(bs.buckets)
}

// RateLimiter applies token-bucket limits per client, with a separate
// budget for mutating requests.
type RateLimiter struct {
	reads      *bucketSet
	writes     *bucketSet // nil when writes share the read budget only
	cleanup    time.Duration
	trustProxy bool
	now        func() time.Time
	stopOnce   sync.Once
	done       chan struct{}
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
// Call Stop to release it.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		reads:      newBucketSet(cfg.Rate, cfg.Burst),
		cleanup:    cfg.CleanupInterval,
		trustProxy: cfg.TrustProxy,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	if cfg.WriteRate > 0 {
		burst := cfg.WriteBurst
		if burst <= 0 {
			burst = 1
		}
		rl.writes = newBucketSet(cfg.WriteRate, burst)
	}
	if rl.cleanup <= 0 {
		rl.cleanup = DefaultRateLimiterConfig().CleanupInterval
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a read from client may proceed.
func (rl *RateLimiter) Allow(client string) bool {
	return rl.reads.allow(client, rl.now())
}

// AllowWrite reports whether a mutating request from client acting as
// userID may proceed. It draws from both budgets.
func (rl *RateLimiter) AllowWrite(client, userID string) bool {
	now := rl.now()
	if !rl.reads.allow(client, now) {
		return false
	}
	if rl.writes == nil {
		return true
	}
	return rl.writes.allow(client+"|"+userID, now)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.pruneStale()
		case <-rl.done:
			return
		}
	}
}

// pruneStale drops buckets idle for two cleanup intervals.
func (rl *RateLimiter) pruneStale() {
	before := rl.now().Add(-2 * rl.cleanup)
	rl.reads.prune(before)
	if rl.writes != nil {
		rl.writes.prune(before)
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.done)
	})
}

// Middleware rejects requests over budget with 429 and Retry-After: 1.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := extractIP(r)
		if rl.trustProxy {
			client = forwardedIP(r, client)
		}

		var allowed bool
		if isMutating(r.Method) {
			allowed = rl.AllowWrite(client, r.Header.Get(HeaderUserID))
		} else {
			allowed = rl.Allow(client)
		}
		if !allowed {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// extractIP returns the host part of RemoteAddr.
func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedIP returns the first X-Forwarded-For hop, or fallback.
func forwardedIP(r *http.Request, fallback string) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return fallback
	}
	first, _, _ := strings.Cut(xff, ",")
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return fallback
}

// AuthFailureLimiterConfig configures admin login lockout.
type AuthFailureLimiterConfig struct {
	MaxFailures   int           // failures within Window that trigger lockout
	Window        time.Duration // counting window, restarted by the first failure
	LockoutPeriod time.Duration
}

// DefaultAuthFailureLimiterConfig locks a client out for 15 minutes after
// 5 failures within 5 minutes.
func DefaultAuthFailureLimiterConfig() AuthFailureLimiterConfig {
	return AuthFailureLimiterConfig{
		MaxFailures:   5,
		Window:        5 * time.Minute,
		LockoutPeriod: 15 * time.Minute,
	}
}

// AuthFailureLimiter counts admin authentication failures per client.
type AuthFailureLimiter struct {
	mu       sync.Mutex
	cfg      AuthFailureLimiterConfig
	failures map[string]*authFailure
	now      func() time.Time
}

type authFailure struct {
	count       int
	windowStart time.Time
	lockedUntil time.Time
}

// NewAuthFailureLimiter creates an auth failure limiter.
func NewAuthFailureLimiter(cfg AuthFailureLimiterConfig) *AuthFailureLimiter {
	return &AuthFailureLimiter{
		cfg:      cfg,
		failures: make(map[string]*authFailure),
		now:      time.Now,
	}
}

// IsLocked reports whether client is inside a lockout period.
func (afl *AuthFailureLimiter) IsLocked(client string) bool {
	return afl.LockoutSecondsRemaining(client) > 0
}

// RecordFailure records a failure for client and returns the attempts left
// before lockout, or -1 once locked.
func (afl *AuthFailureLimiter) RecordFailure(client string) int {
	afl.mu.Lock()
	defer afl.mu.Unlock()

	now := afl.now()
	f, ok := afl.failures[client]
	if !ok || now.Sub(f.windowStart) > afl.cfg.Window {
		f = &authFailure{windowStart: now}
		afl.failures[client] = f
	}

	f.count++
	if f.count >= afl.cfg.MaxFailures {
		f.lockedUntil = now.Add(afl.cfg.LockoutPeriod)
		return -1
	}
	return afl.cfg.MaxFailures - f.count
}

// RecordSuccess forgets the failures of client.
func (afl *AuthFailureLimiter) RecordSuccess(client string) {
	afl.mu.Lock()
	defer afl.mu.Unlock()
	delete(afl.failures, client)
}

// LockoutSecondsRemaining returns whole seconds until the lockout of client
// ends, rounded up, or 0 when it is not locked.
func (afl *AuthFailureLimiter) LockoutSecondsRemaining(client string) int {
	afl.mu.Lock()
	defer afl.mu.Unlock()

	f, ok := afl.failures[client]
	if !ok || f.lockedUntil.IsZero() {
		return 0
	}
	remaining := f.lockedUntil.Sub(afl.now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}
