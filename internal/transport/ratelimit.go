// Copyright 2025 Kyungsuk Kim
//
// Token bucket rate limiting for the HTTP transport.

package transport

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a token bucket. A nil *RateLimiter is a valid,
// disabled limiter whose Allow always succeeds, so callers never need
// to branch on whether limiting is configured.
type RateLimiter struct {
	mu         sync.Mutex
	clock      func() time.Time
	lastRefill time.Time
	rate       float64 // tokens per second
	burst      float64 // bucket capacity
	tokens     float64
}

// NewRateLimiter builds a limiter allowing requestsPerSecond sustained,
// with a burst of twice that. A non-positive rate returns nil, which
// disables limiting.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	return NewRateLimiterWithClock(requestsPerSecond, time.Now)
}

// NewRateLimiterWithClock is NewRateLimiter with an injectable clock
// for tests.
func NewRateLimiterWithClock(requestsPerSecond float64, clock func() time.Time) *RateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	burst := requestsPerSecond * 2
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clock:      clock,
		lastRefill: clock(),
		rate:       requestsPerSecond,
		burst:      burst,
		tokens:     burst,
	}
}

// Allow consumes one token if available.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	r.tokens += now.Sub(r.lastRefill).Seconds() * r.rate
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
	r.lastRefill = now

	if r.tokens < 1 {
		return false
	}
	r.tokens--
	return true
}

// Tokens reports the currently available tokens, or -1 for a disabled
// limiter.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return -1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens
}

// RateLimitMiddleware rejects over-limit requests with 429. The /health
// and /metrics endpoints stay exempt so load balancers and scrapers are
// never throttled.
func RateLimitMiddleware(limiter *RateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
