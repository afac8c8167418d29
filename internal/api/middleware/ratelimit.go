package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Per-client rate limiting
// ──────────────────────────────────────────────────────────────────────────────

// Settlement endpoints get deliberately small bursts: a client retry loop
// hammering fund/release/refund must hit 429 quickly rather than queue up
// money movements. Read endpoints pass a higher rps and earn a wider burst.

// clientBucket tracks the remaining allowance for one client IP.
type clientBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// take refills the bucket from elapsed time and consumes one token.
func (b *clientBucket) take(rate, burst float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// idleSince reports whether the bucket saw no traffic since the cutoff.
func (b *clientBucket) idleSince(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRefill.Before(cutoff)
}

// clientLimiter holds the per-IP buckets for one route group.
type clientLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*clientBucket
	rate    float64
	burst   float64
}

// burstFor sizes the bucket: write-path limits (rps < 20) get exactly their
// rate as capacity, read-path limits absorb a double-rate spike.
func burstFor(rps int) float64 {
	if rps < 20 {
		return float64(rps)
	}
	return float64(2 * rps)
}

func newClientLimiter(rps int) *clientLimiter {
	return &clientLimiter{
		buckets: make(map[string]*clientBucket),
		rate:    float64(rps),
		burst:   burstFor(rps),
	}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		if b, ok = l.buckets[key]; !ok {
			b = &clientBucket{tokens: l.burst, lastRefill: time.Now()}
			l.buckets[key] = b
		}
		l.mu.Unlock()
	}
	return b.take(l.rate, l.burst)
}

// evictIdle drops buckets with no traffic since the cutoff so the map stays
// bounded by the active client set.
func (l *clientLimiter) evictIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if b.idleSince(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// RateLimitMiddleware enforces a per-IP token bucket of rps requests per
// second for the route group it is mounted on. Clients over the limit get a
// 429 in the standard response envelope.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	l := newClientLimiter(rps)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			l.evictIdle(time.Now().Add(-10 * time.Minute))
		}
	}()

	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded, slow down",
				"code":    "rate_limited",
			})
			return
		}
		c.Next()
	}
}
