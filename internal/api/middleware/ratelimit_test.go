package middleware

import (
	"testing"
	"time"
)

func TestBurstSizing(t *testing.T) {
	if got := burstFor(10); got != 10 {
		t.Fatalf("write-path limit should get no extra burst, got %v", got)
	}
	if got := burstFor(50); got != 100 {
		t.Fatalf("read-path limit should absorb a double-rate spike, got %v", got)
	}
}

func TestLimiterExhaustsAndRefills(t *testing.T) {
	l := newClientLimiter(10)

	for i := 0; i < 10; i++ {
		if !l.allow("10.0.0.1") {
			t.Fatalf("request %d should be within the burst", i)
		}
	}
	if l.allow("10.0.0.1") {
		t.Fatal("request past the burst should be rejected")
	}

	// Another client has its own bucket.
	if !l.allow("10.0.0.2") {
		t.Fatal("a fresh client must not inherit an exhausted bucket")
	}

	// Rewind the refill clock one second: the bucket earns back its rate.
	l.mu.RLock()
	b := l.buckets["10.0.0.1"]
	l.mu.RUnlock()
	b.mu.Lock()
	b.lastRefill = b.lastRefill.Add(-time.Second)
	b.mu.Unlock()
	if !l.allow("10.0.0.1") {
		t.Fatal("bucket should refill from elapsed time")
	}
}

func TestLimiterEvictsIdleClients(t *testing.T) {
	l := newClientLimiter(10)
	l.allow("10.0.0.1")
	l.allow("10.0.0.2")

	l.mu.RLock()
	b := l.buckets["10.0.0.1"]
	l.mu.RUnlock()
	b.mu.Lock()
	b.lastRefill = time.Now().Add(-time.Hour)
	b.mu.Unlock()

	l.evictIdle(time.Now().Add(-10 * time.Minute))

	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.buckets["10.0.0.1"]; ok {
		t.Fatal("idle bucket should be evicted")
	}
	if _, ok := l.buckets["10.0.0.2"]; !ok {
		t.Fatal("active bucket should survive eviction")
	}
}
