package ratelimit

import (
	"context"
	"sync"
	"time"
)

// tokenBucket tracks the remaining allowance for one key. Refills happen
// lazily on access, so an idle bucket costs nothing between requests.
type tokenBucket struct {
	remaining float64
	touched   time.Time
}

const (
	sweepInterval = time.Minute
	idleEviction  = 10 * time.Minute
)

// MemoryLimiter is an in-process token-bucket Limiter. DataPilot keys the
// auth endpoints by client IP and the ask endpoints by authenticated user;
// either way each key gets its own bucket.
//
// A janitor goroutine drops buckets idle longer than idleEviction so the map
// stays bounded. Stop it with Close.
type MemoryLimiter struct {
	rps      float64 // refill rate, tokens per second
	capacity float64 // bucket size, i.e. the permitted burst

	mu      sync.Mutex
	entries map[string]*tokenBucket

	closeOnce sync.Once
	stop      chan struct{}
}

// NewMemoryLimiter creates a limiter allowing a sustained rate of `rate`
// requests per second per key, with bursts up to `burst`.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rps:      rate,
		capacity: float64(burst),
		entries:  make(map[string]*tokenBucket),
		stop:     make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Allow takes one token from key's bucket, reporting false when the bucket
// is empty and the request should be rejected.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.entries[key]
	if !ok {
		// Unseen keys start with a full bucket.
		b = &tokenBucket{remaining: m.capacity, touched: now}
		m.entries[key] = b
	} else {
		b.remaining = min(m.capacity, b.remaining+now.Sub(b.touched).Seconds()*m.rps)
		b.touched = now
	}

	if b.remaining < 1 {
		return false, nil
	}
	b.remaining--
	return true, nil
}

// Close stops the janitor. Idempotent.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryLimiter) janitor() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep drops buckets that have been idle past the eviction horizon. A
// dropped key simply starts over with a full bucket on its next request.
func (m *MemoryLimiter) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	horizon := time.Now().Add(-idleEviction)
	for key, b := range m.entries {
		if b.touched.Before(horizon) {
			delete(m.entries, key)
		}
	}
}
