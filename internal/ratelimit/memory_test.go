package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, rate float64, burst int) *MemoryLimiter {
	t.Helper()
	m := NewMemoryLimiter(rate, burst)
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close error: %v", err)
		}
	})
	return m
}

func mustAllow(t *testing.T, m *MemoryLimiter, key string) bool {
	t.Helper()
	ok, err := m.Allow(context.Background(), key)
	if err != nil {
		t.Fatalf("Allow(%q) error: %v", key, err)
	}
	return ok
}

func TestMemoryLimiterBurst(t *testing.T) {
	m := newTestLimiter(t, 10, 3)

	for i := 0; i < 3; i++ {
		if !mustAllow(t, m, "user-a") {
			t.Fatalf("request %d should fit within the burst", i)
		}
	}
	if mustAllow(t, m, "user-a") {
		t.Fatal("request past the burst should be rejected")
	}
}

func TestMemoryLimiterRefill(t *testing.T) {
	// 1000 tokens per second refills one token per millisecond.
	m := newTestLimiter(t, 1000, 2)

	mustAllow(t, m, "user-a")
	mustAllow(t, m, "user-a")
	if mustAllow(t, m, "user-a") {
		t.Fatal("bucket should be empty right after the burst")
	}

	time.Sleep(5 * time.Millisecond)

	if !mustAllow(t, m, "user-a") {
		t.Fatal("bucket should have refilled after waiting")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	m := newTestLimiter(t, 10, 1)

	if !mustAllow(t, m, "203.0.113.7") {
		t.Fatal("first request for the first key should pass")
	}
	if mustAllow(t, m, "203.0.113.7") {
		t.Fatal("second request for the first key should be rejected")
	}
	if !mustAllow(t, m, "203.0.113.8") {
		t.Fatal("an exhausted key must not affect other keys")
	}
}

func TestMemoryLimiterRefillCapsAtBurst(t *testing.T) {
	m := newTestLimiter(t, 1000, 3)
	mustAllow(t, m, "user-a")

	// Backdate the bucket so the lazy refill computes a huge credit.
	m.mu.Lock()
	m.entries["user-a"].touched = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	for i := 0; i < 3; i++ {
		if !mustAllow(t, m, "user-a") {
			t.Fatalf("request %d should pass after a long idle period", i)
		}
	}
	if mustAllow(t, m, "user-a") {
		t.Fatal("idle credit must not exceed the burst size")
	}
}

func TestMemoryLimiterConcurrentAccess(t *testing.T) {
	m := newTestLimiter(t, 100, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ok, err := m.Allow(context.Background(), "shared")
				if err != nil {
					t.Errorf("Allow error: %v", err)
					return
				}
				if ok {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 100 near-simultaneous requests against a burst of 50.
	if allowed < 1 || allowed > 50 {
		t.Fatalf("expected between 1 and 50 allowed requests, got %d", allowed)
	}
}

func TestMemoryLimiterSweep(t *testing.T) {
	m := newTestLimiter(t, 10, 5)

	mustAllow(t, m, "stale")
	mustAllow(t, m, "fresh")

	m.mu.Lock()
	m.entries["stale"].touched = time.Now().Add(-idleEviction - time.Minute)
	m.mu.Unlock()

	m.sweep()

	m.mu.Lock()
	_, staleExists := m.entries["stale"]
	_, freshExists := m.entries["fresh"]
	m.mu.Unlock()

	if staleExists {
		t.Error("idle bucket should have been swept")
	}
	if !freshExists {
		t.Error("recently used bucket must survive the sweep")
	}
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	if err := m.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "anything")
		if err != nil || !ok {
			t.Fatalf("NoopLimiter must always allow, got ok=%v err=%v", ok, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}
