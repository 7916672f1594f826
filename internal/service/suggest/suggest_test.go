package suggest

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/datapilot-ai/datapilot/internal/service/embedding"
)

// countingProvider counts Embed calls and blocks until released, so a test
// can pile up concurrent callers.
type countingProvider struct {
	calls   atomic.Int32
	release chan struct{}
	fail    bool
}

func (p *countingProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	if p.fail {
		return pgvector.Vector{}, errors.New("provider down")
	}
	return pgvector.NewVector([]float32{1, 2, 3}), nil
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	out := make([]pgvector.Vector, len(texts))
	for i := range texts {
		v, err := p.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *countingProvider) Dimensions() int { return 3 }

func TestEmbedQuestion(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := New(nil, &countingProvider{}, nil)
		vec := s.EmbedQuestion(context.Background(), "total sales?")
		if vec == nil {
			t.Fatal("expected embedding")
		}
		if got := vec.Slice(); len(got) != 3 {
			t.Errorf("unexpected vector: %v", got)
		}
	})

	t.Run("provider failure returns nil", func(t *testing.T) {
		s := New(nil, &countingProvider{fail: true}, nil)
		if vec := s.EmbedQuestion(context.Background(), "total sales?"); vec != nil {
			t.Errorf("expected nil on provider failure, got %v", vec)
		}
	})

	t.Run("zero vector returns nil", func(t *testing.T) {
		s := New(nil, embedding.NewNoopProvider(8), nil)
		if vec := s.EmbedQuestion(context.Background(), "total sales?"); vec != nil {
			t.Errorf("expected nil for a zero embedding, got %v", vec)
		}
	})
}

func TestSimilarDisabledWithNoopProvider(t *testing.T) {
	s := New(nil, embedding.NewNoopProvider(8), nil)
	got, err := s.Similar(context.Background(), uuid.New(), "total sales?", 5)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected no suggestions with a no-op provider, got %v", got)
	}
}

func TestEmbedDeduplicatesConcurrentCalls(t *testing.T) {
	p := &countingProvider{release: make(chan struct{})}
	s := New(nil, p, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*pgvector.Vector, callers)
	for i := range callers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = s.EmbedQuestion(context.Background(), "same question")
		}(i)
	}

	// Let the goroutines pile up on the in-flight call, then release it.
	for p.calls.Load() == 0 {
		runtime.Gosched()
	}
	time.Sleep(50 * time.Millisecond)
	close(p.release)
	wg.Wait()

	if n := p.calls.Load(); n != 1 {
		t.Errorf("expected 1 provider call for identical text, got %d", n)
	}
	for i, vec := range results {
		if vec == nil {
			t.Errorf("caller %d got nil embedding", i)
		}
	}
}
