package rag

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	texts int
	fail  bool
	block chan struct{} // when set, EmbedBatch waits before returning
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.texts += len(texts)
	block := f.block
	fail := f.fail
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail {
		return nil, errors.New("backend down")
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 4 }

// deterministicVector derives a stable 4-dim vector from the text bytes.
func deterministicVector(text string) []float32 {
	v := make([]float32, 4)
	for i, b := range []byte(text) {
		v[i%4] += float32(b)
	}
	return v
}

func (f *fakeEmbedder) stats() (calls, texts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.texts
}

func TestEmbedCachesRepeatedTexts(t *testing.T) {
	backend := &fakeEmbedder{}
	cache, err := NewEmbeddingCache(backend, 16, 0)
	if err != nil {
		t.Fatalf("NewEmbeddingCache: %v", err)
	}

	first, err := cache.Embed(context.Background(), []string{"golang services", "distributed systems"})
	if err != nil {
		t.Fatalf("first Embed: %v", err)
	}
	second, err := cache.Embed(context.Background(), []string{"golang services", "distributed systems"})
	if err != nil {
		t.Fatalf("second Embed: %v", err)
	}

	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("vector %d changed between calls: %v vs %v", i, first[i], second[i])
			}
		}
	}

	calls, texts := backend.stats()
	if calls != 1 || texts != 2 {
		t.Errorf("expected 1 backend call with 2 texts, got %d calls with %d texts", calls, texts)
	}
}

func TestEmbedBatchesOnlyUncachedTexts(t *testing.T) {
	backend := &fakeEmbedder{}
	cache, _ := NewEmbeddingCache(backend, 16, 0)

	if _, err := cache.Embed(context.Background(), []string{"a known text"}); err != nil {
		t.Fatalf("warm Embed: %v", err)
	}
	if _, err := cache.Embed(context.Background(), []string{"a known text", "a new text", "a new text"}); err != nil {
		t.Fatalf("mixed Embed: %v", err)
	}

	_, texts := backend.stats()
	// 1 from warmup + 1 for the single distinct uncached text.
	if texts != 2 {
		t.Errorf("expected 2 embedded texts total, got %d", texts)
	}
}

func TestEmbedCoalescesConcurrentRequests(t *testing.T) {
	backend := &fakeEmbedder{block: make(chan struct{})}
	cache, _ := NewEmbeddingCache(backend, 16, 0)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	started := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			_, errs[i] = cache.Embed(context.Background(), []string{"same text everywhere"})
		}(i)
	}
	for i := 0; i < workers; i++ {
		<-started
	}
	close(backend.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}

	calls, _ := backend.stats()
	if calls != 1 {
		t.Errorf("expected a single coalesced backend call, got %d", calls)
	}
}

func TestEmbedFailureCachesNothing(t *testing.T) {
	backend := &fakeEmbedder{fail: true}
	cache, _ := NewEmbeddingCache(backend, 16, 0)

	if _, err := cache.Embed(context.Background(), []string{"will fail"}); err == nil {
		t.Fatal("expected error from failing backend")
	}
	if cache.Len() != 0 {
		t.Errorf("failed batch must not populate the cache, got %d entries", cache.Len())
	}

	// Recovery: the same text embeds fine once the backend is back.
	backend.mu.Lock()
	backend.fail = false
	backend.mu.Unlock()
	if _, err := cache.Embed(context.Background(), []string{"will fail"}); err != nil {
		t.Fatalf("Embed after recovery: %v", err)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cached entry after recovery, got %d", cache.Len())
	}
}

func TestEmbedTruncatesOversizedInput(t *testing.T) {
	backend := &fakeEmbedder{}
	cache, _ := NewEmbeddingCache(backend, 16, 10)

	long := "0123456789" + "overflow"
	a, err := cache.Embed(context.Background(), []string{long})
	if err != nil {
		t.Fatalf("Embed long: %v", err)
	}
	b, err := cache.Embed(context.Background(), []string{"0123456789"})
	if err != nil {
		t.Fatalf("Embed truncated: %v", err)
	}

	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("truncated input should share the cache entry of its prefix")
		}
	}
	calls, _ := backend.stats()
	if calls != 1 {
		t.Errorf("expected truncated text to hit cache, got %d backend calls", calls)
	}
}
