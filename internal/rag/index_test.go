package rag

import (
	"context"
	"testing"

	"resume-ai-backend/internal/apperr"
)

func testIndex(t *testing.T, backend EmbeddingBackend) *PassageIndex {
	t.Helper()
	cache, err := NewEmbeddingCache(backend, 64, 0)
	if err != nil {
		t.Fatalf("NewEmbeddingCache: %v", err)
	}
	return NewPassageIndex(cache, IndexConfig{VectorWeight: 0.7, LexicalWeight: 0.3})
}

func samplePassages() []Passage {
	return []Passage{
		{ID: "p1", Section: "experience", Text: "Built Go microservices with Redis and Kafka at scale"},
		{ID: "p2", Section: "skills", Text: "Python SQL Kubernetes Docker Terraform"},
		{ID: "p3", Section: "education", Text: "Bachelor of Science in Computer Science"},
		{ID: "p4", Section: "projects", Text: "Implemented a retrieval engine for semantic search over documents"},
	}
}

func TestSearchBeforeBuildReturnsIndexUnavailable(t *testing.T) {
	ix := testIndex(t, &fakeEmbedder{})
	_, err := ix.Search(context.Background(), "anything", 3, ModeHybrid)
	if !apperr.IsKind(err, apperr.KindIndexUnavailable) {
		t.Fatalf("expected index_unavailable, got %v", err)
	}
}

func TestSearchRespectsKAndOrdering(t *testing.T) {
	ix := testIndex(t, &fakeEmbedder{})
	if err := ix.Build(context.Background(), samplePassages()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, k := range []int{1, 2, 3, 10} {
		hits, err := ix.Search(context.Background(), "Go microservices Redis", k, ModeHybrid)
		if err != nil {
			t.Fatalf("Search k=%d: %v", k, err)
		}
		if len(hits) > k {
			t.Errorf("k=%d returned %d hits", k, len(hits))
		}
		for i := 1; i < len(hits); i++ {
			if hits[i].FusedScore > hits[i-1].FusedScore {
				t.Errorf("hits not in descending fused order at %d: %f > %f", i, hits[i].FusedScore, hits[i-1].FusedScore)
			}
			if hits[i].Rank != i+1 {
				t.Errorf("rank %d expected at position %d, got %d", i+1, i, hits[i].Rank)
			}
		}
	}
}

func TestSearchEmptyQueryAndBadK(t *testing.T) {
	ix := testIndex(t, &fakeEmbedder{})
	if err := ix.Build(context.Background(), samplePassages()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	cases := []struct {
		query string
		k     int
	}{
		{"", 5},
		{"   ", 5},
		{"valid query", 0},
		{"valid query", -1},
	}
	for _, tc := range cases {
		hits, err := ix.Search(context.Background(), tc.query, tc.k, ModeHybrid)
		if err != nil {
			t.Errorf("Search(%q, %d): unexpected error %v", tc.query, tc.k, err)
		}
		if len(hits) != 0 {
			t.Errorf("Search(%q, %d): expected empty result, got %d hits", tc.query, tc.k, len(hits))
		}
	}
}

func TestSearchFindsLexicallyRelevantPassage(t *testing.T) {
	ix := testIndex(t, &fakeEmbedder{})
	if err := ix.Build(context.Background(), samplePassages()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	hits, err := ix.Search(context.Background(), "Kubernetes Docker experience", 1, ModeHybrid)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Passage.ID != "p2" {
		t.Fatalf("expected skills passage first, got %+v", hits)
	}
	if hits[0].LexScore <= 0 {
		t.Error("expected positive lexical score for overlapping query")
	}
}

func TestSearchDegradesToLexicalOnEmbeddingFailure(t *testing.T) {
	backend := &fakeEmbedder{}
	ix := testIndex(t, backend)
	if err := ix.Build(context.Background(), samplePassages()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Backend goes down after the build; hybrid search must still answer.
	backend.mu.Lock()
	backend.fail = true
	backend.mu.Unlock()

	hits, err := ix.Search(context.Background(), "Kubernetes Docker never-cached-query", 2, ModeHybrid)
	if err != nil {
		t.Fatalf("hybrid search should degrade, not fail: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected lexical hits after degradation")
	}
	if hits[0].VecScore != 0 {
		t.Errorf("degraded search should carry no vector score, got %f", hits[0].VecScore)
	}

	// Vector-only mode has nothing to degrade to.
	if _, err := ix.Search(context.Background(), "another uncached query", 2, ModeVector); !apperr.IsKind(err, apperr.KindEmbedding) {
		t.Errorf("expected embedding_error in vector mode, got %v", err)
	}
}

func TestRebuildSwapsSnapshotAtomically(t *testing.T) {
	ix := testIndex(t, &fakeEmbedder{})
	if err := ix.Build(context.Background(), samplePassages()); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	before, err := ix.Search(context.Background(), "retrieval engine", 2, ModeHybrid)
	if err != nil {
		t.Fatalf("Search before rebuild: %v", err)
	}

	replacement := []Passage{
		{ID: "n1", Section: "experience", Text: "Completely different resume about embedded firmware"},
	}
	if err := ix.Build(context.Background(), replacement); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// Hits from before the rebuild still point at their own snapshot.
	if before[0].Passage.ID != "p4" {
		t.Errorf("pre-rebuild hit mutated: %+v", before[0].Passage)
	}

	after, err := ix.Search(context.Background(), "embedded firmware", 5, ModeHybrid)
	if err != nil {
		t.Fatalf("Search after rebuild: %v", err)
	}
	for _, h := range after {
		if h.Passage.ID != "n1" {
			t.Errorf("post-rebuild search returned passage from old snapshot: %s", h.Passage.ID)
		}
	}
}

func TestTokenizeDropsPunctuationAndCase(t *testing.T) {
	got := Tokenize("Built C#, Go and K8s-based systems (2020)!")
	want := []string{"built", "c#", "go", "and", "k8s", "based", "systems", "2020"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize = %v, want %v", got, want)
		}
	}
}
