package rag

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resume-ai-backend/internal/apperr"
	"resume-ai-backend/internal/logger"
)

// SearchMode selects how query and passages are compared.
type SearchMode string

const (
	// ModeHybrid fuses vector similarity with lexical overlap.
	ModeHybrid SearchMode = "hybrid"
	// ModeVector uses vector similarity only.
	ModeVector SearchMode = "vector"
	// ModeLexical uses token overlap only. Also what hybrid degrades to
	// when the embedding backend is down.
	ModeLexical SearchMode = "lexical"
)

// RetrievalHit is one scored passage from a search.
type RetrievalHit struct {
	Passage    *Passage
	LexScore   float64
	VecScore   float64
	FusedScore float64
	Rank       int
}

// IndexConfig carries the retrieval tuning knobs.
type IndexConfig struct {
	VectorWeight  float64
	LexicalWeight float64
	MaxQueryRunes int
}

// PassageIndex holds an immutable snapshot of scored-searchable passages.
// Rebuilds assemble a full replacement off to the side and swap it in
// atomically, so readers always see either the old or the new snapshot,
// never a partial one.
type PassageIndex struct {
	cfg   IndexConfig
	cache *EmbeddingCache
	snap  atomic.Pointer[snapshot]
}

type snapshot struct {
	passages []*Passage
	mode     SearchMode // mode the snapshot was built for
}

func NewPassageIndex(cache *EmbeddingCache, cfg IndexConfig) *PassageIndex {
	if cfg.VectorWeight <= 0 && cfg.LexicalWeight <= 0 {
		cfg.VectorWeight = 0.7
		cfg.LexicalWeight = 0.3
	}
	return &PassageIndex{cfg: cfg, cache: cache}
}

// Build embeds and tokenizes the given passages and swaps them in as the
// new snapshot. The previous snapshot stays valid for in-flight searches.
// If embedding fails the index falls back to a lexical-only snapshot so
// the service can still answer from token overlap.
func (ix *PassageIndex) Build(ctx context.Context, passages []Passage) error {
	ctx, span := otel.Tracer("passage-index").Start(ctx, "index.build")
	defer span.End()

	snap := &snapshot{passages: make([]*Passage, len(passages)), mode: ModeHybrid}
	texts := make([]string, len(passages))
	for i := range passages {
		p := passages[i]
		p.tokens = tokenSet(Tokenize(p.Text))
		snap.passages[i] = &p
		texts[i] = p.Text
	}

	vecs, err := ix.cache.Embed(ctx, texts)
	if err != nil {
		logger.Warn("Index build falling back to lexical-only scoring", "error", err)
		snap.mode = ModeLexical
	} else {
		for i := range snap.passages {
			snap.passages[i].vector = vecs[i]
		}
	}

	ix.snap.Store(snap)
	span.SetAttributes(
		attribute.Int("passages", len(passages)),
		attribute.String("mode", string(snap.mode)),
	)
	logger.Info("Passage index rebuilt", "passages", len(passages), "mode", snap.mode)
	return err
}

// Ready reports whether at least one build has completed.
func (ix *PassageIndex) Ready() bool {
	return ix.snap.Load() != nil
}

// Passages returns the current snapshot's passages in document order.
func (ix *PassageIndex) Passages() []*Passage {
	snap := ix.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.passages
}

// Search returns up to k passages ranked by fused score, descending, with
// ties broken by document order. An empty query or non-positive k yields
// an empty result. In hybrid mode an embedding failure degrades to
// lexical-only scoring instead of failing the search.
func (ix *PassageIndex) Search(ctx context.Context, query string, k int, mode SearchMode) ([]RetrievalHit, error) {
	snap := ix.snap.Load()
	if snap == nil {
		return nil, apperr.New(apperr.KindIndexUnavailable, "passage index has not been built yet")
	}

	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}
	if ix.cfg.MaxQueryRunes > 0 {
		if runes := []rune(query); len(runes) > ix.cfg.MaxQueryRunes {
			logger.Debug("Truncating oversized query", "runes", len(runes), "max", ix.cfg.MaxQueryRunes)
			query = string(runes[:ix.cfg.MaxQueryRunes])
		}
	}

	ctx, span := otel.Tracer("passage-index").Start(ctx, "index.search")
	defer span.End()

	if snap.mode == ModeLexical {
		mode = ModeLexical
	}

	queryTokens := tokenSet(Tokenize(query))

	var queryVec []float32
	if mode == ModeHybrid || mode == ModeVector {
		vec, err := ix.cache.EmbedOne(ctx, query)
		switch {
		case err == nil:
			queryVec = vec
		case mode == ModeVector:
			return nil, err
		default:
			logger.Warn("Query embedding failed, degrading to lexical scoring", "error", err)
			mode = ModeLexical
		}
	}

	wv, wl := ix.cfg.VectorWeight, ix.cfg.LexicalWeight
	switch mode {
	case ModeVector:
		wv, wl = 1, 0
	case ModeLexical:
		wv, wl = 0, 1
	}

	hits := make([]RetrievalHit, 0, len(snap.passages))
	for _, p := range snap.passages {
		lex := jaccard(queryTokens, p.tokens)
		vec := 0.0
		if queryVec != nil && p.vector != nil {
			// Cosine mapped from [-1,1] into [0,1] so it fuses cleanly.
			vec = (cosine(queryVec, p.vector) + 1) / 2
		}
		hits = append(hits, RetrievalHit{
			Passage:    p,
			LexScore:   lex,
			VecScore:   vec,
			FusedScore: wv*vec + wl*lex,
		})
	}

	// Stable sort keeps document order for equal fused scores.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].FusedScore > hits[j].FusedScore
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}

	span.SetAttributes(
		attribute.Int("hits", len(hits)),
		attribute.String("mode", string(mode)),
	)
	return hits, nil
}

// cosine returns the cosine similarity of two vectors, 0 when either has
// zero magnitude or lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
