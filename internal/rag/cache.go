package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"resume-ai-backend/internal/apperr"
	"resume-ai-backend/internal/logger"
)

// EmbeddingBackend turns a batch of texts into vectors. Implementations
// live in internal/ai; the cache never cares which provider is behind it.
type EmbeddingBackend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// EmbeddingCache fronts an EmbeddingBackend with a bounded LRU keyed by
// a hash of the text. Concurrent requests for the same uncached text are
// coalesced so the backend sees at most one call per distinct text.
type EmbeddingCache struct {
	backend  EmbeddingBackend
	maxInput int

	store *lru.Cache[string, []float32]

	mu       sync.Mutex
	inflight map[string]*inflightEmbed
}

type inflightEmbed struct {
	done chan struct{}
	vec  []float32
	err  error
}

// NewEmbeddingCache creates a cache holding at most size vectors.
// maxInput bounds input length in runes; longer texts are truncated
// before hashing so the truncated form is what gets cached.
func NewEmbeddingCache(backend EmbeddingBackend, size, maxInput int) (*EmbeddingCache, error) {
	if size <= 0 {
		size = 1024
	}
	store, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &EmbeddingCache{
		backend:  backend,
		maxInput: maxInput,
		store:    store,
		inflight: make(map[string]*inflightEmbed),
	}, nil
}

// Embed returns one vector per input text, in input order. Cached texts
// are served from memory; the remaining distinct texts go to the backend
// in a single batch call. On backend failure nothing is cached and the
// whole call fails with an embedding_error.
func (c *EmbeddingCache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	normalized := make([]string, len(texts))
	for i, text := range texts {
		normalized[i] = c.truncate(text)
		keys[i] = hashText(normalized[i])
	}

	results := make(map[string][]float32, len(texts))

	// Partition distinct keys into cached, owned by this call, and owned
	// by another in-flight call.
	var ownKeys []string
	var ownTexts []string
	waitFor := make(map[string]*inflightEmbed)

	c.mu.Lock()
	seen := make(map[string]struct{}, len(keys))
	for i, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if vec, ok := c.store.Get(key); ok {
			results[key] = vec
			continue
		}
		if fl, ok := c.inflight[key]; ok {
			waitFor[key] = fl
			continue
		}
		fl := &inflightEmbed{done: make(chan struct{})}
		c.inflight[key] = fl
		ownKeys = append(ownKeys, key)
		ownTexts = append(ownTexts, normalized[i])
	}
	c.mu.Unlock()

	if len(ownKeys) > 0 {
		vecs, err := c.backend.EmbedBatch(ctx, ownTexts)
		if err == nil && len(vecs) != len(ownKeys) {
			err = apperr.Newf(apperr.KindEmbedding, "backend returned %d vectors for %d texts", len(vecs), len(ownKeys))
		}
		if err != nil && apperr.Kind(err) != apperr.KindEmbedding {
			err = apperr.Wrap(apperr.KindEmbedding, "embedding backend call failed", err)
		}

		c.mu.Lock()
		for i, key := range ownKeys {
			fl := c.inflight[key]
			delete(c.inflight, key)
			if err != nil {
				fl.err = err
			} else {
				fl.vec = vecs[i]
				c.store.Add(key, vecs[i])
			}
			close(fl.done)
		}
		c.mu.Unlock()

		if err != nil {
			logger.Warn("Embedding batch failed", "texts", len(ownTexts), "error", err)
			return nil, err
		}
		for i, key := range ownKeys {
			results[key] = vecs[i]
		}
	}

	// Coalesced callers share the leader's outcome, success or failure.
	for key, fl := range waitFor {
		select {
		case <-fl.done:
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.KindEmbedding, "embedding wait cancelled", ctx.Err())
		}
		if fl.err != nil {
			return nil, fl.err
		}
		results[key] = fl.vec
	}

	out := make([][]float32, len(texts))
	for i, key := range keys {
		out[i] = results[key]
	}
	return out, nil
}

// EmbedOne is a convenience wrapper for single-text callers.
func (c *EmbeddingCache) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Len reports how many vectors are currently cached.
func (c *EmbeddingCache) Len() int {
	return c.store.Len()
}

func (c *EmbeddingCache) truncate(text string) string {
	if c.maxInput <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= c.maxInput {
		return text
	}
	logger.Debug("Truncating embedding input", "runes", len(runes), "max", c.maxInput)
	return string(runes[:c.maxInput])
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
