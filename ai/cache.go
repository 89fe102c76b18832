package ai

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of embeddings a CachedEmbedder keeps.
const DefaultCacheSize = 1024

// CachedEmbedder memoizes embeddings in an LRU cache keyed by model and text.
// Repeated questions in the query command and re-indexed descriptions hit the cache.
type CachedEmbedder struct {
	inner Embedder
	model string
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU cache holding size entries.
func NewCachedEmbedder(inner Embedder, model string, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, model: model, cache: cache}, nil
}

func (c *CachedEmbedder) key(text string) string {
	return c.model + "\x00" + text
}

// EmbedText returns the cached vector or embeds and caches it.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(c.key(text)); ok {
		return v, nil
	}
	v, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(c.key(text), v)
	return v, nil
}

// EmbedTexts embeds only the texts that miss the cache, in one batch.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := c.cache.Get(c.key(text)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(missing))
	}
	for j, v := range vectors {
		out[missingIdx[j]] = v
		c.cache.Add(c.key(missing[j]), v)
	}
	return out, nil
}

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
