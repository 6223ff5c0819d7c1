package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/betterspotlight/bspotlight/internal/errors"
)

// Cache configuration constants.
const (
	// DefaultEmbeddingCacheSize bounds the query-embedding LRU: at 768
	// dimensions * 4 bytes, 1000 entries is roughly 3MB.
	DefaultEmbeddingCacheSize = 1000

	// embedBreakerMaxFailures trips the breaker after this many consecutive
	// inner-embedder failures, so a downed Ollama/MLX sidecar fails fast on
	// subsequent queries instead of waiting out its own dial/read timeout
	// on every single request.
	embedBreakerMaxFailures = 3

	// embedBreakerResetTimeout is how long the breaker stays open before
	// letting one probe request through (half-open).
	embedBreakerResetTimeout = 10 * time.Second
)

// CachedEmbedder wraps an Embedder with LRU result caching and a circuit
// breaker around the inner embedder's network calls (Ollama/MLX are both
// local HTTP sidecars that can be mid-restart or simply absent). Caching
// avoids redundant computation for repeated queries; the breaker avoids
// re-dialing a sidecar that just failed on every query in between.
type CachedEmbedder struct {
	inner   Embedder
	cache   *lru.Cache[string, []float32]
	breaker *errors.CircuitBreaker
}

// NewCachedEmbedder creates a cached embedder wrapping the given embedder.
// Cache size determines the number of unique query embeddings to keep in memory.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{
		inner: inner,
		cache: cache,
		breaker: errors.NewCircuitBreaker(
			"embed."+inner.ModelName(),
			errors.WithMaxFailures(embedBreakerMaxFailures),
			errors.WithResetTimeout(embedBreakerResetTimeout),
		),
	}
}

// NewCachedEmbedderWithDefaults creates a cached embedder with default settings.
func NewCachedEmbedderWithDefaults(inner Embedder) *CachedEmbedder {
	return NewCachedEmbedder(inner, DefaultEmbeddingCacheSize)
}

// BreakerState reports the embed-call circuit breaker's current state, for
// the inference service's get_inference_health surface.
func (c *CachedEmbedder) BreakerState() errors.State {
	return c.breaker.State()
}

// cacheKey generates a unique key for the cache based on text and model.
// Using SHA256 ensures consistent key length and handles arbitrary text.
func (c *CachedEmbedder) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ModelName()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns cached embedding if available, otherwise computes and caches.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	// Check cache first
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	// Cache miss: compute embedding, fast-failing through the breaker so a
	// downed sidecar doesn't make every query wait out its own timeout.
	vec, err := errors.CircuitExecuteWithResult(c.breaker,
		func() ([]float32, error) { return c.inner.Embed(ctx, text) },
		func() ([]float32, error) { return nil, errors.ErrCircuitOpen },
	)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts, caching each result.
// Individual texts are checked/cached separately for maximum cache reuse.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	// First pass: check cache for each text
	for i, text := range texts {
		key := c.cacheKey(text)
		if vec, ok := c.cache.Get(key); ok {
			results[i] = vec
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	// If all cached, we're done
	if len(uncachedTexts) == 0 {
		return results, nil
	}

	// Batch embed uncached texts, through the same breaker as Embed so a
	// failing indexing batch trips it before burning the whole batch's worth
	// of per-request timeouts.
	newEmbeddings, err := errors.CircuitExecuteWithResult(c.breaker,
		func() ([][]float32, error) { return c.inner.EmbedBatch(ctx, uncachedTexts) },
		func() ([][]float32, error) { return nil, errors.ErrCircuitOpen },
	)
	if err != nil {
		return nil, err
	}

	// Store results and update cache
	for j, idx := range uncachedIndices {
		results[idx] = newEmbeddings[j]
		key := c.cacheKey(texts[idx])
		c.cache.Add(key, newEmbeddings[j])
	}

	return results, nil
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Available checks if the embedder is ready (passthrough to inner).
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close releases resources and closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}

// Inner returns the underlying embedder.
// This allows callers to access embedder-specific features like progress callbacks
// that are not part of the Embedder interface.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}

// SetBatchIndex passes through to the inner embedder for thermal timeout progression.
func (c *CachedEmbedder) SetBatchIndex(idx int) {
	c.inner.SetBatchIndex(idx)
}

// SetFinalBatch passes through to the inner embedder for final batch timeout boost.
func (c *CachedEmbedder) SetFinalBatch(isFinal bool) {
	c.inner.SetFinalBatch(isFinal)
}
