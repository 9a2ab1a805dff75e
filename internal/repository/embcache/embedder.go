package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/db"
	"github.com/kailas-cloud/ragstream/internal/domain"
)

// DefaultKeyPrefix namespaces cache entries in the shared store.
const DefaultKeyPrefix = "ragstream:emb_cache:"

// Cache tiers, used as metric label values.
const (
	TierMemory = "memory"
	TierStore  = "store"
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config tunes both cache tiers. A zero MemoryTTL disables the in-process tier.
type Config struct {
	Model     string
	KeyPrefix string
	StoreTTL  time.Duration
	MemoryTTL time.Duration
}

// CachedEmbedder caches query embeddings in process memory (L1) and in the
// key-value store (L2). Entries are namespaced by model so switching models
// never returns vectors from a different embedding space.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	memory     *cache.Cache
	cfg        Config
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with labels "tier" and "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	s store,
	cfg Config,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	ce := &CachedEmbedder{
		inner:      inner,
		store:      s,
		cfg:        cfg,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
	if cfg.MemoryTTL > 0 {
		ce.memory = cache.New(cfg.MemoryTTL, 2*cfg.MemoryTTL)
	}
	return ce
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if c.memory != nil {
		if x, found := c.memory.Get(key); found {
			c.incCache(TierMemory, "hit")
			return domain.EmbeddingResult{Embedding: x.([]float32)}, nil
		}
		c.incCache(TierMemory, "miss")
	}

	if vec, ok := c.getFromStore(ctx, key); ok {
		c.incCache(TierStore, "hit")
		c.putToMemory(key, vec)
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.incCache(TierStore, "miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.putToMemory(key, result.Embedding)
	c.putToStore(ctx, key, result.Embedding)
	return result, nil
}

// HealthCheck delegates to the inner embedder when it supports it.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		//nolint:wrapcheck // transparent delegation
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) incCache(tier, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(tier, result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.cfg.KeyPrefix + c.cfg.Model + ":" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) putToMemory(key string, vec []float32) {
	if c.memory != nil {
		c.memory.Set(key, vec, cache.DefaultExpiration)
	}
}

func (c *CachedEmbedder) getFromStore(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *CachedEmbedder) putToStore(ctx context.Context, key string, vec []float32) {
	data := vectorToCacheBytes(vec)
	if err := c.store.SetWithTTL(ctx, key, data, c.cfg.StoreTTL); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
