package persistence

import (
	"context"
	"time"

	"triage_server/core/port/out"
	"triage_server/pkg/cache"
)

// EmbeddingCache implements out.EmbeddingStore on Redis so category
// vectors are shared between instances.
type EmbeddingCache struct {
	cache *cache.RedisCache
}

func NewEmbeddingCache(redisCache *cache.RedisCache) *EmbeddingCache {
	return &EmbeddingCache{cache: redisCache}
}

func embeddingCacheKey(key string) string {
	return "embedding:" + key
}

func (c *EmbeddingCache) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	var vec []float32
	found, err := c.cache.GetJSON(ctx, embeddingCacheKey(key), &vec)
	if err != nil || !found {
		return nil, false, err
	}
	return vec, len(vec) > 0, nil
}

func (c *EmbeddingCache) SetEmbedding(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	return c.cache.SetJSON(ctx, embeddingCacheKey(key), vec, ttl)
}

var _ out.EmbeddingStore = (*EmbeddingCache)(nil)
