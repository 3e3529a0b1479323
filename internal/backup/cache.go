package backup

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "blob:"

// RedisCache is a BlobCache backed by redis. Entries never expire: a root
// hash always addresses the same bytes.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects a blob cache.
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Get returns the cached blob for a root hash. Cache failures read as misses.
func (c *RedisCache) Get(ctx context.Context, rootHash string) ([]byte, bool) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+rootHash).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores a blob. Failures are ignored; the cache is best-effort.
func (c *RedisCache) Set(ctx context.Context, rootHash string, data []byte) {
	c.client.Set(ctx, cacheKeyPrefix+rootHash, data, 0)
}
