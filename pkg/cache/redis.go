package cache

import (
	"context"
	"time"

	"github.com/go-redis/cache/v8"
	"github.com/go-redis/redis/v8"
)

// redisCache stores msgpack encoded values under the namespace prefix
type redisCache struct {
	c *cache.Cache
}

// NewRedisCache returns a Cache backed by client
func NewRedisCache(client *redis.Client) Cache {
	return &redisCache{c: cache.New(&cache.Options{Redis: client})}
}

func (r *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return r.c.Set(&cache.Item{
		Ctx:            ctx,
		Key:            namespaced(key),
		Value:          value,
		TTL:            ttl,
		SkipLocalCache: true,
	})
}

func (r *redisCache) Get(ctx context.Context, key string, value any) bool {
	return r.c.Get(ctx, namespaced(key), value) == nil
}

func (r *redisCache) Exists(ctx context.Context, key string) bool {
	return r.c.Exists(ctx, namespaced(key))
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	return r.c.Delete(ctx, namespaced(key))
}
