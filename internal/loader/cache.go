package loader

import (
	"context"
	"fmt"

	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/pkg/cache"
)

type cached struct {
	url    string
	loader Loader
	cache  cache.Cache
}

// Load returns an asset. It uses an internal cache and a loader. This caches can, and probably is, shared with
// other loaders. If the asset is found in the cache it returns it. If not, loads it using the internal loader
// and caches it.
// TTL for cached items is forever
func (c *cached) Load(ctx context.Context) ([]byte, error) {
	key := assetKey(c.url)
	ctx = log.With(ctx, "key", key)
	var data []byte
	if found := c.cache.Get(ctx, key, &data); found {
		log.Debug(ctx, "asset found in cache")
		return data, nil
	}

	data, err := c.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, data, cache.ForEver); err != nil {
		log.Warn(ctx, "adding asset to cache. Bypassing cache", "err", err)
	}

	return data, nil
}

func assetKey(url string) string {
	return fmt.Sprintf("asset-%s", url)
}

// Cached is a loader that uses a cache. That cache can be shared by multiple loaders.
func Cached(l Loader, c cache.Cache, url string) Loader {
	return &cached{
		url:    url,
		loader: l,
		cache:  c,
	}
}

// CachedFactory returns a function factory able to create Cached Loaders. That means, loaders that
// look on a cache for an asset before trying to fetch it
func CachedFactory(f Factory, c cache.Cache) Factory {
	return func(url string) Loader {
		return Cached(f(url), c, url)
	}
}
