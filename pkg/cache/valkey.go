package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/polygonid/verifier-node/internal/log"
)

type valKeyCache struct {
	client valkey.Client
}

// NewValKeyCache returns a Cache backed by client. Values are stored as JSON under the namespace prefix.
func NewValKeyCache(client valkey.Client) Cache {
	return &valKeyCache{client: client}
}

func (v valKeyCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	val, err := json.Marshal(value)
	if err != nil {
		log.Error(ctx, "error marshalling value", "err", err)
		return err
	}
	if ttl == ForEver {
		return v.client.Do(ctx, v.client.B().Set().Key(namespaced(key)).Value(string(val)).Build()).Error()
	}
	return v.client.Do(ctx, v.client.B().Set().Key(namespaced(key)).Value(string(val)).Px(ttl).Build()).Error()
}

func (v valKeyCache) Get(ctx context.Context, key string, value any) bool {
	result := v.client.Do(ctx, v.client.B().Get().Key(namespaced(key)).Build())
	if result.Error() != nil {
		if !valkey.IsValkeyNil(result.Error()) {
			log.Error(ctx, "error getting value", "err", result.Error())
		}
		return false
	}
	raw, err := result.AsBytes()
	if err != nil {
		log.Error(ctx, "error converting value", "err", err)
		return false
	}
	if err := json.Unmarshal(raw, value); err != nil {
		log.Error(ctx, "error unmarshalling value", "err", err)
		return false
	}
	return true
}

func (v valKeyCache) Exists(ctx context.Context, key string) bool {
	result := v.client.Do(ctx, v.client.B().Exists().Key(namespaced(key)).Build())
	if result.Error() != nil {
		log.Error(ctx, "error checking if key exists", "err", result.Error())
		return false
	}
	n, err := result.AsInt64()
	if err != nil {
		log.Error(ctx, "error converting result to int64", "err", err)
		return false
	}
	return n == 1
}

func (v valKeyCache) Delete(ctx context.Context, key string) error {
	return v.client.Do(ctx, v.client.B().Del().Key(namespaced(key)).Build()).Error()
}
