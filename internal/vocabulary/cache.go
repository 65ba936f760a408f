package vocabulary

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache caches resolved vocabulary terms in Redis. Lookups during
// patient normalization repeat the same small set of HPO and gene ids, so
// even a short TTL absorbs most of the engine traffic.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func cacheKey(index, id string) string {
	return "vocab:" + index + ":" + id
}

func (c *RedisCache) GetTerm(ctx context.Context, index, id string) (*Term, bool) {
	raw, err := c.client.Get(ctx, cacheKey(index, id)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn("term cache read failed", "index", index, "id", id, "error", err)
		return nil, false
	}

	var term Term
	if err := json.Unmarshal(raw, &term); err != nil {
		c.log.Warn("term cache entry corrupt", "index", index, "id", id, "error", err)
		return nil, false
	}
	return &term, true
}

func (c *RedisCache) SetTerm(ctx context.Context, index, id string, term *Term) {
	raw, err := json.Marshal(term)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(index, id), raw, c.ttl).Err(); err != nil {
		c.log.Warn("term cache write failed", "index", index, "id", id, "error", err)
	}
}
