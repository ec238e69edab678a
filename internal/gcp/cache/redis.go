package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/s2"
	"github.com/redis/go-redis/v9"

	"georef/internal/transform"
	"georef/pkg/platform/sentinel"
)

// RedisCache stores residual sets as s2-compressed JSON with a TTL.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, fingerprint uint64) (transform.ResidualSet, error) {
	raw, err := c.client.Get(ctx, Key(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return transform.ResidualSet{}, sentinel.ErrCacheMiss
		}
		return transform.ResidualSet{}, fmt.Errorf("redis get residuals: %w", err)
	}
	decoded, err := s2.Decode(nil, raw)
	if err != nil {
		return transform.ResidualSet{}, fmt.Errorf("decode cached residuals: %w", err)
	}
	var set transform.ResidualSet
	if err := json.Unmarshal(decoded, &set); err != nil {
		return transform.ResidualSet{}, fmt.Errorf("unmarshal cached residuals: %w", err)
	}
	return set, nil
}

func (c *RedisCache) Set(ctx context.Context, fingerprint uint64, set transform.ResidualSet) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal residuals: %w", err)
	}
	if err := c.client.Set(ctx, Key(fingerprint), s2.Encode(nil, raw), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set residuals: %w", err)
	}
	return nil
}
