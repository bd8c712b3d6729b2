package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/clinisights/dx-core/internal/monitoring"
	"github.com/clinisights/dx-core/pkg/logger"
)

// redisCache implements EmbeddingCache against a single Redis/Valkey
// node. Backend failures count as misses; they never propagate to the
// request path.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewRedisCache connects to Redis and verifies connectivity.
func NewRedisCache(addr, password string, db int, ttl time.Duration, log logger.Logger) (EmbeddingCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to embedding cache: %w", err)
	}

	return &redisCache{client: client, ttl: ttl, logger: log}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	b, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		monitoring.RecordCacheOperation("get", "miss")
		return nil, false
	}
	if err != nil {
		monitoring.RecordCacheOperation("get", "error")
		monitoring.RecordDegradedMode("cache")
		c.logger.Warn("Embedding cache get failed; treating as miss", "error", err)
		return nil, false
	}
	vec, ok := decodeVector(b)
	if !ok {
		monitoring.RecordCacheOperation("get", "error")
		c.logger.Warn("Embedding cache payload malformed; treating as miss", "key", key, "bytes", len(b))
		return nil, false
	}
	monitoring.RecordCacheOperation("get", "hit")
	return vec, true
}

func (c *redisCache) Set(ctx context.Context, key string, vec []float32) {
	if err := c.client.Set(ctx, key, encodeVector(vec), c.ttl).Err(); err != nil {
		monitoring.RecordCacheOperation("set", "error")
		monitoring.RecordDegradedMode("cache")
		c.logger.Warn("Embedding cache set failed; continuing uncached", "error", err)
		return
	}
	monitoring.RecordCacheOperation("set", "success")
}

func (c *redisCache) Clear(ctx context.Context, pattern string) error {
	if pattern == "" {
		pattern = keyPrefix + "*"
	}
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			monitoring.RecordCacheOperation("clear", "error")
			return fmt.Errorf("cache clear scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				monitoring.RecordCacheOperation("clear", "error")
				return fmt.Errorf("cache clear delete failed: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	monitoring.RecordCacheOperation("clear", "success")
	return nil
}

func (c *redisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
