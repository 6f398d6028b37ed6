// internal/cds/executor/rediscache.go
package executor

import (
	"context"
	"encoding/json"
	"time"

	"cds-orchestrator/internal/cds/model"
	"cds-orchestrator/internal/common/database"
	"cds-orchestrator/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cds:response:"

// RedisCache is a ResponseCache backed by Redis, for deployments where
// multiple UI instances should share the per-service response cache.
// Expiry is Redis-native, so Prune is a no-op.
type RedisCache struct {
	client *database.RedisClient
	logger logger.Logger
}

func NewRedisCache(client *database.RedisClient, log logger.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "response-cache"}),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*model.HookResponse, bool) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key)
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("response cache read failed", nil)
		}
		return nil, false
	}

	var resp model.HookResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		c.logger.WithError(err).Warn("response cache entry corrupt, dropping", nil)
		_ = c.client.Del(ctx, redisKeyPrefix+key)
		return nil, false
	}
	return &resp, true
}

func (c *RedisCache) Set(ctx context.Context, key string, resp *model.HookResponse, ttl time.Duration) {
	if resp == nil || ttl <= 0 {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, ttl); err != nil {
		c.logger.WithError(err).Warn("response cache write failed", nil)
	}
}

func (c *RedisCache) Prune(_ context.Context) {}

func (c *RedisCache) Invalidate(ctx context.Context) {
	iter := c.client.Client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Warn("response cache invalidation incomplete", nil)
	}
}
