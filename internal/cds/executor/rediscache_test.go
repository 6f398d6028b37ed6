package executor

import (
	"context"
	"testing"
	"time"

	"cds-orchestrator/internal/cds/model"
	"cds-orchestrator/internal/common/database"
	"cds-orchestrator/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := &database.RedisClient{
		Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, logger.NewNoOpLogger()), mr
}

func TestRedisCache_SetGetRoundTrip(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	resp := &model.HookResponse{
		Cards: []model.Card{{
			UUID:            "c1",
			Summary:         "Patient overdue for A1C",
			Indicator:       model.IndicatorWarning,
			Source:          model.Source{Label: "Care Gaps"},
			OriginServiceID: "pv-hygiene",
		}},
	}

	cache.Set(ctx, "key1", resp, time.Minute)

	got, ok := cache.Get(ctx, "key1")
	require.True(t, ok)
	assert.Equal(t, resp.Cards, got.Cards)
}

func TestRedisCache_MissOnUnknownKey(t *testing.T) {
	cache, _ := setupRedisCache(t)

	_, ok := cache.Get(context.Background(), "absent")
	assert.False(t, ok)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	cache, mr := setupRedisCache(t)
	ctx := context.Background()

	cache.Set(ctx, "key1", &model.HookResponse{Cards: []model.Card{}}, 30*time.Second)

	_, ok := cache.Get(ctx, "key1")
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	_, ok = cache.Get(ctx, "key1")
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntryDropped(t *testing.T) {
	cache, mr := setupRedisCache(t)
	require.NoError(t, mr.Set(redisKeyPrefix+"bad", "not-json"))

	_, ok := cache.Get(context.Background(), "bad")
	assert.False(t, ok)
	assert.False(t, mr.Exists(redisKeyPrefix+"bad"))
}

func TestRedisCache_Invalidate(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	cache.Set(ctx, "a", &model.HookResponse{}, time.Minute)
	cache.Set(ctx, "b", &model.HookResponse{}, time.Minute)
	cache.Invalidate(ctx)

	_, okA := cache.Get(ctx, "a")
	_, okB := cache.Get(ctx, "b")
	assert.False(t, okA)
	assert.False(t, okB)
}
