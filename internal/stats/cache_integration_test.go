//go:build integration

package stats

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"smsinbox/pkg/models"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisCache(t *testing.T) {
	client := setupRedis(t)
	cache := NewRedisCache(client, time.Minute)
	ctx := context.Background()

	gen, err := cache.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	_, err = cache.Get(ctx, gen)
	assert.ErrorIs(t, err, ErrCacheMiss)

	first := "2025-01-15T10:00:00Z"
	want := &models.Stats{
		TotalMessages:     1,
		SendersCount:      1,
		MessagesPerSender: []models.SenderCount{{From: "+1", Count: 1}},
		FirstMessageTS:    &first,
		LastMessageTS:     &first,
	}
	require.NoError(t, cache.Set(ctx, gen, want))

	got, err := cache.Get(ctx, gen)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ttl, err := client.TTL(ctx, "stats:v1:0").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, cache.Invalidate(ctx))
	next, err := cache.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	_, err = cache.Get(ctx, next)
	assert.ErrorIs(t, err, ErrCacheMiss)

	// A late write under the old generation stays invisible.
	require.NoError(t, cache.Set(ctx, gen, want))
	_, err = cache.Get(ctx, next)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
