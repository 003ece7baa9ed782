package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"smsinbox/internal/constants"
	"smsinbox/pkg/models"
)

var ErrCacheMiss = errors.New("stats cache miss")

// Cache holds computed Stats per generation. Invalidate moves to a new
// generation, so a snapshot written under an older one is never served again.
type Cache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64) (*models.Stats, error)
	Set(ctx context.Context, gen int64, stats *models.Stats) error
	Invalidate(ctx context.Context) error
}

type RedisCache struct {
	client *redis.Client
	prefix string
	genKey string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: constants.CacheKeyStats,
		genKey: constants.CacheKeyStatsGen,
		ttl:    ttl,
	}
}

func (c *RedisCache) key(gen int64) string {
	return fmt.Sprintf("%s:%d", c.prefix, gen)
}

// Generation returns the current generation, 0 before the first Invalidate.
func (c *RedisCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) Get(ctx context.Context, gen int64) (*models.Stats, error) {
	val, err := c.client.Get(ctx, c.key(gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var stats models.Stats
	if err := json.Unmarshal(val, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode cached stats: %w", err)
	}
	return &stats, nil
}

func (c *RedisCache) Set(ctx context.Context, gen int64, stats *models.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	if err := c.client.Set(ctx, c.key(gen), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.genKey).Err(); err != nil {
		return fmt.Errorf("redis incr failed: %w", err)
	}
	return nil
}
