package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/sentinela/internal/domain"
)

const redisPrefix = "sentinela:"

// RedisCache stores entries in Redis. It is the pro cache and the L2 of the
// two-phase cache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func redisKey(datasetID, key string) (string, error) {
	if datasetID == "" {
		return "", fmt.Errorf("datasetID is required")
	}
	return redisPrefix + datasetID + ":" + key, nil
}

// Get returns the value for key, or nil when absent.
func (c *RedisCache) Get(ctx context.Context, datasetID, key string) ([]byte, error) {
	k, err := redisKey(datasetID, key)
	if err != nil {
		return nil, err
	}
	val, err := c.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores value with a TTL.
func (c *RedisCache) Set(ctx context.Context, datasetID, key string, value []byte, ttl time.Duration) error {
	k, err := redisKey(datasetID, key)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, k, value, ttl).Err()
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, datasetID, key string) error {
	k, err := redisKey(datasetID, key)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, k).Err()
}

// GetAssessment returns the cached assessment for an input hash, or nil.
func (c *RedisCache) GetAssessment(ctx context.Context, datasetID, inputHash string) (*domain.Assessment, error) {
	return loadAssessment(ctx, c, datasetID, inputHash)
}

// SetAssessment caches an assessment.
func (c *RedisCache) SetAssessment(ctx context.Context, datasetID, inputHash string, a *domain.Assessment, ttl time.Duration) error {
	return storeAssessment(ctx, c, datasetID, inputHash, a, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
