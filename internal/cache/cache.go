// Package cache stores computed assessments keyed by snapshot input hash, so
// an unchanged population is never re-analysed.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/sentinela/internal/domain"
)

// New creates a cache from configuration.
//   - "memory": in-process LRU
//   - "redis": Redis, optionally fronted by an LRU (two-phase)
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// byteStore is the raw key/value surface every backend provides.
type byteStore interface {
	Get(ctx context.Context, datasetID, key string) ([]byte, error)
	Set(ctx context.Context, datasetID, key string, value []byte, ttl time.Duration) error
}

func assessmentKey(inputHash string) string {
	return "assessment:" + inputHash
}

func loadAssessment(ctx context.Context, s byteStore, datasetID, inputHash string) (*domain.Assessment, error) {
	data, err := s.Get(ctx, datasetID, assessmentKey(inputHash))
	if err != nil || data == nil {
		return nil, err
	}
	var a domain.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode cached assessment: %w", err)
	}
	return &a, nil
}

func storeAssessment(ctx context.Context, s byteStore, datasetID, inputHash string, a *domain.Assessment, ttl time.Duration) error {
	if a == nil {
		return fmt.Errorf("assessment is required")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	return s.Set(ctx, datasetID, assessmentKey(inputHash), data, ttl)
}

// TwoPhaseCache reads a local LRU first and falls back to Redis.
// Redis hits are copied into the LRU with a shorter TTL.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

func (c *TwoPhaseCache) localTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < c.l1TTL {
		return ttl
	}
	return c.l1TTL
}

// Get reads L1, then L2.
func (c *TwoPhaseCache) Get(ctx context.Context, datasetID, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, datasetID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, datasetID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, datasetID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes both levels; L1 never outlives L2.
func (c *TwoPhaseCache) Set(ctx context.Context, datasetID, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, datasetID, key, value, c.localTTL(ttl)); err != nil {
		return err
	}
	return c.remote.Set(ctx, datasetID, key, value, ttl)
}

// Delete removes from both levels.
func (c *TwoPhaseCache) Delete(ctx context.Context, datasetID, key string) error {
	if err := c.local.Delete(ctx, datasetID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, datasetID, key)
}

// GetAssessment returns the cached assessment for an input hash, or nil.
func (c *TwoPhaseCache) GetAssessment(ctx context.Context, datasetID, inputHash string) (*domain.Assessment, error) {
	return loadAssessment(ctx, c, datasetID, inputHash)
}

// SetAssessment caches an assessment in both levels.
func (c *TwoPhaseCache) SetAssessment(ctx context.Context, datasetID, inputHash string, a *domain.Assessment, ttl time.Duration) error {
	return storeAssessment(ctx, c, datasetID, inputHash, a, ttl)
}

// Ping checks both levels.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both levels.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
