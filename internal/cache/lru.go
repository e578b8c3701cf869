package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/sentinela/internal/domain"
)

// LRUCache is a thread-safe LRU with per-entry TTL. It is the community cache
// and the L1 of the two-phase cache.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates an LRU holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

func lruKey(datasetID, key string) (string, error) {
	if datasetID == "" {
		return "", fmt.Errorf("datasetID is required")
	}
	return datasetID + ":" + key, nil
}

// Get returns the value for key, or nil when absent or expired.
func (c *LRUCache) Get(_ context.Context, datasetID, key string) ([]byte, error) {
	k, err := lruKey(datasetID, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[k]
	if !ok {
		return nil, nil
	}
	e := elem.Value.(*lruEntry)
	if c.now().After(e.expiresAt) {
		c.remove(elem)
		return nil, nil
	}
	c.order.MoveToFront(elem)
	return e.value, nil
}

// Set stores value for ttl, evicting the least recently used entries.
func (c *LRUCache) Set(_ context.Context, datasetID, key string, value []byte, ttl time.Duration) error {
	k, err := lruKey(datasetID, key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)
	if elem, ok := c.items[k]; ok {
		e := elem.Value.(*lruEntry)
		e.value, e.expiresAt = value, expires
		c.order.MoveToFront(elem)
		return nil
	}

	c.items[k] = c.order.PushFront(&lruEntry{key: k, value: value, expiresAt: expires})
	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
	return nil
}

// Delete removes key.
func (c *LRUCache) Delete(_ context.Context, datasetID, key string) error {
	k, err := lruKey(datasetID, key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[k]; ok {
		c.remove(elem)
	}
	return nil
}

// GetAssessment returns the cached assessment for an input hash, or nil.
func (c *LRUCache) GetAssessment(ctx context.Context, datasetID, inputHash string) (*domain.Assessment, error) {
	return loadAssessment(ctx, c, datasetID, inputHash)
}

// SetAssessment caches an assessment.
func (c *LRUCache) SetAssessment(ctx context.Context, datasetID, inputHash string, a *domain.Assessment, ttl time.Duration) error {
	return storeAssessment(ctx, c, datasetID, inputHash, a, ttl)
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error { return nil }

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Stats returns the current size and capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) remove(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry).key)
}
