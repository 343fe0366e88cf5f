// Package cache keeps doctor configuration snapshots close to the calculator.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/compenso/internal/domain"
)

// LRUCache holds snapshots in process memory, evicting the least recently
// read doctor once maxSize entries are stored. Expired entries are dropped on
// read.
type LRUCache struct {
	mu      sync.RWMutex
	maxSize int
	entries map[string]*list.Element
	recency *list.List // front is most recently used
}

type snapshot struct {
	key       string
	data      []byte
	expiresAt time.Time
}

func (s *snapshot) expired(now time.Time) bool {
	return now.After(s.expiresAt)
}

// NewLRUCache creates an LRU cache holding at most maxSize snapshots.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		recency: list.New(),
	}
}

// Get returns the stored bytes, or nil on a miss.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[scopedKey(tenantID, key)]
	if !ok {
		return nil, nil
	}

	snap := elem.Value.(*snapshot)
	if snap.expired(time.Now()) {
		c.drop(elem)
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	return snap.data, nil
}

// Set stores bytes for ttl, replacing any previous value.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	full := scopedKey(tenantID, key)
	expiresAt := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[full]; ok {
		snap := elem.Value.(*snapshot)
		snap.data = value
		snap.expiresAt = expiresAt
		c.recency.MoveToFront(elem)
		return nil
	}

	c.entries[full] = c.recency.PushFront(&snapshot{key: full, data: value, expiresAt: expiresAt})
	for c.recency.Len() > c.maxSize {
		c.drop(c.recency.Back())
	}
	return nil
}

// Delete forgets a key. Deleting a missing key is not an error.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[scopedKey(tenantID, key)]; ok {
		c.drop(elem)
	}
	return nil
}

// GetDoctorConfig returns the cached snapshot of a doctor, or nil.
func (c *LRUCache) GetDoctorConfig(ctx context.Context, tenantID string, doctorID string) (*domain.DoctorConfig, error) {
	return getDoctorConfig(ctx, c, tenantID, doctorID)
}

// SetDoctorConfig caches a doctor snapshot.
func (c *LRUCache) SetDoctorConfig(ctx context.Context, tenantID string, cfg *domain.DoctorConfig, ttl time.Duration) error {
	return setDoctorConfig(ctx, c, tenantID, cfg, ttl)
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.recency = list.New()
	return nil
}

// Stats reports how many snapshots are held and the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recency.Len(), c.maxSize
}

func (c *LRUCache) drop(elem *list.Element) {
	if elem == nil {
		return
	}
	c.recency.Remove(elem)
	delete(c.entries, elem.Value.(*snapshot).key)
}

func scopedKey(tenantID, key string) string {
	return tenantID + ":" + key
}
