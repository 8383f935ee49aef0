// Package cache stores computed validation responses so that repeated
// assessment of an unchanged document skips the validator pipeline. Entries
// are tenant-prefixed; one tenant can never read or evict another tenant's
// verdicts.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// LRUCache is the in-memory cache: bounded size, least-recently-used
// eviction, per-entry TTL. It also serves as the L1 of the two-phase cache.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	index   map[string]*list.Element
	recency *list.List // front = most recently used
}

type entry struct {
	key      string
	value    []byte
	deadline time.Time
}

// NewLRUCache builds an in-memory cache holding at most maxSize entries.
// Non-positive sizes select the default of 10000.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize: maxSize,
		index:   make(map[string]*list.Element),
		recency: list.New(),
	}
}

func (c *LRUCache) scopedKey(tenantID, key string) string {
	return tenantID + ":" + key
}

// Get returns the stored value, or (nil, nil) on a miss. An entry past its
// TTL is dropped on the spot and reported as a miss.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[c.scopedKey(tenantID, key)]
	if !ok {
		return nil, nil
	}

	e := elem.Value.(*entry)
	if time.Now().After(e.deadline) {
		c.drop(elem)
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	return e.value, nil
}

// Set stores a value under the tenant's key, replacing any existing entry
// and evicting the least recently used entries past capacity.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	scoped := c.scopedKey(tenantID, key)
	deadline := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[scoped]; ok {
		c.recency.MoveToFront(elem)
		e := elem.Value.(*entry)
		e.value = value
		e.deadline = deadline
		return nil
	}

	elem := c.recency.PushFront(&entry{key: scoped, value: value, deadline: deadline})
	c.index[scoped] = elem

	for c.recency.Len() > c.maxSize {
		if oldest := c.recency.Back(); oldest != nil {
			c.drop(oldest)
		}
	}
	return nil
}

// Delete removes one entry. Deleting an absent key is not an error.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[c.scopedKey(tenantID, key)]; ok {
		c.drop(elem)
	}
	return nil
}

// GetResponse fetches a cached validation response, or (nil, nil) on a miss.
// Responses live in their own "resp:" keyspace so they never collide with
// raw entries.
func (c *LRUCache) GetResponse(ctx context.Context, tenantID string, key string) (*domain.ValidationResponse, error) {
	data, err := c.Get(ctx, tenantID, "resp:"+key)
	if err != nil || data == nil {
		return nil, err
	}

	var resp domain.ValidationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetResponse caches a validation response under the "resp:" keyspace.
func (c *LRUCache) SetResponse(ctx context.Context, tenantID string, key string, resp *domain.ValidationResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, "resp:"+key, data, ttl)
}

// Clear drops every entry belonging to one tenant.
func (c *LRUCache) Clear(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	prefix := tenantID + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	for scoped, elem := range c.index {
		if strings.HasPrefix(scoped, prefix) {
			c.drop(elem)
		}
	}
	return nil
}

// Ping always succeeds; the in-memory cache has no backend to probe.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.recency = list.New()
	return nil
}

// Stats reports current entry count and capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len(), c.maxSize
}

// drop removes an element from both the recency list and the index.
// Callers must hold c.mu.
func (c *LRUCache) drop(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.index, elem.Value.(*entry).key)
}
