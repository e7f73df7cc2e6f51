package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// LRUCache is a bounded in-process Store. Expired entries are dropped when
// read; the least recently used entry goes when the bound is exceeded.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	index    map[string]*list.Element
	recency  *list.List // front is most recently used
	now      func() time.Time
}

type lruEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// NewLRUCache returns an empty cache. capacity <= 0 means 10000.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LRUCache{
		capacity: capacity,
		index:    make(map[string]*list.Element),
		recency:  list.New(),
		now:      time.Now,
	}
}

func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		return nil, nil
	}
	e := elem.Value.(*lruEntry)
	if !c.now().Before(e.expires) {
		c.drop(elem)
		return nil, nil
	}
	c.recency.MoveToFront(elem)
	return e.value, nil
}

func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)
	if elem, ok := c.index[key]; ok {
		e := elem.Value.(*lruEntry)
		e.value, e.expires = value, expires
		c.recency.MoveToFront(elem)
		return nil
	}

	c.index[key] = c.recency.PushFront(&lruEntry{key: key, value: value, expires: expires})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
	}
	return nil
}

func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.index[key]; ok {
		c.drop(elem)
	}
	return nil
}

func (c *LRUCache) Ping(context.Context) error { return nil }

// Close empties the cache. It stays usable.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.index)
	c.recency.Init()
	return nil
}

// Stats reports the number of entries held and the bound.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len(), c.capacity
}

func (c *LRUCache) drop(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.index, elem.Value.(*lruEntry).key)
}
