// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry TTL. The reader uses it to hold issuer key sets fetched from
// the directory so that repeated verifications don't refetch JWKS
// documents.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a generic thread-safe LRU cache with optional TTL expiry.
// A zero TTL means entries never expire.
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	items    map[K]*entry[K, V]
	order    *list.List
	capacity int
	ttl      time.Duration

	// now is replaceable for tests.
	now func() time.Time

	// Metrics (lock-free using atomics)
	hits    atomic.Uint64
	misses  atomic.Uint64
	evicts  atomic.Uint64
	expired atomic.Uint64
}

// entry holds a cached value, its position in the LRU list and its expiry.
type entry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
	element *list.Element
}

// New creates a new Cache with the specified capacity and no TTL.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	return NewWithTTL[K, V](capacity, 0)
}

// NewWithTTL creates a new Cache whose entries expire ttl after they are
// set. When the cache is full, the least recently used item is evicted.
func NewWithTTL[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache[K, V]{
		items:    make(map[K]*entry[K, V], capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get retrieves a value from the cache. Returns the value and true if
// found and not expired. Accessing an item moves it to the front of the
// LRU list; an expired item is removed on access.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	if c.ttl > 0 && c.now().After(e.expires) {
		c.expired.Add(1)
		c.misses.Add(1)
		c.Delete(key)
		return zero, false
	}

	c.hits.Add(1)

	c.mu.Lock()
	c.order.MoveToFront(e.element)
	c.mu.Unlock()

	return e.value, true
}

// Set adds or updates a value in the cache, refreshing its TTL.
// If the cache is at capacity, the least recently used item is evicted.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Time{}
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expires = expires
		c.order.MoveToFront(e.element)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictOldest()
	}

	element := c.order.PushFront(key)
	c.items[key] = &entry[K, V]{
		key:     key,
		value:   value,
		expires: expires,
		element: element,
	}
}

// evictOldest removes the least recently used item.
// Must be called with mu held.
func (c *Cache[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}

	key := oldest.Value.(K)
	delete(c.items, key)
	c.order.Remove(oldest)
	c.evicts.Add(1)
}

// Delete removes an item from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		delete(c.items, key)
		c.order.Remove(e.element)
	}
}

// Len returns the number of items currently cached, including any that
// have expired but not yet been removed.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all items.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*entry[K, V], c.capacity)
	c.order.Init()
}

// Stats holds cache metrics.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Evicts  uint64
	Expired uint64
}

// Stats returns a snapshot of the cache metrics.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Evicts:  c.evicts.Load(),
		Expired: c.expired.Load(),
	}
}
