// Package memcache implements the in-memory tier of the image cache: a
// recency-ordered store bounded by aggregate cost and entry count. Eviction
// is recency-biased — when either bound is exceeded, least recently used
// entries go first.
package memcache

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type entry[V any] struct {
	value V
	cost  int
}

// Cache is a cost-bounded LRU map. All methods are safe for concurrent use
// and never block on I/O, so it is callable from any goroutine.
type Cache[V any] struct {
	mu        sync.Mutex
	lru       *simplelru.LRU[string, entry[V]]
	costOf    func(V) int
	totalCost int
	maxCost   int
}

// New creates a cache. maxCost caps the aggregate cost of stored values and
// maxCount caps how many values are stored; zero disables the respective
// bound. costOf computes the cost of a value once, at insertion.
func New[V any](maxCost, maxCount int, costOf func(V) int) *Cache[V] {
	size := maxCount
	if size <= 0 {
		size = math.MaxInt
	}
	c := &Cache[V]{costOf: costOf, maxCost: maxCost}
	// The callback fires under c.mu for every removal path (displacement,
	// count overflow, explicit remove, purge), keeping totalCost exact.
	lru, err := simplelru.NewLRU(size, func(_ string, e entry[V]) {
		c.totalCost -= e.cost
	})
	if err != nil {
		panic(err) // size is always positive
	}
	c.lru = lru
	return c
}

// Get returns the value for key, marking it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key and evicts least recently used entries until
// both bounds hold again. A value whose cost alone exceeds the bound may
// evict everything, itself included.
func (c *Cache[V]) Set(key string, value V) {
	cost := 0
	if c.costOf != nil {
		cost = c.costOf(value)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Add replaces an existing value without the eviction callback firing,
	// so settle the old cost first.
	if old, ok := c.lru.Peek(key); ok {
		c.totalCost -= old.cost
	}
	c.lru.Add(key, entry[V]{value: value, cost: cost})
	c.totalCost += cost

	if c.maxCost > 0 {
		for c.totalCost > c.maxCost && c.lru.Len() > 0 {
			c.lru.RemoveOldest()
		}
	}
}

// Remove evicts key. Absent keys are a no-op.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of stored entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Cost returns the aggregate cost of stored entries.
func (c *Cache[V]) Cost() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCost
}
