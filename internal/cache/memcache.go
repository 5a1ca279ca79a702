package cache

import (
	"container/list"
	"sync"
	"time"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
	"github.com/pycache/pycache/pkg/types"
)

// MemoryCache is a thread-safe in-process cache bounded to capacity entries,
// with optional per-entry TTL. Expired entries are dropped lazily on access
// and in bulk by Cleanup.
type MemoryCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most recently used

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time
}

type memEntry[K comparable, V any] struct {
	key       K
	value     V
	createdAt time.Time
	ttl       time.Duration // 0 disables expiry for this entry
	hitCount  uint64
}

// NewMemoryCache returns a cache holding at most capacity entries.
func NewMemoryCache[K comparable, V any](capacity int) (*MemoryCache[K, V], error) {
	if capacity <= 0 {
		return nil, cacheerrors.Errorf(cacheerrors.ErrCodeInvalidConfig,
			"memory cache capacity must be positive, got %d", capacity)
	}
	return &MemoryCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}, nil
}

// Get returns the value for key and refreshes its recency. An expired entry
// is removed and reported as a miss.
func (c *MemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	entry := elem.Value.(*memEntry[K, V])
	if c.expiredLocked(entry) {
		c.removeLocked(elem)
		c.evictions++
		c.misses++
		return zero, false
	}

	entry.hitCount++
	c.order.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Put stores value under key with the given TTL (0 disables expiry),
// evicting the least recently used entry when at capacity.
func (c *MemoryCache[K, V]) Put(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*memEntry[K, V])
		entry.value = value
		entry.createdAt = c.now()
		entry.ttl = ttl
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.removeLocked(back)
			c.evictions++
		}
	}

	entry := &memEntry[K, V]{key: key, value: value, createdAt: c.now(), ttl: ttl}
	c.items[key] = c.order.PushFront(entry)
}

// Remove drops key if present and reports whether it was.
func (c *MemoryCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

// Cleanup sweeps out every expired entry and returns how many were dropped.
func (c *MemoryCache[K, V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if c.expiredLocked(elem.Value.(*memEntry[K, V])) {
			c.removeLocked(elem)
			c.evictions++
			removed++
		}
		elem = next
	}
	return removed
}

// Clear drops every entry. Counters survive so hit rates stay meaningful
// across clears.
func (c *MemoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// Len returns the number of entries currently held, expired ones included.
func (c *MemoryCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *MemoryCache[K, V]) Stats() types.MemoryCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := types.MemoryCacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.order.Len(),
		Capacity:  c.capacity,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *MemoryCache[K, V]) expiredLocked(entry *memEntry[K, V]) bool {
	return entry.ttl > 0 && c.now().Sub(entry.createdAt) > entry.ttl
}

func (c *MemoryCache[K, V]) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memEntry[K, V])
	c.order.Remove(elem)
	delete(c.items, entry.key)
}
