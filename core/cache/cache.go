// Package cache provides a generic memoization layer for read-heavy derived
// views, keyed by project, query, arguments and a monotonic version counter.
// Invalidation bumps the version, stranding every previously stored entry
// without walking and deleting them eagerly.
package cache

import (
	"container/list"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type entry struct {
	key      string
	value    interface{}
	version  uint64
	storedAt time.Time
}

// VersionedCache is a bounded LRU cache with time-to-live and
// version-stamped invalidation. Capacity and TTL are fixed at construction.
type VersionedCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	version  uint64
	order    *list.List // front = most recently used
	items    map[string]*list.Element
	now      func() time.Time
}

// New creates a cache holding at most capacity entries, each valid for ttl
func New(capacity int, ttl time.Duration) *VersionedCache {
	if capacity < 1 {
		capacity = 1
	}
	return &VersionedCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get returns the cached value only if it is present, not expired and was
// stored under the cache's current version. A hit promotes the entry to
// most-recently-used; a stale or expired entry is evicted and reported as
// a miss.
func (c *VersionedCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return nil, false
	}

	e := element.Value.(*entry)
	if e.version != c.version || c.now().After(e.storedAt.Add(c.ttl)) {
		c.order.Remove(element)
		delete(c.items, key)
		return nil, false
	}

	c.order.MoveToFront(element)
	return e.value, true
}

// Set stores the value stamped with the current version and a fresh expiry.
// If the cache is at capacity and the key is new, the least-recently-used
// entry is evicted first.
func (c *VersionedCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		e := element.Value.(*entry)
		e.value = value
		e.version = c.version
		e.storedAt = c.now()
		c.order.MoveToFront(element)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}

	element := c.order.PushFront(&entry{
		key:      key,
		value:    value,
		version:  c.version,
		storedAt: c.now(),
	})
	c.items[key] = element
}

// Invalidate increments the current version. Every previously stored entry
// will miss on its next Get even before its TTL elapses.
func (c *VersionedCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
}

// Version returns the current version counter
func (c *VersionedCache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Len returns the number of stored entries, including stranded ones that
// have not been lazily evicted yet
func (c *VersionedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// BuildKey derives a cache key for a project-scoped query. Arguments are
// sorted by name and serialized so that two calls with differing version
// numbers (or differing arguments) never collide.
func BuildKey(project string, query string, args map[string]interface{}, version uint64) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|v%d", project, query, version)
	for _, name := range names {
		fmt.Fprintf(&b, "|%s=%v", name, args[name])
	}
	return b.String()
}
