package feed

import "sync"

// DedupCache remembers processed execution ids up to a fixed capacity,
// evicting the oldest id first once the capacity is exceeded. Ids, once
// added, are never accepted again until evicted or the cache is reset.
type DedupCache struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
	head     int
}

// NewDedupCache creates a cache holding at most capacity ids.
func NewDedupCache(capacity int) *DedupCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &DedupCache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// Add records an id and reports whether it was new. Already-seen ids
// return false and leave the cache unchanged.
func (c *DedupCache) Add(id string) bool {
	if id == "" {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return false
	}

	if len(c.seen) >= c.capacity {
		oldest := c.order[c.head]
		delete(c.seen, oldest)
		c.order[c.head] = id
		c.head = (c.head + 1) % c.capacity
	} else {
		c.order = append(c.order, id)
	}
	c.seen[id] = struct{}{}

	return true
}

// Len returns the number of remembered ids.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Reset forgets all remembered ids.
func (c *DedupCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = make(map[string]struct{}, c.capacity)
	c.order = c.order[:0]
	c.head = 0
}
