package observability

import "sync"

// dedupCache is a bounded first-seen set with FIFO eviction. Both the API
// process and workers mark stage-history events through it.
type dedupCache struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
	head     int
}

func newDedupCache(capacity int) *dedupCache {
	return &dedupCache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

// mark returns true the first time a key is seen. When the cache is full the
// oldest key is evicted, after which it would count as new again.
func (c *dedupCache) mark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[key]; ok {
		return false
	}
	if len(c.seen) >= c.capacity {
		oldest := c.order[c.head]
		delete(c.seen, oldest)
		c.order[c.head] = key
		c.head = (c.head + 1) % c.capacity
	} else {
		c.order = append(c.order, key)
	}
	c.seen[key] = struct{}{}
	return true
}

func (c *dedupCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = make(map[string]struct{}, c.capacity)
	c.order = c.order[:0]
	c.head = 0
}
