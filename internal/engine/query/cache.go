package query

import (
	"container/list"
	"sync"
)

// ExpansionCache holds expanded record lists keyed by assembly full name.
// One cache lives on each pipeline context; least-recently used assemblies
// are evicted once capacity is reached.
type ExpansionCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most-recently used
}

type cacheEntry struct {
	key     string
	records []MetaData
}

// NewExpansionCache creates a cache; capacity <= 0 is normalised to 1.
func NewExpansionCache(capacity int) *ExpansionCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &ExpansionCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the cached records for key. A hit moves the entry to the front.
func (c *ExpansionCache) Get(key string) ([]MetaData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).records, true
}

func (c *ExpansionCache) Put(key string, records []MetaData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).records = records
		return
	}

	if c.order.Len() >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.order.Remove(back)
			delete(c.items, back.Value.(*cacheEntry).key)
		}
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, records: records})
}

// Invalidate drops key, forcing the next expansion to walk the graph again.
// Callers use it after structural edits to an assembly.
func (c *ExpansionCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

func (c *ExpansionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
