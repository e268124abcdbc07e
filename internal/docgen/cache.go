package docgen

import (
	"container/list"
	"sync"
)

// Cache is a bounded, concurrency-safe LRU map from request fingerprint to Doc. A Cache of size 0 stores nothing.
type Cache struct {
	mu      sync.Mutex
	size    int
	order   *list.List // front is most recently used; values are *cacheEntry
	entries map[string]*list.Element

	hits   int
	misses int
}

type cacheEntry struct {
	key string
	doc Doc
}

// NewCache returns a cache holding at most size docs.
func NewCache(size int) *Cache {
	if size < 0 {
		size = 0
	}
	return &Cache{
		size:    size,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Get returns the doc for key and marks it most recently used.
func (c *Cache) Get(key string) (Doc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return Doc{}, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).doc.clone(), true
}

// Put stores doc under key, evicting the least recently used entry if the cache is full.
func (c *Cache) Put(key string, doc Doc) {
	if c.size == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).doc = doc.clone()
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, doc: doc.clone()})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached docs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counts since creation or the last Purge.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.entries)
	c.hits, c.misses = 0, 0
}
