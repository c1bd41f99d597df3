package mocknet

import (
	"container/list"
	"sync"

	"github.com/Fraser999/safe-core/native"
)

// DefaultCacheSize is the number of immutable chunks kept in memory.
const DefaultCacheSize = 300

type cacheEntry struct {
	content []byte
	name    native.XorName
}

// lru caches immutable chunk content by name. Immutable data never changes
// under its name, so entries are never invalidated, only evicted.
type lru struct {
	items map[native.XorName]*list.Element
	order *list.List
	size  int
	mu    sync.Mutex
}

func newLRU(size int) *lru {
	return &lru{
		items: make(map[native.XorName]*list.Element),
		order: list.New(),
		size:  size,
	}
}

func (c *lru) get(name native.XorName) ([]byte, bool) {
	if c.size <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[name]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).content, true
}

func (c *lru) put(name native.XorName, content []byte) {
	if c.size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[name]; ok {
		c.order.MoveToFront(el)
		return
	}
	c.items[name] = c.order.PushFront(&cacheEntry{name: name, content: content})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).name)
	}
}

func (c *lru) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
