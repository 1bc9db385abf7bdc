package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/vectier/internal/resource"
)

// LRU implements BlockCache with least-recently-used eviction bounded by
// total block bytes.
type LRU struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[Key]*list.Element
	order    *list.List
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   Key
	value []byte
}

var _ BlockCache = (*LRU)(nil)

// NewLRU creates a cache holding at most capacity bytes. rc may be nil.
func NewLRU(capacity int64, rc *resource.Controller) *LRU {
	return &LRU{
		capacity: capacity,
		items:    make(map[Key]*list.Element),
		order:    list.New(),
		rc:       rc,
	}
}

// Get returns the cached block for key.
func (c *LRU) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(el)
		return el.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches b under key. Blocks larger than the capacity are not cached.
func (c *LRU) Set(_ context.Context, key Key, b []byte) {
	size := int64(len(b))
	if size > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}

	for c.size+size > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}

	if !c.rc.TryAcquireMemory(size) {
		return
	}

	c.items[key] = c.order.PushFront(&entry{key: key, value: b})
	c.size += size
}

// Invalidate removes every entry whose key matches pred.
func (c *LRU) Invalidate(pred func(Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var victims []*list.Element
	for key, el := range c.items {
		if pred(key) {
			victims = append(victims, el)
		}
	}
	for _, el := range victims {
		c.removeElement(el)
	}
}

// Stats returns hit and miss counters and the current footprint.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Entries:   len(c.items),
		SizeBytes: c.size,
	}
}

func (c *LRU) removeElement(el *list.Element) {
	c.order.Remove(el)
	e := el.Value.(*entry)
	delete(c.items, e.key)
	size := int64(len(e.value))
	c.size -= size
	c.rc.ReleaseMemory(size)
}
