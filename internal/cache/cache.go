// Package cache implements the in-memory LRU engine: a fixed-bucket
// chained hash table whose entries are simultaneously linked into a
// doubly-linked recency list, with eviction from the recency tail once
// the entry count exceeds capacity.
//
// Entries live in an index-addressed arena rather than behind raw
// pointers. Bucket chains and the recency list are both index-linked
// over the same arena, which keeps detach/reinsert O(1) and rules out
// dangling references. Because an insert adds exactly one entry and
// eviction runs immediately after, the arena never needs more than
// capacity+1 slots.
package cache

import (
	"errors"
	"hash/fnv"
	"sync"
)

// none marks an empty chain head, list end, or unlinked entry.
const none = int32(-1)

var (
	// ErrInvalidCapacity is returned when the requested capacity is not positive.
	ErrInvalidCapacity = errors.New("cache capacity must be at least 1")
)

// Stats is a snapshot of the cumulative hit/miss counters and the
// current entry count.
type Stats struct {
	Hits   uint64
	Misses uint64
	Items  uint64
}

type entry struct {
	key   string
	value []byte
	hnext int32 // next in bucket chain
	prev  int32 // recency list, toward most recently used
	next  int32 // recency list, toward least recently used
}

// Cache is a fixed-capacity LRU cache. One exclusive lock covers the
// bucket array, the recency list, and the counters, so every operation
// is serialized with respect to every other and no caller can observe
// a partially-updated structure.
type Cache struct {
	mu sync.Mutex

	buckets []int32
	slots   []entry
	free    []int32

	head, tail int32 // recency list: head = most recently used

	capacity int
	size     int

	hits   uint64
	misses uint64
}

// New creates a cache holding at most capacity entries. The bucket
// count is sized at 2*capacity+3 so that full occupancy keeps average
// chain length around one half.
func New(capacity int) (*Cache, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}

	nbuckets := 2*capacity + 3
	c := &Cache{
		buckets:  make([]int32, nbuckets),
		slots:    make([]entry, capacity+1),
		free:     make([]int32, 0, capacity+1),
		head:     none,
		tail:     none,
		capacity: capacity,
	}
	for i := range c.buckets {
		c.buckets[i] = none
	}
	for i := len(c.slots) - 1; i >= 0; i-- {
		c.slots[i] = entry{hnext: none, prev: none, next: none}
		c.free = append(c.free, int32(i))
	}
	return c, nil
}

// Get looks up key and, on a hit, promotes the entry to the recency
// head and returns a copy of its value. A miss creates nothing.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := c.buckets[c.bucketFor(key)]; i != none; i = c.slots[i].hnext {
		if c.slots[i].key == key {
			c.detachRecency(i)
			c.pushRecencyHead(i)
			c.hits++
			return cloneBytes(c.slots[i].value), true
		}
	}
	c.misses++
	return nil, false
}

// Put inserts key or replaces its value in place. Either way the entry
// ends up at the recency head. An insert that pushes the cache over
// capacity evicts from the recency tail before returning.
func (c *Cache) Put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketFor(key)
	for i := c.buckets[b]; i != none; i = c.slots[i].hnext {
		if c.slots[i].key == key {
			c.slots[i].value = cloneBytes(value)
			c.detachRecency(i)
			c.pushRecencyHead(i)
			return
		}
	}

	i := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	c.slots[i] = entry{
		key:   key,
		value: cloneBytes(value),
		hnext: c.buckets[b],
		prev:  none,
		next:  none,
	}
	c.buckets[b] = i
	c.pushRecencyHead(i)
	c.size++

	c.evict()
}

// Delete unlinks key from its bucket chain and the recency list.
// It reports whether the key was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketFor(key)
	prev := none
	for i := c.buckets[b]; i != none; prev, i = i, c.slots[i].hnext {
		if c.slots[i].key != key {
			continue
		}
		if prev == none {
			c.buckets[b] = c.slots[i].hnext
		} else {
			c.slots[prev].hnext = c.slots[i].hnext
		}
		c.detachRecency(i)
		c.release(i)
		c.size--
		return true
	}
	return false
}

// Stats returns the cumulative hit/miss counters and the current size.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Items: uint64(c.size)}
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Capacity returns the fixed capacity bound.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Purge drops every entry. Counters are cumulative and survive a purge.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.buckets {
		c.buckets[i] = none
	}
	c.free = c.free[:0]
	for i := len(c.slots) - 1; i >= 0; i-- {
		c.slots[i] = entry{hnext: none, prev: none, next: none}
		c.free = append(c.free, int32(i))
	}
	c.head, c.tail = none, none
	c.size = 0
}

// evict removes recency-tail entries until the cache is back at
// capacity. Finding the chain predecessor costs a bucket scan, which
// the bucket sizing keeps short.
func (c *Cache) evict() {
	for c.size > c.capacity && c.tail != none {
		i := c.tail
		c.unlinkChain(i)
		c.detachRecency(i)
		c.release(i)
		c.size--
	}
}

// unlinkChain removes slot i from its bucket chain.
func (c *Cache) unlinkChain(i int32) {
	b := c.bucketFor(c.slots[i].key)
	if c.buckets[b] == i {
		c.buckets[b] = c.slots[i].hnext
		return
	}
	for j := c.buckets[b]; j != none; j = c.slots[j].hnext {
		if c.slots[j].hnext == i {
			c.slots[j].hnext = c.slots[i].hnext
			return
		}
	}
}

// detachRecency removes slot i from the recency list.
func (c *Cache) detachRecency(i int32) {
	e := &c.slots[i]
	if e.prev != none {
		c.slots[e.prev].next = e.next
	} else if c.head == i {
		c.head = e.next
	}
	if e.next != none {
		c.slots[e.next].prev = e.prev
	} else if c.tail == i {
		c.tail = e.prev
	}
	e.prev, e.next = none, none
}

// pushRecencyHead makes slot i the most recently used entry.
func (c *Cache) pushRecencyHead(i int32) {
	e := &c.slots[i]
	e.prev = none
	e.next = c.head
	if c.head != none {
		c.slots[c.head].prev = i
	}
	c.head = i
	if c.tail == none {
		c.tail = i
	}
}

// release zeroes slot i and returns it to the free list.
func (c *Cache) release(i int32) {
	c.slots[i] = entry{hnext: none, prev: none, next: none}
	c.free = append(c.free, i)
}

func (c *Cache) bucketFor(key string) int32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int32(h.Sum64() % uint64(len(c.buckets)))
}

// cloneBytes copies b so callers can never alias cache-owned memory.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
