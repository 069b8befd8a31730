package blobstore

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/topkapi/resource"
)

// BlockKey identifies one block of a named blob.
type BlockKey struct {
	Name  string
	Block int64
}

// BlockCache is a cache for immutable blob blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	Get(key BlockKey) ([]byte, bool)
	Set(key BlockKey, b []byte)
	// Invalidate drops every block of name.
	Invalidate(name string)
	Stats() (hits, misses int64)
}

// LRUBlockCache keeps at most a fixed number of blocks. Bytes held by cached
// blocks are charged to the optional resource controller; a block that does
// not fit the memory budget is simply not cached.
type LRUBlockCache struct {
	mu  sync.Mutex
	lru *lru.Cache[BlockKey, []byte]
	rc  *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLRUBlockCache creates a cache holding up to blocks entries.
func NewLRUBlockCache(blocks int, rc *resource.Controller) (*LRUBlockCache, error) {
	l, err := lru.NewWithEvict(blocks, func(_ BlockKey, b []byte) {
		if rc != nil {
			rc.ReleaseMemory(int64(len(b)))
		}
	})
	if err != nil {
		return nil, err
	}
	return &LRUBlockCache{lru: l, rc: rc}, nil
}

// Get returns a cached block.
func (c *LRUBlockCache) Get(key BlockKey) ([]byte, bool) {
	b, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return b, ok
}

// Set caches b under key, replacing any previous block.
func (c *LRUBlockCache) Set(key BlockKey, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Replacement does not fire the eviction callback.
	c.lru.Remove(key)

	if c.rc != nil && !c.rc.TryAcquireMemory(int64(len(b))) {
		return
	}
	c.lru.Add(key, b)
}

// Invalidate drops every block of name.
func (c *LRUBlockCache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range c.lru.Keys() {
		if k.Name == name {
			c.lru.Remove(k)
		}
	}
}

// Len returns the number of cached blocks.
func (c *LRUBlockCache) Len() int {
	return c.lru.Len()
}

// Stats returns hit and miss counts.
func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
