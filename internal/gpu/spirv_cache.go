//go:build !nogpu

package gpu

import (
	"sync"

	"github.com/gogpu/radixsort/kernel"
)

// spirvCacheLimit bounds the number of compiled configurations kept.
const spirvCacheLimit = 16

// spirvCache keeps SPIR-V modules by launch configuration. When it grows
// past its limit, the least recently used module is dropped.
//
// spirvCache is safe for concurrent use.
type spirvCache struct {
	mu      sync.Mutex
	limit   int
	tick    int64
	entries map[kernel.Config]*spirvEntry
}

type spirvEntry struct {
	words []uint32
	atime int64
}

func newSPIRVCache(limit int) *spirvCache {
	return &spirvCache{limit: limit, entries: make(map[kernel.Config]*spirvEntry)}
}

var compiledShaders = newSPIRVCache(spirvCacheLimit)

// get returns the module compiled for cfg, compiling it on a miss. Failed
// compilations are not cached.
func (c *spirvCache) get(cfg kernel.Config, compile func() ([]uint32, error)) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if e, ok := c.entries[cfg]; ok {
		e.atime = c.tick
		return e.words, nil
	}
	words, err := compile()
	if err != nil {
		return nil, err
	}
	c.entries[cfg] = &spirvEntry{words: words, atime: c.tick}
	if c.limit > 0 && len(c.entries) > c.limit {
		c.evictOldest()
	}
	return words, nil
}

func (c *spirvCache) evictOldest() {
	var oldest kernel.Config
	oldestTime := int64(-1)
	for cfg, e := range c.entries {
		if oldestTime < 0 || e.atime < oldestTime {
			oldest, oldestTime = cfg, e.atime
		}
	}
	delete(c.entries, oldest)
}

func (c *spirvCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
