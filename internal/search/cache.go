package search

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"

	"github.com/hyperjump/miwake/internal/models"
)

// resultCache is an LRU of identify results keyed by query bytes and
// catalog size. The catalog only grows, so a size change retires old keys.
type resultCache struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value models.IdentifyResult
}

// newResultCache returns nil when capacity is not positive; a nil cache
// misses on every get and ignores set.
func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		return nil
	}
	return &resultCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func cacheKey(data []byte, catalogSize int) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + ":" + strconv.Itoa(catalogSize)
}

// get returns a copy of the cached result for key.
func (c *resultCache) get(key string) (*models.IdentifyResult, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		res := elem.Value.(*cacheEntry).value
		return &res, true
	}
	return nil, false
}

// set stores a copy of res, evicting the least recently used entry if at capacity.
func (c *resultCache) set(key string, res *models.IdentifyResult) {
	if c == nil || res == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = *res
		return
	}
	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, value: *res})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *resultCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
