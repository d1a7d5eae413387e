package overpass

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/NERVsystems/overpass/pkg/monitoring"
)

const (
	// DefaultCacheTTL is how long a cached response stays valid.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheSize bounds the number of cached responses.
	DefaultCacheSize = 50

	// cacheType labels response cache metrics.
	cacheType = "response"
)

// ResponseCache maps formatted query text to parsed responses with TTL
// expiry and LRU eviction at the size bound. Because the key is the fully
// formatted query text, including format and timeout directives, two
// logically different queries never collide. Safe for concurrent use.
type ResponseCache struct {
	lru *expirable.LRU[string, *Response]
}

// NewResponseCache creates a cache holding at most size responses, each
// valid for ttl. Non-positive arguments fall back to the defaults.
func NewResponseCache(size int, ttl time.Duration) *ResponseCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResponseCache{
		lru: expirable.NewLRU[string, *Response](size, nil, ttl),
	}
}

// Get returns the cached response for the query text if present and not
// expired. Stale entries are treated as absent.
func (c *ResponseCache) Get(queryText string) (*Response, bool) {
	resp, ok := c.lru.Get(queryText)
	if ok {
		monitoring.RecordCacheHit(cacheType)
	} else {
		monitoring.RecordCacheMiss(cacheType)
	}
	return resp, ok
}

// Put stores or overwrites the response for the query text. When the
// cache is full the least recently used entry is evicted.
func (c *ResponseCache) Put(queryText string, resp *Response) {
	c.lru.Add(queryText, resp)
	monitoring.UpdateCacheSize(cacheType, c.lru.Len())
}

// Clear removes all cached responses.
func (c *ResponseCache) Clear() {
	c.lru.Purge()
	monitoring.UpdateCacheSize(cacheType, 0)
}

// Len returns the number of entries currently cached, including entries
// that have expired but not yet been evicted.
func (c *ResponseCache) Len() int {
	return c.lru.Len()
}
