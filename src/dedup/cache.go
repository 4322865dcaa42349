// Package dedup implements the set of message ids a context has already
// applied or forwarded.
package dedup

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultTTL is how long an id is remembered. It must comfortably exceed
	// the time an envelope can spend bouncing around a frame topology.
	DefaultTTL = 10 * time.Minute

	// DefaultCapacity bounds the number of ids remembered at once. When full,
	// the least recently used entry is evicted first.
	DefaultCapacity = 10000
)

// Cache is a bounded set of message ids. Entries expire after a TTL and the
// least recently used entries are evicted when the capacity is reached.
// It is safe for concurrent use.
type Cache struct {
	items *ttlcache.Cache[string, struct{}]
}

// NewCache creates a Cache. Non-positive arguments select the defaults.
func NewCache(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	items := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithCapacity[string, struct{}](uint64(capacity)),
	)

	return &Cache{items: items}
}

// Start runs the expiration janitor. It blocks until Stop is called, so it is
// usually started in its own goroutine.
func (c *Cache) Start() {
	c.items.Start()
}

// Stop terminates the janitor started by Start.
func (c *Cache) Stop() {
	c.items.Stop()
}

// Seen reports whether id was already processed and has not expired yet. It
// never inserts id nor extends its lifetime.
func (c *Cache) Seen(id string) bool {
	return c.items.Get(id, ttlcache.WithDisableTouchOnHit[string, struct{}]()) != nil
}

// Add records id as processed.
func (c *Cache) Add(id string) {
	c.items.Set(id, struct{}{}, ttlcache.DefaultTTL)
}

// Len returns the number of ids currently remembered.
func (c *Cache) Len() int {
	return c.items.Len()
}
