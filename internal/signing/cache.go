package signing

import (
	"sync"
	"time"

	"tld/internal/clock"
)

// Entry is a signed URL and the time its signature expires.
type Entry struct {
	URL       string
	SignedURL string
	Expiry    time.Time
}

// Cache maps raw URLs to previously signed ones. Stale entries are ignored
// on lookup and overwritten by the next signing; nothing is evicted.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	margin  time.Duration
	clock   clock.Clock
}

// NewCache creates a cache serving entries with more than margin left.
func NewCache(margin time.Duration, c clock.Clock) *Cache {
	if c == nil {
		c = clock.Real{}
	}
	return &Cache{
		entries: make(map[string]Entry),
		margin:  margin,
		clock:   c,
	}
}

// Get returns the entry stored for url, valid or not.
func (c *Cache) Get(url string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[url]
	return e, ok
}

// Put stores e, replacing any previous entry for the same URL.
func (c *Cache) Put(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.URL] = e
}

// IsValid reports whether e has strictly more than the margin left.
func (c *Cache) IsValid(e Entry) bool {
	return e.Expiry.Sub(c.clock.Now()) > c.margin
}

// Lookup returns the signed URL for url when a valid entry exists.
func (c *Cache) Lookup(url string) (string, bool) {
	e, ok := c.Get(url)
	if !ok || !c.IsValid(e) {
		return "", false
	}
	return e.SignedURL, true
}

// Len returns the number of stored entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
