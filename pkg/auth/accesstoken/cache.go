package accesstoken

import (
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of resolved tokens kept in memory.
const DefaultCacheSize = 10000

// Entry is a resolved token.
type Entry struct {
	UserName  string
	Groups    []string
	ExpiresAt time.Time
}

// Cache maps raw tokens to resolved identities. The least recently used
// entry is dropped when the cache is full; entries past ExpiresAt are never
// returned.
type Cache struct {
	entries *lru.Cache[string, Entry]
}

// NewCache creates a cache holding at most size tokens. A size below 1
// selects DefaultCacheSize.
func NewCache(size int) *Cache {
	if size < 1 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Cache{entries: entries}
}

// Lookup returns the live entry for token. An expired entry is removed and
// reported through expired.
func (c *Cache) Lookup(token string, now time.Time) (entry Entry, ok, expired bool) {
	e, found := c.entries.Get(token)
	if !found {
		return Entry{}, false, false
	}
	if !now.Before(e.ExpiresAt) {
		c.entries.Remove(token)
		return Entry{}, false, true
	}
	e.Groups = slices.Clone(e.Groups)
	return e, true, false
}

// Store records a resolved token.
func (c *Cache) Store(token string, e Entry) {
	e.Groups = slices.Clone(e.Groups)
	c.entries.Add(token, e)
}

// EffectiveExpiry is the earlier of the upstream expiry and now+interval.
// A zero upstream means none was declared.
func EffectiveExpiry(upstream, now time.Time, interval time.Duration) time.Time {
	def := now.Add(interval)
	if !upstream.IsZero() && upstream.Before(def) {
		return upstream
	}
	return def
}

// Len returns the number of cached tokens, expired ones included.
func (c *Cache) Len() int { return c.entries.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.entries.Purge() }
