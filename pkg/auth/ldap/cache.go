package ldap

import "time"

// CacheEntry records the last successful verification of one user against
// one server.
type CacheEntry struct {
	Hash        Hash
	Timestamp   time.Time
	RoleResults SearchResultsList
}

// Cache holds successful verifications per server and user.
//
// Cache does no locking of its own: the authenticator serializes every call
// under its coordinator lock together with the configuration it validates
// against.
type Cache struct {
	servers map[string]map[string]*CacheEntry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{servers: make(map[string]map[string]*CacheEntry)}
}

// shapeMatches reports whether cached results fit the requested searches:
// one result set per search, and none when no search is requested.
func shapeMatches(results SearchResultsList, roleSearch []RoleSearchParams) bool {
	return len(results) == len(roleSearch)
}

// Lookup returns the cached role search results when a previous success can
// be reused: same hash, within cooldown, same result shape. An entry past
// its cooldown is removed, and so is a server map left empty.
func (c *Cache) Lookup(server, user string, hash Hash, cooldown time.Duration, roleSearch []RoleSearchParams, now time.Time) (SearchResultsList, bool) {
	users, ok := c.servers[server]
	if !ok {
		return nil, false
	}
	defer func() {
		if len(users) == 0 {
			delete(c.servers, server)
		}
	}()

	entry, ok := users[user]
	if !ok {
		return nil, false
	}

	elapsed := now.Sub(entry.Timestamp)
	if !entry.Hash.IsZero() &&
		!entry.Timestamp.IsZero() &&
		entry.Hash == hash &&
		elapsed >= 0 &&
		elapsed <= cooldown &&
		shapeMatches(entry.RoleResults, roleSearch) {
		return entry.RoleResults.Clone(), true
	}

	if elapsed > cooldown {
		delete(users, user)
	}
	return nil, false
}

// Commit records a successful verification that completed at ts. It
// returns false when a newer success for the same user, made with a
// different hash or result shape, is already recorded; the caller must then
// treat its own result as obsolete.
func (c *Cache) Commit(server, user string, hash Hash, roleSearch []RoleSearchParams, results SearchResultsList, ts time.Time) bool {
	users, ok := c.servers[server]
	if !ok {
		users = make(map[string]*CacheEntry)
		c.servers[server] = users
	}

	entry, ok := users[user]
	if !ok {
		entry = &CacheEntry{}
		users[user] = entry
	}

	if entry.Timestamp.Before(ts) {
		entry.Hash = hash
		entry.Timestamp = ts
		if len(roleSearch) > 0 {
			entry.RoleResults = results.Clone()
		} else {
			entry.RoleResults = nil
		}
		return true
	}

	if entry.Hash != hash || !shapeMatches(entry.RoleResults, roleSearch) {
		return false
	}
	return true
}

// Entry returns a copy of the entry for server and user, if any.
func (c *Cache) Entry(server, user string) (CacheEntry, bool) {
	e, ok := c.servers[server][user]
	if !ok {
		return CacheEntry{}, false
	}
	return CacheEntry{Hash: e.Hash, Timestamp: e.Timestamp, RoleResults: e.RoleResults.Clone()}, true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	n := 0
	for _, users := range c.servers {
		n += len(users)
	}
	return n
}

// Reset drops every entry.
func (c *Cache) Reset() {
	clear(c.servers)
}
