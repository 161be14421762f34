package ldap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_LookupWithinCooldown(t *testing.T) {
	c := NewCache()
	now := time.Unix(1_700_000_000, 0)
	h := Hash{1}

	require.True(t, c.Commit("ldap1", "alice", h, nil, nil, now))

	_, ok := c.Lookup("ldap1", "alice", h, 5*time.Second, nil, now.Add(3*time.Second))
	assert.True(t, ok)

	_, ok = c.Lookup("ldap1", "alice", Hash{2}, 5*time.Second, nil, now.Add(3*time.Second))
	assert.False(t, ok, "different hash must miss")
	assert.Equal(t, 1, c.Len(), "a hash miss inside the cooldown keeps the entry")

	_, ok = c.Lookup("ldap1", "alice", h, 5*time.Second, nil, now.Add(6*time.Second))
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry and empty server map are dropped")
}

func TestCache_ZeroCooldownNeverHitsLater(t *testing.T) {
	c := NewCache()
	now := time.Unix(1_700_000_000, 0)
	require.True(t, c.Commit("s", "u", Hash{1}, nil, nil, now))

	_, ok := c.Lookup("s", "u", Hash{1}, 0, nil, now.Add(time.Millisecond))
	assert.False(t, ok)
}

func TestCache_ShapeMismatch(t *testing.T) {
	c := NewCache()
	now := time.Unix(1_700_000_000, 0)
	h := Hash{7}
	one := []RoleSearchParams{NewRoleSearchParams("ou=g", "", "")}
	two := append(one, NewRoleSearchParams("ou=h", "", ""))

	require.True(t, c.Commit("s", "u", h, one, SearchResultsList{{"admin"}}, now))

	res, ok := c.Lookup("s", "u", h, time.Minute, one, now.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, SearchResultsList{{"admin"}}, res)

	_, ok = c.Lookup("s", "u", h, time.Minute, two, now.Add(time.Second))
	assert.False(t, ok)

	_, ok = c.Lookup("s", "u", h, time.Minute, nil, now.Add(time.Second))
	assert.False(t, ok)
}

func TestCache_LookupReturnsCopy(t *testing.T) {
	c := NewCache()
	now := time.Unix(1_700_000_000, 0)
	rs := []RoleSearchParams{NewRoleSearchParams("ou=g", "", "")}
	require.True(t, c.Commit("s", "u", Hash{1}, rs, SearchResultsList{{"a"}}, now))

	res, ok := c.Lookup("s", "u", Hash{1}, time.Minute, rs, now)
	require.True(t, ok)
	res[0][0] = "mutated"

	entry, ok := c.Entry("s", "u")
	require.True(t, ok)
	assert.Equal(t, SearchResultsList{{"a"}}, entry.RoleResults)
}

func TestCache_CommitObsolete(t *testing.T) {
	c := NewCache()
	t0 := time.Unix(1_700_000_000, 0)

	// A newer success with a different hash is already recorded.
	require.True(t, c.Commit("s", "u", Hash{2}, nil, nil, t0.Add(time.Second)))
	assert.False(t, c.Commit("s", "u", Hash{1}, nil, nil, t0))

	// Same hash and shape: the older result agrees with the newer one.
	assert.True(t, c.Commit("s", "u", Hash{2}, nil, nil, t0))

	entry, ok := c.Entry("s", "u")
	require.True(t, ok)
	assert.Equal(t, Hash{2}, entry.Hash)
	assert.Equal(t, t0.Add(time.Second), entry.Timestamp)
}

func TestCache_Reset(t *testing.T) {
	c := NewCache()
	now := time.Now()
	c.Commit("a", "u1", Hash{1}, nil, nil, now)
	c.Commit("b", "u2", Hash{1}, nil, nil, now)
	assert.Equal(t, 2, c.Len())

	c.Reset()
	assert.Zero(t, c.Len())
	_, ok := c.Entry("a", "u1")
	assert.False(t, ok)
}
