package credentials

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGSS struct {
	ready, failed bool
	realm, user   string
}

func (f *fakeGSS) IsReady() bool    { return f.ready }
func (f *fakeGSS) IsFailed() bool   { return f.failed }
func (f *fakeGSS) Realm() string    { return f.realm }
func (f *fakeGSS) UserName() string { return f.user }

func TestBasic_Readiness(t *testing.T) {
	var c Basic
	assert.False(t, c.IsReady())

	_, err := c.UserName()
	assert.True(t, errors.Is(err, autherr.ErrNotReady))

	c.SetUserName("alice")
	assert.False(t, c.IsReady())
	_, err = c.Password()
	assert.ErrorIs(t, err, autherr.ErrNotReady)

	c.SetPassword("secret")
	require.True(t, c.IsReady())

	user, err := c.UserName()
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	pw, err := c.Password()
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)
}

func TestAlwaysAllowAndCertificate(t *testing.T) {
	aa := NewAlwaysAllow("root")
	assert.True(t, aa.IsReady())
	u, err := aa.UserName()
	require.NoError(t, err)
	assert.Equal(t, "root", u)

	cert := NewSSLCertificate("bob", "bob.example.com")
	assert.True(t, cert.IsReady())
	assert.Equal(t, "bob.example.com", cert.CommonName())
}

func TestToken_NotReadyUntilPopulated(t *testing.T) {
	tok := NewToken("raw")
	assert.Equal(t, "raw", tok.Token())
	assert.False(t, tok.IsReady())

	_, err := tok.UserName()
	assert.ErrorIs(t, err, autherr.ErrNotReady)
	_, err = tok.Groups()
	assert.ErrorIs(t, err, autherr.ErrNotReady)
	_, _, err = tok.Expiry()
	assert.ErrorIs(t, err, autherr.ErrNotReady)

	// Groups alone do not make the token ready.
	tok.SetGroups([]string{"a"})
	assert.False(t, tok.IsReady())
}

func TestToken_Populate(t *testing.T) {
	tok := NewToken("raw")
	exp := time.Unix(1700000000, 0)
	tok.Populate(Identity{UserName: "alice", Groups: []string{"b", "a", "b"}, Expiry: exp})

	require.True(t, tok.IsReady())
	id, err := tok.Identity()
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserName)
	assert.Equal(t, []string{"a", "b"}, id.Groups)

	got, ok, err := tok.Expiry()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(exp))

	// Returned groups are a copy.
	groups, _ := tok.Groups()
	groups[0] = "zzz"
	again, _ := tok.Groups()
	assert.Equal(t, "a", again[0])
}

func TestToken_SettersAndReset(t *testing.T) {
	tok := NewToken("raw")
	tok.SetUserName("alice")
	groups, err := tok.Groups()
	require.NoError(t, err)
	assert.Empty(t, groups)

	_, ok, err := tok.Expiry()
	require.NoError(t, err)
	assert.False(t, ok)

	tok.SetUserName("bob")
	u, _ := tok.UserName()
	assert.Equal(t, "bob", u)

	tok.Reset()
	assert.False(t, tok.IsReady())
}

func TestToken_ConcurrentPopulate(t *testing.T) {
	tok := NewToken("raw")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tok.Populate(Identity{UserName: "alice", Groups: []string{"g1", "g2"}})
		}()
		go func() {
			defer wg.Done()
			if id, err := tok.Identity(); err == nil {
				// Never a torn identity: user and groups arrive together.
				assert.Equal(t, "alice", id.UserName)
				assert.Len(t, id.Groups, 2)
			}
		}()
	}
	wg.Wait()
}

func TestKerberos_DelegatesReadiness(t *testing.T) {
	gss := &fakeGSS{realm: "EXAMPLE.COM", user: "alice"}
	c := NewKerberos(gss)
	assert.False(t, c.IsReady())
	_, err := c.Realm()
	assert.ErrorIs(t, err, autherr.ErrNotReady)

	gss.ready = true
	realm, err := c.Realm()
	require.NoError(t, err)
	assert.Equal(t, "EXAMPLE.COM", realm)
	u, err := c.UserName()
	require.NoError(t, err)
	assert.Equal(t, "alice", u)

	assert.False(t, NewKerberos(nil).IsReady())
}
