package accesstoken

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/credentials"
)

type fakeGoogle struct {
	server    *httptest.Server
	tokenHits atomic.Int32
	userHits  atomic.Int32

	tokenInfo map[string]any
	userInfo  map[string]any
	status    int
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	f := &fakeGoogle{
		tokenInfo: map[string]any{"sub": "1234567890", "exp": "4102444800"},
		userInfo:  map[string]any{"sub": "1234567890", "email": "alice@example.com"},
		status:    http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/tokeninfo", func(w http.ResponseWriter, r *http.Request) {
		f.tokenHits.Add(1)
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(f.tokenInfo)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.userHits.Add(1)
		_ = json.NewEncoder(w).Encode(f.userInfo)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGoogle) entry(extra map[string]any) map[string]any {
	e := map[string]any{
		"provider":       "Google",
		"token_info_uri": f.server.URL + "/tokeninfo",
		"user_info_uri":  f.server.URL + "/userinfo",
		"max_tries":      1,
	}
	for k, v := range extra {
		e[k] = v
	}
	return e
}

func TestParseProcessor(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantErr bool
		check   func(t *testing.T, p Processor)
	}{
		{
			name: "defaults",
			raw:  map[string]any{"provider": "google"},
			check: func(t *testing.T, p Processor) {
				assert.Equal(t, "gp", p.Name())
				assert.Equal(t, ProviderGoogle, p.Provider())
				assert.Equal(t, DefaultCacheInvalidationInterval, p.CacheInvalidationInterval())
			},
		},
		{
			name: "interval in minutes",
			raw:  map[string]any{"provider": "GOOGLE", "cache_invalidation_interval": 5},
			check: func(t *testing.T, p Processor) {
				assert.Equal(t, 5*time.Minute, p.CacheInvalidationInterval())
			},
		},
		{name: "missing provider", raw: map[string]any{}, wantErr: true},
		{name: "unknown provider", raw: map[string]any{"provider": "azure"}, wantErr: true},
		{name: "bad regex", raw: map[string]any{"provider": "google", "email_filter": "("}, wantErr: true},
		{name: "negative interval", raw: map[string]any{"provider": "google", "cache_invalidation_interval": -1}, wantErr: true},
		{name: "bad endpoint", raw: map[string]any{"provider": "google", "token_info_uri": "ftp://x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProcessor("gp", tt.raw, Options{})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, autherr.ErrConfig)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestGoogleProcessor_Resolve(t *testing.T) {
	f := newFakeGoogle(t)
	p, err := ParseProcessor("gp", f.entry(nil), Options{})
	require.NoError(t, err)

	tok := credentials.NewToken("good-token")
	ok, err := p.ResolveAndValidate(context.Background(), tok)
	require.NoError(t, err)
	require.True(t, ok)

	id, err := tok.Identity()
	require.NoError(t, err)
	assert.Equal(t, "1234567890", id.UserName)
	assert.Empty(t, id.Groups)
	assert.Equal(t, time.Unix(4102444800, 0), id.Expiry)
}

func TestGoogleProcessor_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		filter string
		mutate func(f *fakeGoogle)
	}{
		{name: "tokeninfo rejects", token: "bad-token"},
		{name: "no subject", token: "good-token", mutate: func(f *fakeGoogle) { f.tokenInfo = map[string]any{"aud": "x"} }},
		{name: "empty subject", token: "good-token", mutate: func(f *fakeGoogle) { f.tokenInfo = map[string]any{"sub": ""} }},
		{name: "no email", token: "good-token", mutate: func(f *fakeGoogle) { f.userInfo = map[string]any{"sub": "1"} }},
		{name: "email filtered", token: "good-token", filter: `.*@corp\.example\.com`},
		{name: "partial match is not enough", token: "good-token", filter: `alice`},
		{name: "upstream error status", token: "good-token", mutate: func(f *fakeGoogle) { f.status = http.StatusForbidden }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeGoogle(t)
			if tt.mutate != nil {
				tt.mutate(f)
			}
			extra := map[string]any{}
			if tt.filter != "" {
				extra["email_filter"] = tt.filter
			}
			p, err := ParseProcessor("gp", f.entry(extra), Options{})
			require.NoError(t, err)

			tok := credentials.NewToken(tt.token)
			ok, err := p.ResolveAndValidate(context.Background(), tok)
			assert.False(t, ok)
			assert.ErrorIs(t, err, autherr.ErrAuthenticationFailed)
			assert.False(t, tok.IsReady())
		})
	}
}

func TestGoogleProcessor_EmailFilterFullMatch(t *testing.T) {
	f := newFakeGoogle(t)
	p, err := ParseProcessor("gp", f.entry(map[string]any{"email_filter": `[a-z]+@example\.com`}), Options{})
	require.NoError(t, err)

	ok, err := p.ResolveAndValidate(context.Background(), credentials.NewToken("good-token"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGoogleProcessor_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := ParseProcessor("gp", map[string]any{
		"provider":       "google",
		"token_info_uri": url + "/tokeninfo",
		"max_tries":      1,
	}, Options{})
	require.NoError(t, err)

	ok, err := p.ResolveAndValidate(context.Background(), credentials.NewToken("t"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, autherr.ErrTransientIO)
}

func TestTokenExpiry(t *testing.T) {
	assert.Equal(t, time.Unix(100, 0), tokenExpiry(map[string]any{"exp": "100"}))
	assert.Equal(t, time.Unix(100, 0), tokenExpiry(map[string]any{"exp": int64(100)}))
	assert.True(t, tokenExpiry(map[string]any{"exp": "soon"}).IsZero())
	assert.True(t, tokenExpiry(map[string]any{}).IsZero())
}

func TestCache(t *testing.T) {
	c := NewCache(0)
	now := time.Unix(1_700_000_000, 0)

	c.Store("tok", Entry{UserName: "alice", Groups: []string{"g"}, ExpiresAt: now.Add(time.Minute)})

	e, ok, expired := c.Lookup("tok", now)
	require.True(t, ok)
	assert.False(t, expired)
	assert.Equal(t, "alice", e.UserName)

	e.Groups[0] = "mutated"
	e, _, _ = c.Lookup("tok", now)
	assert.Equal(t, []string{"g"}, e.Groups)

	_, ok, expired = c.Lookup("tok", now.Add(time.Minute))
	assert.False(t, ok)
	assert.True(t, expired)
	assert.Zero(t, c.Len())

	_, ok, expired = c.Lookup("tok", now)
	assert.False(t, ok)
	assert.False(t, expired)
}

func TestCache_Bounded(t *testing.T) {
	c := NewCache(2)
	exp := time.Now().Add(time.Hour)
	for _, tok := range []string{"a", "b", "c"} {
		c.Store(tok, Entry{UserName: strings.ToUpper(tok), ExpiresAt: exp})
	}
	assert.Equal(t, 2, c.Len())

	_, ok, _ := c.Lookup("a", time.Now())
	assert.False(t, ok, "least recently used entry is dropped")
}

func TestEffectiveExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	interval := time.Hour

	assert.Equal(t, now.Add(interval), EffectiveExpiry(time.Time{}, now, interval))
	assert.Equal(t, now.Add(time.Minute), EffectiveExpiry(now.Add(time.Minute), now, interval))
	assert.Equal(t, now.Add(interval), EffectiveExpiry(now.Add(2*time.Hour), now, interval))
}
