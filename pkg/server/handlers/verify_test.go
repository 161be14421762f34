package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/extauth/pkg/auth/kerberos"
	"github.com/marmos91/extauth/pkg/auth/ldap"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/credentials"
	"github.com/marmos91/extauth/pkg/settings"
)

// fakeVerifier accepts the password "secret" and the token "good".
type fakeVerifier struct {
	err error

	lastServer     string
	lastRoleSearch []ldap.RoleSearchParams
	lastClaims     string
	lastProcessor  string
	lastRealm      string
	lastKrbToken   []byte
}

func (f *fakeVerifier) CheckLDAPCredentials(_ context.Context, server string, basic *credentials.Basic, roleSearch []ldap.RoleSearchParams) (bool, ldap.SearchResultsList, error) {
	f.lastServer = server
	f.lastRoleSearch = roleSearch
	if f.err != nil {
		return false, nil, f.err
	}
	pw, _ := basic.Password()
	if pw != "secret" {
		return false, nil, nil
	}
	results := make(ldap.SearchResultsList, len(roleSearch))
	for i := range roleSearch {
		results[i] = ldap.SearchResults{fmt.Sprintf("role%d", i)}
	}
	return true, results, nil
}

func (f *fakeVerifier) CheckHTTPBasicCredentials(_ context.Context, server string, basic *credentials.Basic, changes *settings.Changes) (bool, error) {
	f.lastServer = server
	if f.err != nil {
		return false, f.err
	}
	pw, _ := basic.Password()
	if pw != "secret" {
		return false, nil
	}
	changes.Add("max_memory_usage", "1000")
	return true, nil
}

func (f *fakeVerifier) populate(tok *credentials.Token) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if tok.Token() != "good" {
		return false, nil
	}
	tok.Populate(credentials.Identity{
		UserName: "alice",
		Groups:   []string{"admins"},
		Expiry:   time.Unix(2000000000, 0),
	})
	return true, nil
}

func (f *fakeVerifier) ResolveJWTCredentials(_ context.Context, tok *credentials.Token, _ bool) (bool, error) {
	return f.populate(tok)
}

func (f *fakeVerifier) CheckJWTClaims(_ context.Context, claims string, tok *credentials.Token, changes *settings.Changes) (bool, error) {
	f.lastClaims = claims
	ok, err := f.populate(tok)
	if ok {
		changes.Add("profile", "web")
	}
	return ok, err
}

func (f *fakeVerifier) CheckAccessTokenCredentials(_ context.Context, tok *credentials.Token) (bool, error) {
	return f.populate(tok)
}

func (f *fakeVerifier) CheckAccessTokenCredentialsByExactProcessor(_ context.Context, tok *credentials.Token, name string) (bool, error) {
	f.lastProcessor = name
	return f.populate(tok)
}

func (f *fakeVerifier) AcceptKerberos(_ context.Context, realm string, token []byte) (*credentials.Kerberos, bool, error) {
	f.lastRealm = realm
	f.lastKrbToken = token
	if f.err != nil {
		return nil, false, f.err
	}
	if string(token) != "good" {
		return credentials.NewKerberos(kerberos.NewFailedContext("bad token")), false, nil
	}
	return credentials.NewKerberos(kerberos.NewEstablishedContext("alice", "EXAMPLE.COM")), true, nil
}

func newTestRouter(v Verifier) http.Handler {
	h := NewVerifyHandler(v)
	r := chi.NewRouter()
	r.Post("/verify/ldap/{server}", h.LDAP)
	r.Post("/verify/http/{server}", h.HTTPBasic)
	r.Post("/verify/jwt", h.JWT)
	r.Post("/verify/token", h.AccessToken)
	r.Post("/verify/kerberos", h.Kerberos)
	return r
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func postJSON(path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeVerify(t *testing.T, w *httptest.ResponseRecorder) VerifyResponse {
	t.Helper()
	var resp VerifyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) Problem {
	t.Helper()
	assert.Equal(t, ContentTypeProblemJSON, w.Header().Get("Content-Type"))
	var p Problem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	return p
}

func TestVerifyLDAP(t *testing.T) {
	v := &fakeVerifier{}
	router := newTestRouter(v)

	w := do(t, router, postJSON("/verify/ldap/corp", LDAPRequest{
		BasicRequest: BasicRequest{User: "alice", Password: "secret"},
		RoleSearch: []RoleSearchRequest{
			{BaseDN: "ou=groups,dc=example,dc=com", SearchFilter: "(member={user_dn})", Prefix: "ch_"},
			{BaseDN: "dc=example,dc=com", SearchFilter: "(uid={user_name})", Attribute: "memberOf", Scope: "one_level"},
		},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeVerify(t, w)
	assert.True(t, resp.Authenticated)
	assert.Equal(t, "alice", resp.User)
	assert.Equal(t, [][]string{{"role0"}, {"role1"}}, resp.Roles)
	assert.Equal(t, "corp", v.lastServer)
	require.Len(t, v.lastRoleSearch, 2)
	assert.Equal(t, "ch_", v.lastRoleSearch[0].Prefix)
	assert.Equal(t, "cn", v.lastRoleSearch[0].Attribute)
	assert.Equal(t, ldap.ScopeSubtree, v.lastRoleSearch[0].Scope)
	assert.Equal(t, "memberOf", v.lastRoleSearch[1].Attribute)
	assert.Equal(t, ldap.ScopeOneLevel, v.lastRoleSearch[1].Scope)
}

func TestVerifyLDAP_BadRequests(t *testing.T) {
	router := newTestRouter(&fakeVerifier{})

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"malformed body", httptest.NewRequest(http.MethodPost, "/verify/ldap/corp", strings.NewReader("{"))},
		{"missing user", postJSON("/verify/ldap/corp", LDAPRequest{BasicRequest: BasicRequest{Password: "x"}})},
		{"incomplete role search", postJSON("/verify/ldap/corp", LDAPRequest{
			BasicRequest: BasicRequest{User: "alice", Password: "secret"},
			RoleSearch:   []RoleSearchRequest{{BaseDN: "dc=example"}},
		})},
		{"unknown scope", postJSON("/verify/ldap/corp", LDAPRequest{
			BasicRequest: BasicRequest{User: "alice", Password: "secret"},
			RoleSearch:   []RoleSearchRequest{{BaseDN: "dc=example", SearchFilter: "(uid=x)", Scope: "everything"}},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestVerify_FailuresAreIndistinguishable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rejected", nil},
		{"not configured", fmt.Errorf("%w: ldap server %q", autherr.ErrNotConfigured, "corp")},
		{"unreachable", fmt.Errorf("%w: dial tcp: refused", autherr.ErrTransientIO)},
		{"misconfigured", autherr.NewConfigError("ldap_servers", "corp", "host", "missing")},
		{"incomplete credentials", fmt.Errorf("%w: no password", autherr.ErrNotReady)},
		{"other", autherr.ErrAuthenticationFailed},
	}

	var bodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeVerifier{err: tt.err})

			w := do(t, router, postJSON("/verify/ldap/corp", LDAPRequest{
				BasicRequest: BasicRequest{User: "alice", Password: "wrong"},
			}))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			bodies = append(bodies, w.Body.String())

			p := decodeProblem(t, w)
			assert.Equal(t, http.StatusUnauthorized, p.Status)
			assert.Equal(t, authenticationFailed, p.Detail)
		})
	}

	for _, body := range bodies[1:] {
		assert.Equal(t, bodies[0], body)
	}
}

func TestVerifyHTTPBasic(t *testing.T) {
	router := newTestRouter(&fakeVerifier{})

	w := do(t, router, postJSON("/verify/http/basic_server", BasicRequest{User: "bob", Password: "secret"}))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeVerify(t, w)
	assert.Equal(t, "bob", resp.User)
	assert.Equal(t, map[string]any{"max_memory_usage": "1000"}, resp.Settings)

	w = do(t, router, postJSON("/verify/http/basic_server", BasicRequest{User: "bob", Password: "nope"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyJWT(t *testing.T) {
	t.Run("bearer header without claims", func(t *testing.T) {
		router := newTestRouter(&fakeVerifier{})

		req := httptest.NewRequest(http.MethodPost, "/verify/jwt", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := do(t, router, req)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decodeVerify(t, w)
		assert.Equal(t, "alice", resp.User)
		require.NotNil(t, resp.ExpiresAt)
		assert.Equal(t, int64(2000000000), resp.ExpiresAt.Unix())
		assert.Empty(t, resp.Settings)
	})

	t.Run("body with claims", func(t *testing.T) {
		v := &fakeVerifier{}
		router := newTestRouter(v)

		w := do(t, router, postJSON("/verify/jwt", TokenRequest{Token: "good", Claims: `{"groups":"admins"}`}))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `{"groups":"admins"}`, v.lastClaims)
		assert.Equal(t, map[string]any{"profile": "web"}, decodeVerify(t, w).Settings)
	})

	t.Run("missing token", func(t *testing.T) {
		router := newTestRouter(&fakeVerifier{})

		w := do(t, router, httptest.NewRequest(http.MethodPost, "/verify/jwt", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		router := newTestRouter(&fakeVerifier{})

		w := do(t, router, postJSON("/verify/jwt", TokenRequest{Token: "forged"}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, authenticationFailed, decodeProblem(t, w).Detail)
	})
}

func TestVerifyAccessToken(t *testing.T) {
	v := &fakeVerifier{}
	router := newTestRouter(v)

	w := do(t, router, postJSON("/verify/token", TokenRequest{Token: "good"}))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeVerify(t, w)
	assert.Equal(t, "alice", resp.User)
	assert.Equal(t, []string{"admins"}, resp.Groups)
	assert.Empty(t, v.lastProcessor)

	w = do(t, router, postJSON("/verify/token", TokenRequest{Token: "good", Processor: "google"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "google", v.lastProcessor)
}

func TestVerifyKerberos(t *testing.T) {
	negotiate := func(token string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/verify/kerberos?realm=EXAMPLE.COM", nil)
		if token != "" {
			req.Header.Set("Authorization", "Negotiate "+token)
		}
		return req
	}

	t.Run("accepted", func(t *testing.T) {
		v := &fakeVerifier{}
		router := newTestRouter(v)

		w := do(t, router, negotiate(base64.StdEncoding.EncodeToString([]byte("good"))))
		require.Equal(t, http.StatusOK, w.Code)

		resp := decodeVerify(t, w)
		assert.Equal(t, "alice", resp.User)
		assert.Equal(t, "EXAMPLE.COM", resp.Realm)
		assert.Equal(t, "EXAMPLE.COM", v.lastRealm)
		assert.Equal(t, []byte("good"), v.lastKrbToken)
	})

	t.Run("challenge without header", func(t *testing.T) {
		router := newTestRouter(&fakeVerifier{})

		w := do(t, router, negotiate(""))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Negotiate", w.Header().Get("WWW-Authenticate"))
	})

	t.Run("rejected", func(t *testing.T) {
		router := newTestRouter(&fakeVerifier{})

		w := do(t, router, negotiate(base64.StdEncoding.EncodeToString([]byte("bad"))))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Negotiate", w.Header().Get("WWW-Authenticate"))
	})

	t.Run("provider error", func(t *testing.T) {
		router := newTestRouter(&fakeVerifier{err: fmt.Errorf("%w: kerberos", autherr.ErrNotConfigured)})

		w := do(t, router, negotiate(base64.StdEncoding.EncodeToString([]byte("good"))))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Negotiate", w.Header().Get("WWW-Authenticate"))
		assert.Equal(t, authenticationFailed, decodeProblem(t, w).Detail)
	})

	t.Run("not base64", func(t *testing.T) {
		router := newTestRouter(&fakeVerifier{})

		w := do(t, router, negotiate("!!!"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthorizationParam(t *testing.T) {
	tests := []struct {
		header string
		want   string
		found  bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			got, found := authorizationParam(req, "Bearer")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.found, found)
		})
	}
}
