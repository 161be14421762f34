package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/auth/ldap"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/credentials"
	"github.com/marmos91/extauth/pkg/settings"
)

// Verifier is the part of *auth.Authenticator the verification endpoints
// call.
type Verifier interface {
	CheckLDAPCredentials(ctx context.Context, server string, basic *credentials.Basic, roleSearch []ldap.RoleSearchParams) (bool, ldap.SearchResultsList, error)
	CheckHTTPBasicCredentials(ctx context.Context, server string, basic *credentials.Basic, changes *settings.Changes) (bool, error)
	ResolveJWTCredentials(ctx context.Context, tok *credentials.Token, throwIfUnconfigured bool) (bool, error)
	CheckJWTClaims(ctx context.Context, claims string, tok *credentials.Token, changes *settings.Changes) (bool, error)
	CheckAccessTokenCredentials(ctx context.Context, tok *credentials.Token) (bool, error)
	CheckAccessTokenCredentialsByExactProcessor(ctx context.Context, tok *credentials.Token, name string) (bool, error)
	AcceptKerberos(ctx context.Context, realm string, token []byte) (*credentials.Kerberos, bool, error)
}

// authenticationFailed is the only detail ever returned for a rejected
// request, whatever the reason the provider gave.
const authenticationFailed = "authentication failed"

// BasicRequest carries a user name and password.
type BasicRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// RoleSearchRequest is one LDAP role search. Attribute defaults to cn and
// Scope to subtree.
type RoleSearchRequest struct {
	BaseDN       string `json:"base_dn"`
	SearchFilter string `json:"search_filter"`
	Attribute    string `json:"attribute,omitempty"`
	Scope        string `json:"scope,omitempty"`
	Prefix       string `json:"prefix"`
}

func (rs RoleSearchRequest) params() (ldap.RoleSearchParams, error) {
	if rs.BaseDN == "" || rs.SearchFilter == "" {
		return ldap.RoleSearchParams{}, errors.New("role_search entries need base_dn and search_filter")
	}
	raw := map[string]any{
		"base_dn":       rs.BaseDN,
		"search_filter": rs.SearchFilter,
		"prefix":        rs.Prefix,
	}
	if rs.Attribute != "" {
		raw["attribute"] = rs.Attribute
	}
	if rs.Scope != "" {
		raw["scope"] = rs.Scope
	}
	return ldap.ParseRoleSearchParams(raw)
}

// LDAPRequest is the body of POST /verify/ldap/{server}.
type LDAPRequest struct {
	BasicRequest
	RoleSearch []RoleSearchRequest `json:"role_search,omitempty"`
}

// TokenRequest is the body of POST /verify/jwt and POST /verify/token. The
// token may instead be sent as a bearer Authorization header.
type TokenRequest struct {
	Token string `json:"token,omitempty"`

	// Claims is a JSON object the JWT payload must match.
	Claims string `json:"claims,omitempty"`

	// Processor restricts access-token resolution to one processor and
	// bypasses the cache.
	Processor string `json:"processor,omitempty"`
}

// VerifyResponse describes a successful verification.
type VerifyResponse struct {
	Authenticated bool           `json:"authenticated"`
	User          string         `json:"user"`
	Realm         string         `json:"realm,omitempty"`
	Groups        []string       `json:"groups,omitempty"`
	Roles         [][]string     `json:"roles,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	Settings      map[string]any `json:"settings,omitempty"`
}

// VerifyHandler exposes the coordinator's verification operations.
type VerifyHandler struct {
	verifier Verifier
}

// NewVerifyHandler creates a new verification handler.
func NewVerifyHandler(v Verifier) *VerifyHandler {
	return &VerifyHandler{verifier: v}
}

// LDAP handles POST /verify/ldap/{server}.
func (h *VerifyHandler) LDAP(w http.ResponseWriter, r *http.Request) {
	server := chi.URLParam(r, "server")

	var req LDAPRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.User == "" {
		BadRequest(w, "user is required")
		return
	}

	roleSearch := make([]ldap.RoleSearchParams, 0, len(req.RoleSearch))
	for _, rs := range req.RoleSearch {
		params, err := rs.params()
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		roleSearch = append(roleSearch, params)
	}

	ok, results, err := h.verifier.CheckLDAPCredentials(r.Context(), server,
		credentials.NewBasic(req.User, req.Password), roleSearch)
	if !h.succeeded(w, r, ok, err) {
		return
	}

	resp := VerifyResponse{Authenticated: true, User: req.User}
	for _, roles := range results {
		resp.Roles = append(resp.Roles, nonNil(roles))
	}
	WriteJSONOK(w, resp)
}

// HTTPBasic handles POST /verify/http/{server}.
func (h *VerifyHandler) HTTPBasic(w http.ResponseWriter, r *http.Request) {
	server := chi.URLParam(r, "server")

	var req BasicRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.User == "" {
		BadRequest(w, "user is required")
		return
	}

	var changes settings.Changes
	ok, err := h.verifier.CheckHTTPBasicCredentials(r.Context(), server,
		credentials.NewBasic(req.User, req.Password), &changes)
	if !h.succeeded(w, r, ok, err) {
		return
	}

	WriteJSONOK(w, VerifyResponse{
		Authenticated: true,
		User:          req.User,
		Settings:      settingsMap(changes),
	})
}

// JWT handles POST /verify/jwt. Without claims the token's signature alone
// is checked.
func (h *VerifyHandler) JWT(w http.ResponseWriter, r *http.Request) {
	req, ok := tokenRequest(w, r)
	if !ok {
		return
	}

	tok := credentials.NewToken(req.Token)
	var changes settings.Changes
	var err error
	if req.Claims == "" {
		ok, err = h.verifier.ResolveJWTCredentials(r.Context(), tok, true)
	} else {
		ok, err = h.verifier.CheckJWTClaims(r.Context(), req.Claims, tok, &changes)
	}
	if !h.succeeded(w, r, ok, err) {
		return
	}

	resp := tokenResponse(tok)
	resp.Settings = settingsMap(changes)
	WriteJSONOK(w, resp)
}

// AccessToken handles POST /verify/token.
func (h *VerifyHandler) AccessToken(w http.ResponseWriter, r *http.Request) {
	req, ok := tokenRequest(w, r)
	if !ok {
		return
	}

	tok := credentials.NewToken(req.Token)
	var err error
	if req.Processor == "" {
		ok, err = h.verifier.CheckAccessTokenCredentials(r.Context(), tok)
	} else {
		ok, err = h.verifier.CheckAccessTokenCredentialsByExactProcessor(r.Context(), tok, req.Processor)
	}
	if !h.succeeded(w, r, ok, err) {
		return
	}

	WriteJSONOK(w, tokenResponse(tok))
}

// Kerberos handles POST /verify/kerberos. The client sends its context
// token as "Authorization: Negotiate <base64>"; the optional realm query
// parameter restricts the accepted realm.
func (h *VerifyHandler) Kerberos(w http.ResponseWriter, r *http.Request) {
	raw, found := authorizationParam(r, "Negotiate")
	if !found {
		w.Header().Set("WWW-Authenticate", "Negotiate")
		Unauthorized(w, authenticationFailed)
		return
	}
	token, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		BadRequest(w, "Negotiate token is not valid base64")
		return
	}

	creds, ok, err := h.verifier.AcceptKerberos(r.Context(), r.URL.Query().Get("realm"), token)
	if !ok {
		w.Header().Set("WWW-Authenticate", "Negotiate")
	}
	if !h.succeeded(w, r, ok, err) {
		return
	}

	user, _ := creds.UserName()
	realm, _ := creds.Realm()
	WriteJSONOK(w, VerifyResponse{Authenticated: true, User: user, Realm: realm})
}

// succeeded writes the failure response for a negative outcome and reports
// whether the caller should write a success body. Every failure, whatever
// its cause, is the same 401 so that callers cannot tell a wrong password
// from an unknown or broken provider; the cause is only logged.
func (h *VerifyHandler) succeeded(w http.ResponseWriter, r *http.Request, ok bool, err error) bool {
	if err == nil && ok {
		return true
	}

	ctx := r.Context()
	switch {
	case err == nil:
	case errors.Is(err, autherr.ErrNotConfigured):
		logger.DebugCtx(ctx, "Verification against unconfigured provider", logger.Err(err))
	case errors.Is(err, autherr.ErrTransientIO):
		logger.WarnCtx(ctx, "Authentication provider unavailable", logger.Err(err))
	case errors.Is(err, autherr.ErrConfig):
		logger.ErrorCtx(ctx, "Authentication provider misconfigured", logger.Err(err))
	default:
		logger.DebugCtx(ctx, "Verification failed", logger.Err(err))
	}
	Unauthorized(w, authenticationFailed)
	return false
}

func tokenRequest(w http.ResponseWriter, r *http.Request) (TokenRequest, bool) {
	var req TokenRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, &req) {
			return req, false
		}
	}
	if req.Token == "" {
		req.Token, _ = authorizationParam(r, "Bearer")
	}
	if req.Token == "" {
		BadRequest(w, "token is required")
		return req, false
	}
	return req, true
}

// authorizationParam returns the credentials of an Authorization header
// using scheme, compared case-insensitively.
func authorizationParam(r *http.Request, scheme string) (string, bool) {
	value := r.Header.Get("Authorization")
	prefix, param, found := strings.Cut(value, " ")
	if !found || !strings.EqualFold(prefix, scheme) {
		return "", false
	}
	param = strings.TrimSpace(param)
	return param, param != ""
}

func tokenResponse(tok *credentials.Token) VerifyResponse {
	resp := VerifyResponse{Authenticated: true}
	resp.User, _ = tok.UserName()
	resp.Groups, _ = tok.Groups()
	if exp, ok, err := tok.Expiry(); err == nil && ok {
		exp = exp.UTC()
		resp.ExpiresAt = &exp
	}
	return resp
}

func settingsMap(changes settings.Changes) map[string]any {
	if len(changes) == 0 {
		return nil
	}
	return changes.Map()
}
