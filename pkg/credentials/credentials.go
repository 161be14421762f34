// Package credentials models the identity assertions a client presents
// before they are verified: passwords, certificate common names, bearer
// tokens and Kerberos security contexts.
//
// Every variant implements Credentials. Identity fields are only readable
// once the variant is ready; reading earlier returns autherr.ErrNotReady.
// Token credentials start with just the raw token and become ready when a
// provider populates the resolved identity.
package credentials

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/marmos91/extauth/pkg/autherr"
)

// Credentials is the common contract of every credential variant.
type Credentials interface {
	// UserName returns the (claimed or resolved) user name, or ErrNotReady.
	UserName() (string, error)

	// IsReady reports whether identity fields can be read.
	IsReady() bool
}

// Identity is the resolved identity a provider writes into token credentials.
// Groups is kept sorted and deduplicated. A zero Expiry means none was supplied.
type Identity struct {
	UserName string
	Groups   []string
	Expiry   time.Time
}

func notReady(field string) error {
	return fmt.Errorf("%w: %s not available", autherr.ErrNotReady, field)
}

// normalizeGroups returns a sorted copy without duplicates.
func normalizeGroups(groups []string) []string {
	if len(groups) == 0 {
		return []string{}
	}
	out := slices.Clone(groups)
	slices.Sort(out)
	return slices.Compact(out)
}

// ============================================================================
// AlwaysAllow
// ============================================================================

// AlwaysAllow carries a user name that is accepted without verification.
type AlwaysAllow struct {
	userName string
}

func NewAlwaysAllow(userName string) *AlwaysAllow {
	return &AlwaysAllow{userName: userName}
}

func (c *AlwaysAllow) UserName() (string, error) { return c.userName, nil }
func (c *AlwaysAllow) IsReady() bool             { return true }

// ============================================================================
// Basic
// ============================================================================

// Basic is a user name and password pair.
type Basic struct {
	userName    string
	password    string
	hasUser     bool
	hasPassword bool
}

// NewBasic creates ready Basic credentials.
func NewBasic(userName, password string) *Basic {
	return &Basic{userName: userName, password: password, hasUser: true, hasPassword: true}
}

// SetUserName sets the user name. The credentials are ready once both
// the user name and the password are set.
func (c *Basic) SetUserName(userName string) {
	c.userName = userName
	c.hasUser = true
}

// SetPassword sets the password.
func (c *Basic) SetPassword(password string) {
	c.password = password
	c.hasPassword = true
}

func (c *Basic) IsReady() bool { return c.hasUser && c.hasPassword }

func (c *Basic) UserName() (string, error) {
	if !c.hasUser {
		return "", notReady("user name")
	}
	return c.userName, nil
}

func (c *Basic) Password() (string, error) {
	if !c.IsReady() {
		return "", notReady("password")
	}
	return c.password, nil
}

// ============================================================================
// SSLCertificate
// ============================================================================

// SSLCertificate carries the common name of an already-verified client
// certificate. Nothing is verified here.
type SSLCertificate struct {
	userName   string
	commonName string
}

func NewSSLCertificate(userName, commonName string) *SSLCertificate {
	return &SSLCertificate{userName: userName, commonName: commonName}
}

func (c *SSLCertificate) UserName() (string, error) { return c.userName, nil }
func (c *SSLCertificate) CommonName() string        { return c.commonName }
func (c *SSLCertificate) IsReady() bool             { return true }

// ============================================================================
// Token
// ============================================================================

// Token is a raw bearer token plus the identity resolved from it.
//
// The resolved identity is an interior-mutable slot: providers write it with
// Populate (or the individual setters) and readers observe either nothing or
// a complete identity. Token is safe for concurrent use.
type Token struct {
	raw string

	mu       sync.RWMutex
	resolved *Identity
}

func NewToken(raw string) *Token {
	return &Token{raw: raw}
}

// Token returns the raw token. It is always available.
func (c *Token) Token() string { return c.raw }

func (c *Token) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolved != nil && c.resolved.UserName != ""
}

func (c *Token) UserName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.resolved == nil || c.resolved.UserName == "" {
		return "", notReady("user name")
	}
	return c.resolved.UserName, nil
}

// Groups returns a copy of the resolved groups.
func (c *Token) Groups() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.resolved == nil || c.resolved.UserName == "" {
		return nil, notReady("groups")
	}
	return slices.Clone(c.resolved.Groups), nil
}

// Expiry returns the resolved expiry. ok is false when the provider did not
// supply one.
func (c *Token) Expiry() (expiry time.Time, ok bool, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.resolved == nil || c.resolved.UserName == "" {
		return time.Time{}, false, notReady("expiry")
	}
	return c.resolved.Expiry, !c.resolved.Expiry.IsZero(), nil
}

// Identity returns a copy of the resolved identity.
func (c *Token) Identity() (Identity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.resolved == nil || c.resolved.UserName == "" {
		return Identity{}, notReady("identity")
	}
	id := *c.resolved
	id.Groups = slices.Clone(id.Groups)
	return id, nil
}

// Populate replaces the resolved identity in one step.
func (c *Token) Populate(id Identity) {
	id.Groups = normalizeGroups(id.Groups)
	c.mu.Lock()
	c.resolved = &id
	c.mu.Unlock()
}

// SetUserName sets the resolved user name, keeping any other resolved fields.
func (c *Token) SetUserName(userName string) {
	c.update(func(id *Identity) { id.UserName = userName })
}

func (c *Token) SetGroups(groups []string) {
	groups = normalizeGroups(groups)
	c.update(func(id *Identity) { id.Groups = groups })
}

func (c *Token) SetExpiry(expiry time.Time) {
	c.update(func(id *Identity) { id.Expiry = expiry })
}

// Reset clears the resolved identity before a new verification attempt.
func (c *Token) Reset() {
	c.mu.Lock()
	c.resolved = nil
	c.mu.Unlock()
}

func (c *Token) update(fn func(*Identity)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved == nil {
		c.resolved = &Identity{Groups: []string{}}
	}
	fn(c.resolved)
}

// ============================================================================
// Kerberos
// ============================================================================

// GSSContext is the state of a GSS-API security context negotiated elsewhere.
type GSSContext interface {
	IsReady() bool
	IsFailed() bool
	// Realm returns the client principal's realm once the context is ready.
	Realm() string
	// UserName returns the client principal without the realm.
	UserName() string
}

// Kerberos wraps a GSS security context. Readiness is delegated to it.
type Kerberos struct {
	ctx GSSContext
}

func NewKerberos(ctx GSSContext) *Kerberos {
	return &Kerberos{ctx: ctx}
}

func (c *Kerberos) Context() GSSContext { return c.ctx }

func (c *Kerberos) IsReady() bool {
	return c.ctx != nil && c.ctx.IsReady()
}

func (c *Kerberos) UserName() (string, error) {
	if !c.IsReady() {
		return "", notReady("user name")
	}
	return c.ctx.UserName(), nil
}

func (c *Kerberos) Realm() (string, error) {
	if !c.IsReady() {
		return "", notReady("realm")
	}
	return c.ctx.Realm(), nil
}

var (
	_ Credentials = (*AlwaysAllow)(nil)
	_ Credentials = (*Basic)(nil)
	_ Credentials = (*SSLCertificate)(nil)
	_ Credentials = (*Token)(nil)
	_ Credentials = (*Kerberos)(nil)
)
