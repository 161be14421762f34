package kerberos

import (
	"strings"

	"github.com/marmos91/extauth/pkg/credentials"
)

// State is the lifecycle stage of a security context.
type State int

const (
	StateInitial State = iota
	StateEstablished
	StateFailed
)

// SecurityContext is the outcome of accepting one context token.
type SecurityContext struct {
	state    State
	userName string
	realm    string
	reason   string
}

// NewEstablishedContext returns a ready context for a principal name such
// as "alice" in realm "EXAMPLE.COM".
func NewEstablishedContext(userName, realm string) *SecurityContext {
	return &SecurityContext{state: StateEstablished, userName: userName, realm: realm}
}

// NewFailedContext returns a context that failed with reason.
func NewFailedContext(reason string) *SecurityContext {
	return &SecurityContext{state: StateFailed, reason: reason}
}

// ParsePrincipal splits "name@REALM" at the last '@'. A principal without a
// realm yields an empty realm.
func ParsePrincipal(principal string) (name, realm string) {
	i := strings.LastIndexByte(principal, '@')
	if i < 0 {
		return principal, ""
	}
	return principal[:i], principal[i+1:]
}

func (c *SecurityContext) State() State     { return c.state }
func (c *SecurityContext) IsReady() bool    { return c.state == StateEstablished }
func (c *SecurityContext) IsFailed() bool   { return c.state == StateFailed }
func (c *SecurityContext) Realm() string    { return c.realm }
func (c *SecurityContext) UserName() string { return c.userName }

// FailureReason describes why the context failed, if it did.
func (c *SecurityContext) FailureReason() string { return c.reason }

var _ credentials.GSSContext = (*SecurityContext)(nil)
