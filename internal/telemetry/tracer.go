package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for verification spans.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Authentication attributes
	// ========================================================================
	AttrProvider   = "auth.provider"   // ldap, kerberos, http, jwt, access_token
	AttrOperation  = "auth.operation"  // Coordinator operation name
	AttrServer     = "auth.server"     // Configured LDAP or HTTP server name
	AttrUser       = "auth.user"       // Claimed or resolved user name
	AttrRealm      = "auth.realm"      // Kerberos realm
	AttrValidator  = "auth.validator"  // JWT validator name
	AttrProcessor  = "auth.processor"  // Access-token processor name
	AttrResult     = "auth.result"     // success, failure
	AttrRoleSearch = "auth.role_count" // Number of LDAP role searches

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheHit     = "cache.hit"
	AttrCacheOutcome = "cache.outcome" // hit, miss, expired, obsolete
)

// Span names for coordinator operations.
// Format: auth.<operation>
const (
	SpanCheckLDAP          = "auth.check_ldap"
	SpanCheckKerberos      = "auth.check_kerberos"
	SpanAcceptKerberos     = "auth.accept_kerberos"
	SpanCheckHTTPBasic     = "auth.check_http_basic"
	SpanResolveJWT         = "auth.resolve_jwt"
	SpanCheckJWTClaims     = "auth.check_jwt_claims"
	SpanCheckAccessToken   = "auth.check_access_token"
	SpanSetConfiguration   = "auth.set_configuration"
	SpanVerifyHTTPEndpoint = "server.verify"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address (ip:port)
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Provider returns an attribute for the provider kind
func Provider(kind string) attribute.KeyValue {
	return attribute.String(AttrProvider, kind)
}

func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

func Server(name string) attribute.KeyValue {
	return attribute.String(AttrServer, name)
}

func User(name string) attribute.KeyValue {
	return attribute.String(AttrUser, name)
}

func Realm(realm string) attribute.KeyValue {
	return attribute.String(AttrRealm, realm)
}

func Validator(name string) attribute.KeyValue {
	return attribute.String(AttrValidator, name)
}

func Processor(name string) attribute.KeyValue {
	return attribute.String(AttrProcessor, name)
}

func RoleSearchCount(n int) attribute.KeyValue {
	return attribute.Int(AttrRoleSearch, n)
}

// Result returns an attribute describing a verification outcome
func Result(ok bool) attribute.KeyValue {
	if ok {
		return attribute.String(AttrResult, "success")
	}
	return attribute.String(AttrResult, "failure")
}

// CacheHit returns an attribute for cache hit/miss
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheOutcome returns an attribute for a detailed cache outcome
func CacheOutcome(outcome string) attribute.KeyValue {
	return attribute.String(AttrCacheOutcome, outcome)
}

// StartAuthSpan starts a span for a coordinator operation. The span is named
// after the operation and tagged with the provider kind.
func StartAuthSpan(ctx context.Context, name, provider string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Provider(provider),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
