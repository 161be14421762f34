package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that log lines
// from different providers can be aggregated and queried the same way.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Request
	// ========================================================================
	KeyRequestID = "request_id" // Per-request identifier assigned by the HTTP front end
	KeyOperation = "operation"  // Coordinator operation: check_ldap, resolve_jwt, ...
	KeyClientIP  = "client_ip"  // Client IP address
	KeyUser      = "user"       // Presented or resolved user name

	// ========================================================================
	// Providers
	// ========================================================================
	KeyServer    = "server"    // Named LDAP or HTTP authentication server
	KeyValidator = "validator" // Named JWT validator
	KeyProcessor = "processor" // Named access-token processor
	KeyRealm     = "realm"     // Kerberos realm
	KeyAlgorithm = "algorithm" // JWT signing algorithm
	KeyKeyID     = "kid"       // JWKS key id
	KeyURI       = "uri"       // Upstream endpoint
	KeySection   = "section"   // Configuration section name

	// ========================================================================
	// Outcome
	// ========================================================================
	KeyResult     = "result"      // Boolean authentication outcome
	KeyCacheHit   = "cache_hit"   // Whether a cached verification was reused
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyStatus     = "status"      // Upstream HTTP status code
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyPath       = "path"        // File path (keytab, JWKS file, config)
	KeyCount      = "count"       // Number of items (keys, roles, providers)
)

// Err returns an error attribute, or an empty attribute for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Server returns a named server attribute.
func Server(name string) slog.Attr {
	return slog.String(KeyServer, name)
}

// Validator returns a JWT validator name attribute.
func Validator(name string) slog.Attr {
	return slog.String(KeyValidator, name)
}

// Processor returns an access-token processor name attribute.
func Processor(name string) slog.Attr {
	return slog.String(KeyProcessor, name)
}

// User returns a user name attribute.
func User(name string) slog.Attr {
	return slog.String(KeyUser, name)
}

// Result returns an authentication outcome attribute.
func Result(ok bool) slog.Attr {
	return slog.Bool(KeyResult, ok)
}

// CacheHit returns a cache hit attribute.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// DurationMs returns a duration attribute measured from start.
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}
