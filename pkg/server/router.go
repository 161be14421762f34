package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/internal/telemetry"
	"github.com/marmos91/extauth/pkg/metrics"
	"github.com/marmos91/extauth/pkg/server/handlers"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-Id"

// Coordinator is what the router needs from *auth.Authenticator.
type Coordinator interface {
	handlers.Verifier
	handlers.ProviderLister
}

// NewRouter creates the chi router of the verification endpoint.
//
// Routes:
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check, counts configured providers
//   - GET /metrics - Prometheus metrics (404 when metrics are disabled)
//   - POST /verify/ldap/{server} - LDAP bind and role searches
//   - POST /verify/http/{server} - HTTP Basic authentication server
//   - POST /verify/jwt - JWT signature and optional claims
//   - POST /verify/token - Opaque access token
//   - POST /verify/kerberos - SPNEGO Negotiate token
func NewRouter(c Coordinator, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestContext)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	healthHandler := handlers.NewHealthHandler(c)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	verifyHandler := handlers.NewVerifyHandler(c)
	r.Route("/verify", func(r chi.Router) {
		r.Use(traceVerification)

		r.Post("/ldap/{server}", verifyHandler.LDAP)
		r.Post("/http/{server}", verifyHandler.HTTPBasic)
		r.Post("/jwt", verifyHandler.JWT)
		r.Post("/token", verifyHandler.AccessToken)
		r.Post("/kerberos", verifyHandler.Kerberos)
	})

	return r
}

// requestContext assigns a request id, honoring one sent by the caller, and
// attaches a LogContext so that coordinator logs carry it.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		lc := logger.NewLogContext(requestID, clientIP(r.RemoteAddr))
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), lc)))
	})
}

// traceVerification opens the root span of a verification request.
func traceVerification(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r.RemoteAddr)
		ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanVerifyHTTPEndpoint,
			trace.WithAttributes(
				telemetry.ClientIP(ip),
				telemetry.ClientAddr(r.RemoteAddr),
				telemetry.Operation(r.URL.Path),
			))
		defer span.End()

		if lc := logger.FromContext(ctx); lc != nil {
			lc = lc.WithOperation(r.URL.Path).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
			ctx = logger.WithContext(ctx, lc)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/") || path == "/metrics"
}

// requestLogger logs one line per completed request. Health and metrics
// scrapes are logged at DEBUG.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			logger.KeyStatus, ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(start),
		}

		if isHealthPath(r.URL.Path) {
			logger.DebugCtx(r.Context(), "Request completed", logArgs...)
		} else {
			logger.InfoCtx(r.Context(), "Request completed", logArgs...)
		}
	})
}
