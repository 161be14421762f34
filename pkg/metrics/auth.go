package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider kinds used as the "provider" label.
const (
	ProviderLDAP        = "ldap"
	ProviderKerberos    = "kerberos"
	ProviderHTTP        = "http"
	ProviderJWT         = "jwt"
	ProviderAccessToken = "access_token"
)

// Cache outcomes used as the "outcome" label.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheExpired  = "expired"
	CacheObsolete = "obsolete"
)

// AuthMetrics tracks authentication outcomes and cache behaviour.
//
// All metrics use the "extauth_" prefix. Methods handle a nil receiver
// gracefully, so a nil *AuthMetrics acts as a no-op.
//
// Metrics tracked:
//   - Verification attempts by provider kind and result
//   - Verification duration by provider kind
//   - LDAP and access-token cache outcomes
//   - JWKS fetches by result, and fetch duration
//   - Upstream HTTP retries
type AuthMetrics struct {
	attempts     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	jwksFetches  *prometheus.CounterVec
	jwksDuration prometheus.Histogram
	httpRetries  *prometheus.CounterVec
	reloads      *prometheus.CounterVec
}

// NewAuthMetrics creates and registers the authentication metrics on the
// active registry. Returns nil if metrics are not enabled.
func NewAuthMetrics() *AuthMetrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}
	return newAuthMetrics(reg)
}

func newAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	f := promauto.With(reg)
	return &AuthMetrics{
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extauth_verifications_total",
				Help: "Total credential verifications by provider kind and result",
			},
			[]string{"provider", "result"}, // result: success, failure, error
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extauth_verification_duration_seconds",
				Help:    "Credential verification duration in seconds by provider kind",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extauth_cache_lookups_total",
				Help: "Verification cache lookups by provider kind and outcome",
			},
			[]string{"provider", "outcome"},
		),
		jwksFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extauth_jwks_fetches_total",
				Help: "Remote JWKS fetches by result",
			},
			[]string{"result"},
		),
		jwksDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "extauth_jwks_fetch_duration_seconds",
				Help:    "Remote JWKS fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		httpRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extauth_upstream_retries_total",
				Help: "Retried upstream HTTP requests by provider kind",
			},
			[]string{"provider"},
		),
		reloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extauth_config_reloads_total",
				Help: "Configuration reloads by result",
			},
			[]string{"result"},
		),
	}
}

// RecordVerification records one verification outcome. err takes precedence
// over ok when labelling the result.
func (m *AuthMetrics) RecordVerification(provider string, ok bool, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "success"
	}
	m.attempts.WithLabelValues(provider, result).Inc()
	m.duration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordCacheLookup records a verification cache outcome.
func (m *AuthMetrics) RecordCacheLookup(provider, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(provider, outcome).Inc()
}

// RecordJWKSFetch records a remote JWKS fetch.
func (m *AuthMetrics) RecordJWKSFetch(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.jwksFetches.WithLabelValues(result).Inc()
	m.jwksDuration.Observe(d.Seconds())
}

// RecordRetry records one retried upstream HTTP request.
func (m *AuthMetrics) RecordRetry(provider string) {
	if m == nil {
		return
	}
	m.httpRetries.WithLabelValues(provider).Inc()
}

// RecordReload records a configuration reload.
func (m *AuthMetrics) RecordReload(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.reloads.WithLabelValues(result).Inc()
}
