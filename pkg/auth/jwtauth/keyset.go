package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/auth/httpauth"
	"github.com/marmos91/extauth/pkg/metrics"
)

// DefaultRefresh is how long a fetched remote key set is served before the
// next request refetches it.
const DefaultRefresh = 300000 * time.Millisecond

// ErrNoKeySet is returned when a remote key set has never been fetched
// successfully.
var ErrNoKeySet = errors.New("no JWKS available")

// KeySetProvider supplies the JSON Web Key Set a JWKS validator verifies
// against.
type KeySetProvider interface {
	KeySet(ctx context.Context) (*jose.JSONWebKeySet, error)
}

// ParseKeySet decodes a JWKS document.
func ParseKeySet(data []byte) (*jose.JSONWebKeySet, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return &set, nil
}

// ============================================================================
// Static
// ============================================================================

// StaticKeySet serves a key set loaded once at configuration time.
type StaticKeySet struct {
	set *jose.JSONWebKeySet
}

// NewStaticKeySet parses an inline JWKS document.
func NewStaticKeySet(data []byte) (*StaticKeySet, error) {
	set, err := ParseKeySet(data)
	if err != nil {
		return nil, err
	}
	return &StaticKeySet{set: set}, nil
}

// LoadStaticKeySet reads and parses a JWKS file.
func LoadStaticKeySet(path string) (*StaticKeySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS file: %w", err)
	}
	return NewStaticKeySet(data)
}

func (s *StaticKeySet) KeySet(context.Context) (*jose.JSONWebKeySet, error) {
	return s.set, nil
}

// ============================================================================
// Remote
// ============================================================================

// RemoteKeySet fetches a key set over HTTP and serves it for Refresh after
// each successful fetch.
//
// At most one fetch is in flight: callers arriving after the refresh window
// wait for the running fetch and then reuse its result. A failed fetch keeps
// the previous set and does not advance the fetch time, so the next caller
// retries.
type RemoteKeySet struct {
	client  *httpauth.Client
	refresh time.Duration
	now     func() time.Time
	metrics *metrics.AuthMetrics

	fetchMu sync.Mutex

	mu        sync.RWMutex
	set       *jose.JSONWebKeySet
	lastFetch time.Time
}

// RemoteOption customizes a RemoteKeySet.
type RemoteOption func(*RemoteKeySet)

// WithClock overrides the clock used for the refresh window.
func WithClock(now func() time.Time) RemoteOption {
	return func(r *RemoteKeySet) { r.now = now }
}

// WithKeySetMetrics records fetch outcomes.
func WithKeySetMetrics(m *metrics.AuthMetrics) RemoteOption {
	return func(r *RemoteKeySet) { r.metrics = m }
}

// NewRemoteKeySet creates a provider fetching from client's URI.
func NewRemoteKeySet(client *httpauth.Client, refresh time.Duration, opts ...RemoteOption) *RemoteKeySet {
	r := &RemoteKeySet{
		client:  client,
		refresh: refresh,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// cached returns the set when it is still within the refresh window.
func (r *RemoteKeySet) cached() (*jose.JSONWebKeySet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.set != nil && !r.lastFetch.IsZero() && r.now().Sub(r.lastFetch) < r.refresh {
		return r.set, true
	}
	return nil, false
}

func (r *RemoteKeySet) stale() *jose.JSONWebKeySet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

func (r *RemoteKeySet) KeySet(ctx context.Context) (*jose.JSONWebKeySet, error) {
	if set, ok := r.cached(); ok {
		return set, nil
	}

	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	if set, ok := r.cached(); ok {
		return set, nil
	}

	start := time.Now()
	set, err := r.fetch(ctx)
	r.metrics.RecordJWKSFetch(err == nil, time.Since(start))

	if err != nil {
		uri := r.client.Params().URI
		if prev := r.stale(); prev != nil {
			logger.WarnCtx(ctx, "JWKS refresh failed, keeping previous key set",
				logger.KeyURI, uri, logger.Err(err))
			return prev, nil
		}
		logger.WarnCtx(ctx, "JWKS fetch failed", logger.KeyURI, uri, logger.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrNoKeySet, err)
	}

	r.mu.Lock()
	r.set = set
	r.lastFetch = r.now()
	r.mu.Unlock()

	logger.DebugCtx(ctx, "JWKS refreshed",
		logger.KeyURI, r.client.Params().URI,
		logger.KeyCount, len(set.Keys))
	return set, nil
}

func (r *RemoteKeySet) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	resp, err := r.client.Get(ctx, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}
	return ParseKeySet(resp.Body)
}
