package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/internal/telemetry"
	"github.com/marmos91/extauth/pkg/auth/accesstoken"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/credentials"
	"github.com/marmos91/extauth/pkg/metrics"
)

// CheckAccessTokenCredentials resolves an opaque access token.
//
// A live cache entry is used as is. Otherwise processors are tried in
// registration order and the first success is cached until the earlier of
// the provider's declared expiry and now plus the processor's invalidation
// interval. Processors run without the coordinator lock; if the
// configuration is reloaded meanwhile the result is discarded and false is
// returned.
//
// A token every processor rejected yields false and a nil error, unless a
// processor could not be reached, in which case that error is returned.
func (a *Authenticator) CheckAccessTokenCredentials(ctx context.Context, tok *credentials.Token) (ok bool, err error) {
	ctx, span := telemetry.StartAuthSpan(ctx, telemetry.SpanCheckAccessToken, metrics.ProviderAccessToken)
	defer span.End()

	start := time.Now()
	defer func() {
		a.metrics.RecordVerification(metrics.ProviderAccessToken, ok, err, time.Since(start))
		span.SetAttributes(telemetry.Result(ok))
		telemetry.RecordError(ctx, err)
	}()

	raw := tok.Token()

	a.mu.Lock()
	processors := a.tables.accessTokens
	gen := a.generation
	if len(processors) == 0 {
		a.mu.Unlock()
		return false, fmt.Errorf("%w: access tokens", autherr.ErrNotConfigured)
	}
	entry, hit, expired := a.tokenCache.Lookup(raw, a.now())
	if hit {
		tok.Populate(credentials.Identity{
			UserName: entry.UserName,
			Groups:   entry.Groups,
			Expiry:   entry.ExpiresAt,
		})
	}
	a.mu.Unlock()

	switch {
	case hit:
		a.metrics.RecordCacheLookup(metrics.ProviderAccessToken, metrics.CacheHit)
		span.SetAttributes(telemetry.CacheOutcome(metrics.CacheHit), telemetry.User(entry.UserName))
		logger.TraceCtx(ctx, "Access token found in cache", logger.User(entry.UserName))
		return true, nil
	case expired:
		a.metrics.RecordCacheLookup(metrics.ProviderAccessToken, metrics.CacheExpired)
		span.SetAttributes(telemetry.CacheOutcome(metrics.CacheExpired))
		logger.TraceCtx(ctx, "Cached access token expired, removed")
	default:
		a.metrics.RecordCacheLookup(metrics.ProviderAccessToken, metrics.CacheMiss)
		span.SetAttributes(telemetry.CacheOutcome(metrics.CacheMiss))
	}

	var unreachable error
	for _, p := range processors {
		id, err := resolveWith(ctx, p, raw)
		if err != nil {
			if errors.Is(err, autherr.ErrTransientIO) {
				unreachable = err
			}
			continue
		}

		expiresAt := accesstoken.EffectiveExpiry(id.Expiry, a.now(), p.CacheInvalidationInterval())

		a.mu.Lock()
		if a.generation != gen {
			a.mu.Unlock()
			a.metrics.RecordCacheLookup(metrics.ProviderAccessToken, metrics.CacheObsolete)
			logger.DebugCtx(ctx, "Discarding access token resolved under a replaced configuration",
				logger.Processor(p.Name()))
			return false, nil
		}
		a.tokenCache.Store(raw, accesstoken.Entry{
			UserName:  id.UserName,
			Groups:    id.Groups,
			ExpiresAt: expiresAt,
		})
		tok.Populate(id)
		a.mu.Unlock()

		span.SetAttributes(telemetry.Processor(p.Name()), telemetry.User(id.UserName))
		logger.DebugCtx(ctx, "Authenticated with access token",
			logger.Processor(p.Name()), logger.User(id.UserName))
		return true, nil
	}

	return false, unreachable
}

// CheckAccessTokenCredentialsByExactProcessor resolves tok with the
// processor called name only. The cache is neither read nor written.
func (a *Authenticator) CheckAccessTokenCredentialsByExactProcessor(ctx context.Context, tok *credentials.Token, name string) (ok bool, err error) {
	ctx, span := telemetry.StartAuthSpan(ctx, telemetry.SpanCheckAccessToken, metrics.ProviderAccessToken,
		telemetry.Processor(name))
	defer span.End()

	start := time.Now()
	defer func() {
		a.metrics.RecordVerification(metrics.ProviderAccessToken, ok, err, time.Since(start))
		span.SetAttributes(telemetry.Result(ok))
		telemetry.RecordError(ctx, err)
	}()

	a.mu.Lock()
	processors := a.tables.accessTokens
	a.mu.Unlock()

	if len(processors) == 0 {
		return false, fmt.Errorf("%w: access tokens", autherr.ErrNotConfigured)
	}

	for _, p := range processors {
		if p.Name() != name {
			continue
		}

		id, err := resolveWith(ctx, p, tok.Token())
		if err != nil {
			if errors.Is(err, autherr.ErrTransientIO) {
				return false, err
			}
			return false, nil
		}

		a.mu.Lock()
		tok.Populate(id)
		a.mu.Unlock()

		logger.DebugCtx(ctx, "Authenticated with access token",
			logger.Processor(name), logger.User(id.UserName))
		return true, nil
	}

	logger.TraceCtx(ctx, "No access token processor with this name", logger.Processor(name))
	return false, nil
}

// resolveWith runs one processor against a scratch copy of the token so
// that a failed or partial resolution never reaches the caller's
// credentials.
func resolveWith(ctx context.Context, p accesstoken.Processor, raw string) (credentials.Identity, error) {
	scratch := credentials.NewToken(raw)

	ok, err := p.ResolveAndValidate(ctx, scratch)
	if err == nil && !ok {
		err = autherr.ErrAuthenticationFailed
	}
	if err == nil {
		var id credentials.Identity
		if id, err = scratch.Identity(); err == nil {
			return id, nil
		}
	}

	logger.TraceCtx(ctx, "Failed authentication with access token",
		logger.Processor(p.Name()), logger.Err(err))
	return credentials.Identity{}, err
}
