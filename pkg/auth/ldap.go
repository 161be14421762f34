package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/internal/telemetry"
	"github.com/marmos91/extauth/pkg/auth/ldap"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/credentials"
	"github.com/marmos91/extauth/pkg/metrics"
)

// CheckLDAPCredentials verifies a user name and password against the named
// LDAP server and runs the requested role searches.
//
// A previous success is reused, without a bind, when the server's
// verification_cooldown is positive, it happened no longer than the
// cooldown ago, and it was made with the same parameters, password and
// role-search shape. Otherwise one live bind runs without holding the
// coordinator lock, and its result is committed only if the server is still
// configured the same way and no newer success for the user was recorded
// with different parameters. A result that fails this check is reported as
// false even though the bind succeeded.
//
// The returned results hold one entry per role search, in request order.
func (a *Authenticator) CheckLDAPCredentials(ctx context.Context, server string, basic *credentials.Basic, roleSearch []ldap.RoleSearchParams) (ok bool, results ldap.SearchResultsList, err error) {
	ctx, span := telemetry.StartAuthSpan(ctx, telemetry.SpanCheckLDAP, metrics.ProviderLDAP,
		telemetry.Server(server), telemetry.RoleSearchCount(len(roleSearch)))
	defer span.End()

	start := time.Now()
	defer func() {
		a.metrics.RecordVerification(metrics.ProviderLDAP, ok, err, time.Since(start))
		span.SetAttributes(telemetry.Result(ok))
		telemetry.RecordError(ctx, err)
	}()

	user, err := basic.UserName()
	if err != nil {
		return false, nil, err
	}
	password, err := basic.Password()
	if err != nil {
		return false, nil, err
	}
	span.SetAttributes(telemetry.User(user))

	a.mu.Lock()
	blueprint, found := a.tables.ldap[server]
	if !found {
		a.mu.Unlock()
		return false, nil, fmt.Errorf("%w: LDAP server %q", autherr.ErrNotConfigured, server)
	}
	params := blueprint.WithCredentials(user, password)
	hash := ldap.HashParams(params, roleSearch)

	if params.VerificationCooldown > 0 {
		if cached, hit := a.ldapCache.Lookup(server, user, hash, params.VerificationCooldown, roleSearch, a.now()); hit {
			a.mu.Unlock()
			a.metrics.RecordCacheLookup(metrics.ProviderLDAP, metrics.CacheHit)
			span.SetAttributes(telemetry.CacheHit(true))
			logger.TraceCtx(ctx, "Reusing cached LDAP verification",
				logger.Server(server), logger.User(user), logger.CacheHit(true))
			return true, cached, nil
		}
		a.metrics.RecordCacheLookup(metrics.ProviderLDAP, metrics.CacheMiss)
	}
	a.mu.Unlock()
	span.SetAttributes(telemetry.CacheHit(false))

	ok, results, err = a.ldapClient.Authenticate(ctx, params, roleSearch)
	if err != nil {
		logger.DebugCtx(ctx, "LDAP verification failed",
			logger.Server(server), logger.User(user), logger.Err(err))
		return false, nil, err
	}
	if !ok {
		logger.DebugCtx(ctx, "LDAP credentials rejected",
			logger.Server(server), logger.User(user), logger.Result(false))
		return false, nil, nil
	}
	checkedAt := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	current, found := a.tables.ldap[server]
	if !found {
		return a.discardObsolete(ctx, server, user, "server no longer configured")
	}
	if ldap.HashParams(current.WithCredentials(user, password), roleSearch) != hash {
		return a.discardObsolete(ctx, server, user, "server parameters changed")
	}
	if !a.ldapCache.Commit(server, user, hash, roleSearch, results, checkedAt) {
		return a.discardObsolete(ctx, server, user, "newer verification recorded")
	}

	logger.DebugCtx(ctx, "LDAP credentials verified",
		logger.Server(server), logger.User(user), logger.CacheHit(false), logger.KeyCount, len(results))
	return true, results, nil
}

// discardObsolete reports a successful bind whose result can no longer be
// trusted. Called with mu held.
func (a *Authenticator) discardObsolete(ctx context.Context, server, user, reason string) (bool, ldap.SearchResultsList, error) {
	a.metrics.RecordCacheLookup(metrics.ProviderLDAP, metrics.CacheObsolete)
	logger.DebugCtx(ctx, "Discarding obsolete LDAP verification",
		logger.Server(server), logger.User(user), "reason", reason)
	return false, nil, nil
}
