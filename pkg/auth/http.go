package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/internal/telemetry"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/credentials"
	"github.com/marmos91/extauth/pkg/metrics"
	"github.com/marmos91/extauth/pkg/settings"
)

// CheckHTTPBasicCredentials forwards a user name and password to the named
// HTTP authentication server. Settings returned by the server are appended
// to changes on success; changes may be nil.
func (a *Authenticator) CheckHTTPBasicCredentials(ctx context.Context, server string, basic *credentials.Basic, changes *settings.Changes) (ok bool, err error) {
	ctx, span := telemetry.StartAuthSpan(ctx, telemetry.SpanCheckHTTPBasic, metrics.ProviderHTTP,
		telemetry.Server(server))
	defer span.End()

	start := time.Now()
	defer func() {
		a.metrics.RecordVerification(metrics.ProviderHTTP, ok, err, time.Since(start))
		span.SetAttributes(telemetry.Result(ok))
		telemetry.RecordError(ctx, err)
	}()

	a.mu.Lock()
	client, found := a.tables.http[server]
	a.mu.Unlock()

	if !found {
		return false, fmt.Errorf("%w: HTTP authentication server %q", autherr.ErrNotConfigured, server)
	}

	user, err := basic.UserName()
	if err != nil {
		return false, err
	}
	password, err := basic.Password()
	if err != nil {
		return false, err
	}

	ok, fromServer, err := client.Authenticate(ctx, user, password)
	if err != nil {
		logger.DebugCtx(ctx, "HTTP authentication server unavailable",
			logger.Server(server), logger.User(user), logger.Err(err))
		return false, err
	}
	if !ok {
		logger.DebugCtx(ctx, "HTTP credentials rejected",
			logger.Server(server), logger.User(user), logger.Result(false))
		return false, nil
	}

	if changes != nil {
		changes.Merge(fromServer)
	}
	logger.DebugCtx(ctx, "HTTP credentials verified",
		logger.Server(server), logger.User(user), logger.KeyCount, len(fromServer))
	return true, nil
}
