package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/internal/telemetry"
	"github.com/marmos91/extauth/pkg/auth/kerberos"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/credentials"
	"github.com/marmos91/extauth/pkg/metrics"
)

// CheckKerberosCredentials accepts an already negotiated security context.
// It returns false when the context is not ready, has failed, or belongs to
// a realm other than realm. An empty realm matches any.
func (a *Authenticator) CheckKerberosCredentials(ctx context.Context, realm string, creds *credentials.Kerberos) (bool, error) {
	ctx, span := telemetry.StartAuthSpan(ctx, telemetry.SpanCheckKerberos, metrics.ProviderKerberos,
		telemetry.Realm(realm))
	defer span.End()

	a.mu.Lock()
	configured := a.tables.kerberos != nil
	a.mu.Unlock()

	if !configured {
		err := fmt.Errorf("%w: kerberos", autherr.ErrNotConfigured)
		telemetry.RecordError(ctx, err)
		return false, err
	}

	ok := creds != nil && checkGSSContext(realm, creds.Context())
	span.SetAttributes(telemetry.Result(ok))
	return ok, nil
}

func checkGSSContext(realm string, gss credentials.GSSContext) bool {
	if gss == nil || !gss.IsReady() || gss.IsFailed() {
		return false
	}
	return realm == "" || realm == gss.Realm()
}

// AcceptKerberos verifies a raw context token (SPNEGO, GSS-API wrapped or
// bare AP-REQ) with the configured keytab and checks the resulting context
// like CheckKerberosCredentials.
//
// The returned credentials are nil only when err is non-nil. A rejected
// token yields credentials wrapping a failed context and false.
func (a *Authenticator) AcceptKerberos(ctx context.Context, realm string, token []byte) (creds *credentials.Kerberos, ok bool, err error) {
	ctx, span := telemetry.StartAuthSpan(ctx, telemetry.SpanAcceptKerberos, metrics.ProviderKerberos,
		telemetry.Realm(realm))
	defer span.End()

	start := time.Now()
	defer func() {
		a.metrics.RecordVerification(metrics.ProviderKerberos, ok, err, time.Since(start))
		span.SetAttributes(telemetry.Result(ok))
		telemetry.RecordError(ctx, err)
	}()

	a.mu.Lock()
	acceptor := a.tables.acceptor
	a.mu.Unlock()

	if acceptor == nil {
		return nil, false, fmt.Errorf("%w: kerberos keytab", autherr.ErrNotConfigured)
	}

	sc, err := acceptor.Accept(ctx, token)
	if err != nil {
		return nil, false, err
	}
	creds = credentials.NewKerberos(sc)

	ok = checkGSSContext(realm, sc)
	if ok {
		span.SetAttributes(telemetry.User(sc.UserName()))
		logger.DebugCtx(ctx, "Kerberos credentials verified",
			logger.User(sc.UserName()), logger.KeyRealm, sc.Realm())
	} else if sc.IsReady() {
		logger.DebugCtx(ctx, "Kerberos realm mismatch",
			logger.User(sc.UserName()), logger.KeyRealm, sc.Realm(), "want_realm", realm)
	}
	return creds, ok, nil
}

// KerberosParams returns the configured Kerberos parameters.
func (a *Authenticator) KerberosParams() (kerberos.Params, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tables.kerberos == nil {
		return kerberos.Params{}, fmt.Errorf("%w: kerberos", autherr.ErrNotConfigured)
	}
	return *a.tables.kerberos, nil
}
