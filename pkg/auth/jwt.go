package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/internal/telemetry"
	"github.com/marmos91/extauth/pkg/auth/jwtauth"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/credentials"
	"github.com/marmos91/extauth/pkg/metrics"
	"github.com/marmos91/extauth/pkg/settings"
)

// ResolveJWTCredentials verifies the token's signature with each configured
// validator in registration order, with no claims filter. The first one to
// succeed wins and its subject becomes the token's user name.
//
// With no validators configured it returns ErrNotConfigured when
// throwIfUnconfigured is set, and false otherwise.
func (a *Authenticator) ResolveJWTCredentials(ctx context.Context, tok *credentials.Token, throwIfUnconfigured bool) (ok bool, err error) {
	ctx, span := telemetry.StartAuthSpan(ctx, telemetry.SpanResolveJWT, metrics.ProviderJWT)
	defer span.End()

	validators := a.jwtValidators()
	if len(validators) == 0 {
		if throwIfUnconfigured {
			err := fmt.Errorf("%w: jwt", autherr.ErrNotConfigured)
			telemetry.RecordError(ctx, err)
			return false, err
		}
		return false, nil
	}

	start := time.Now()
	defer func() {
		a.metrics.RecordVerification(metrics.ProviderJWT, ok, err, time.Since(start))
		span.SetAttributes(telemetry.Result(ok))
	}()

	res, v := a.validateJWT(ctx, validators, "", tok.Token())
	if res == nil {
		return false, nil
	}

	a.populateFromJWT(tok, res)
	span.SetAttributes(telemetry.Validator(v.Name()), telemetry.User(res.UserName))
	logger.TraceCtx(ctx, "Extracted user name from JWT",
		logger.Validator(v.Name()), logger.User(res.UserName))
	return true, nil
}

// CheckJWTClaims is ResolveJWTCredentials with a claims predicate: a
// validator only succeeds if the token's payload also matches claims, a
// JSON object. Settings carried in the payload under the validator's
// settings key are appended to changes; changes may be nil.
func (a *Authenticator) CheckJWTClaims(ctx context.Context, claims string, tok *credentials.Token, changes *settings.Changes) (ok bool, err error) {
	ctx, span := telemetry.StartAuthSpan(ctx, telemetry.SpanCheckJWTClaims, metrics.ProviderJWT)
	defer span.End()

	start := time.Now()
	defer func() {
		a.metrics.RecordVerification(metrics.ProviderJWT, ok, err, time.Since(start))
		span.SetAttributes(telemetry.Result(ok))
		telemetry.RecordError(ctx, err)
	}()

	validators := a.jwtValidators()
	if len(validators) == 0 {
		return false, fmt.Errorf("%w: jwt", autherr.ErrNotConfigured)
	}

	res, v := a.validateJWT(ctx, validators, claims, tok.Token())
	if res == nil {
		return false, nil
	}

	a.populateFromJWT(tok, res)
	if changes != nil {
		changes.Merge(res.Settings)
	}
	span.SetAttributes(telemetry.Validator(v.Name()), telemetry.User(res.UserName))
	logger.DebugCtx(ctx, "Authenticated with JWT",
		logger.Validator(v.Name()), logger.User(res.UserName))
	return true, nil
}

// SignJWT issues a token for claims with the key of the named validator.
// Only simple validators holding an HMAC or private key can sign; others
// return jwtauth.ErrCannotSign.
func (a *Authenticator) SignJWT(validator string, claims jwt.MapClaims) (string, error) {
	for _, v := range a.jwtValidators() {
		if v.Name() == validator {
			return v.Sign(claims)
		}
	}
	return "", fmt.Errorf("%w: JWT validator %q", autherr.ErrNotConfigured, validator)
}

func (a *Authenticator) jwtValidators() []*jwtauth.Validator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tables.jwt
}

// validateJWT runs validators in order without holding the lock: remote
// validators may fetch their key set.
func (a *Authenticator) validateJWT(ctx context.Context, validators []*jwtauth.Validator, claims, token string) (*jwtauth.Result, *jwtauth.Validator) {
	for _, v := range validators {
		if res, ok := v.Validate(ctx, claims, token); ok {
			return res, v
		}
		logger.TraceCtx(ctx, "Failed authentication with JWT", logger.Validator(v.Name()))
	}
	return nil, nil
}

func (a *Authenticator) populateFromJWT(tok *credentials.Token, res *jwtauth.Result) {
	id := credentials.Identity{UserName: res.UserName}
	if exp, ok := numericClaim(res.Claims["exp"]); ok {
		id.Expiry = time.Unix(exp, 0)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	tok.Populate(id)
}

func numericClaim(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
