// Package jwtauth validates bearer JWTs against statically configured keys
// or JSON Web Key Sets, and matches caller supplied claim predicates against
// the token payload.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/settings"
)

// Result is what a successful validation yields.
type Result struct {
	// UserName is the token's subject.
	UserName string

	// Claims is the decoded payload. Integral numbers are int64.
	Claims map[string]any

	// Settings holds overrides extracted from the payload under the
	// validator's settings key.
	Settings settings.Changes
}

// verifier checks a token's signature and time claims. It returns the
// parsed token on success.
type verifier interface {
	verify(ctx context.Context, raw string) (*jwt.Token, error)
}

// Validator is one configured JWT validator.
type Validator struct {
	name        string
	kind        Kind
	settingsKey string
	verifier    verifier
	signer      *signer
}

// Kind identifies how a validator obtains its key material.
type Kind string

const (
	KindSimple     Kind = "simple"
	KindRemoteJWKS Kind = "remote_jwks"
	KindStaticJWKS Kind = "static_jwks"
)

func (v *Validator) Name() string        { return v.name }
func (v *Validator) Kind() Kind          { return v.kind }
func (v *Validator) SettingsKey() string { return v.settingsKey }

// Validate verifies token and, if claims is non-empty, matches it against
// the payload. Any failure returns false; the reason is logged at trace
// level and never returned, so one broken validator cannot stop a caller
// from trying the next one.
func (v *Validator) Validate(ctx context.Context, claims, token string) (*Result, bool) {
	res, err := v.validate(ctx, claims, token)
	if err != nil {
		logger.TraceCtx(ctx, "Failed to validate JWT",
			logger.KeyValidator, v.name,
			logger.Err(err))
		return nil, false
	}
	return res, true
}

func (v *Validator) validate(ctx context.Context, claims, token string) (*Result, error) {
	predicate, err := ParseClaimsPredicate(claims)
	if err != nil {
		return nil, err
	}

	tok, err := v.verifier.verify(ctx, token)
	if err != nil {
		return nil, err
	}

	payload, err := decodePayload(token)
	if err != nil {
		return nil, err
	}

	if predicate != nil && !MatchClaims(predicate, payload) {
		return nil, errors.New("claims do not match")
	}

	subject, err := tok.Claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	if subject == "" {
		return nil, errors.New("token has no subject")
	}

	res := &Result{UserName: subject, Claims: payload}
	if v.settingsKey != "" {
		if tree, ok := payload[v.settingsKey]; ok {
			res.Settings = settings.Flatten("", tree)
		}
	}
	return res, nil
}

// decodePayload decodes the payload segment with integer/float distinction,
// which jwt.MapClaims does not keep.
func decodePayload(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("token is malformed")
	}
	raw, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	v, err := settings.DecodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("payload is not an object")
	}
	return obj, nil
}

// ============================================================================
// Simple
// ============================================================================

// keyVerifier verifies with one fixed algorithm and key.
type keyVerifier struct {
	method jwt.SigningMethod
	key    any
	now    func() time.Time
}

func (k *keyVerifier) verify(_ context.Context, raw string) (*jwt.Token, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{k.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(k.now),
	)
	return p.Parse(raw, func(*jwt.Token) (any, error) { return k.key, nil })
}

// unsignedVerifier accepts any signature and only checks time claims. It
// backs the "none" algorithm.
type unsignedVerifier struct {
	now func() time.Time
}

func (u *unsignedVerifier) verify(_ context.Context, raw string) (*jwt.Token, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}
	if err := jwt.NewValidator(jwt.WithIssuedAt(), jwt.WithTimeFunc(u.now)).Validate(tok.Claims); err != nil {
		return nil, err
	}
	return tok, nil
}

// ============================================================================
// JWKS
// ============================================================================

// JWKSLeeway is the clock skew tolerated on time claims for JWKS validators.
const JWKSLeeway = 60 * time.Second

var jwksMethods = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodRS384.Alg(),
	jwt.SigningMethodRS512.Alg(),
}

type jwksVerifier struct {
	name     string
	provider KeySetProvider
	now      func() time.Time
}

func (j *jwksVerifier) verify(ctx context.Context, raw string) (*jwt.Token, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods(jwksMethods),
		jwt.WithLeeway(JWKSLeeway),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	)
	return p.Parse(raw, func(tok *jwt.Token) (any, error) {
		return j.resolveKey(ctx, tok)
	})
}

// resolveKey finds the verification key for tok in the current key set.
// With an issuer claim and an x5c chain the leaf certificate's key is used;
// otherwise the JWK's RSA components are.
func (j *jwksVerifier) resolveKey(ctx context.Context, tok *jwt.Token) (any, error) {
	kid, _ := tok.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token has no key id")
	}

	set, err := j.provider.KeySet(ctx)
	if err != nil {
		return nil, err
	}

	keys := set.Key(kid)
	if len(keys) == 0 {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	jwk := keys[0]

	if jwk.Algorithm == "" {
		return nil, errors.New("missing alg in JWK")
	}
	if !strings.EqualFold(jwk.Algorithm, tok.Method.Alg()) {
		return nil, fmt.Errorf("JWK alg %s does not match token alg %s", jwk.Algorithm, tok.Method.Alg())
	}

	issuer, _ := tok.Claims.GetIssuer()
	if issuer != "" && len(jwk.Certificates) > 0 {
		logger.TraceCtx(ctx, "Verifying JWT with x5c key", logger.KeyValidator, j.name, logger.KeyKeyID, kid)
		return jwk.Certificates[0].PublicKey, nil
	}

	logger.TraceCtx(ctx, "Verifying JWT with RSA components", logger.KeyValidator, j.name, logger.KeyKeyID, kid)
	if jwk.IsPublic() {
		return jwk.Key, nil
	}
	return jwk.Public().Key, nil
}
