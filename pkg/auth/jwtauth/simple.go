package jwtauth

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/extauth/internal/logger"
)

type keyFamily int

const (
	familyNone keyFamily = iota
	familyHMAC
	familyRSA
	familyECDSA
	familyEdDSA
)

type algorithm struct {
	method jwt.SigningMethod
	family keyFamily
}

// algorithms maps configured algorithm names to signing methods.
var algorithms = map[string]algorithm{
	"none":    {jwt.SigningMethodNone, familyNone},
	"hs256":   {jwt.SigningMethodHS256, familyHMAC},
	"hs384":   {jwt.SigningMethodHS384, familyHMAC},
	"hs512":   {jwt.SigningMethodHS512, familyHMAC},
	"rs256":   {jwt.SigningMethodRS256, familyRSA},
	"rs384":   {jwt.SigningMethodRS384, familyRSA},
	"rs512":   {jwt.SigningMethodRS512, familyRSA},
	"ps256":   {jwt.SigningMethodPS256, familyRSA},
	"ps384":   {jwt.SigningMethodPS384, familyRSA},
	"ps512":   {jwt.SigningMethodPS512, familyRSA},
	"es256":   {jwt.SigningMethodES256, familyECDSA},
	"es384":   {jwt.SigningMethodES384, familyECDSA},
	"es512":   {jwt.SigningMethodES512, familyECDSA},
	"ed25519": {jwt.SigningMethodEdDSA, familyEdDSA},
}

// unsupportedAlgorithms are valid JOSE algorithms with no verifier here.
var unsupportedAlgorithms = map[string]bool{
	"es256k": true,
	"ed448":  true,
}

// SimpleParams configures a validator with a fixed algorithm and key.
type SimpleParams struct {
	Algo               string
	StaticKey          string
	StaticKeyInBase64  bool
	PublicKey          string
	PrivateKey         string
	PrivateKeyPassword string
}

// simpleKeys is the key material built from SimpleParams.
type simpleKeys struct {
	alg     algorithm
	verify  any
	signKey any
}

func buildSimpleKeys(p SimpleParams) (*simpleKeys, error) {
	if unsupportedAlgorithms[p.Algo] {
		return nil, fmt.Errorf("algorithm %s is not supported", p.Algo)
	}
	alg, ok := algorithms[p.Algo]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %s", p.Algo)
	}

	keys := &simpleKeys{alg: alg}

	switch alg.family {
	case familyNone:
		return keys, nil

	case familyHMAC:
		if p.StaticKey == "" {
			return nil, fmt.Errorf("static_key parameter required for %s", p.Algo)
		}
		key := []byte(p.StaticKey)
		if p.StaticKeyInBase64 {
			decoded, err := base64.StdEncoding.DecodeString(p.StaticKey)
			if err != nil {
				return nil, fmt.Errorf("static_key is not valid base64: %w", err)
			}
			key = decoded
		}
		keys.verify = key
		keys.signKey = key
		return keys, nil
	}

	if p.PublicKey == "" {
		return nil, fmt.Errorf("public_key parameter required for %s", p.Algo)
	}

	var err error
	switch alg.family {
	case familyRSA:
		keys.verify, err = jwt.ParseRSAPublicKeyFromPEM([]byte(p.PublicKey))
	case familyECDSA:
		keys.verify, err = jwt.ParseECPublicKeyFromPEM([]byte(p.PublicKey))
	case familyEdDSA:
		keys.verify, err = jwt.ParseEdPublicKeyFromPEM([]byte(p.PublicKey))
	}
	if err != nil {
		return nil, fmt.Errorf("invalid public_key: %w", err)
	}

	if p.PrivateKey != "" {
		keys.signKey, err = parsePrivateKey(alg.family, p.PrivateKey, p.PrivateKeyPassword)
		if err != nil {
			return nil, fmt.Errorf("invalid private_key: %w", err)
		}
		if !keyPairMatches(keys.verify, keys.signKey) {
			return nil, errors.New("private_key does not match public_key")
		}
	}

	return keys, nil
}

func parsePrivateKey(family keyFamily, pem, password string) (any, error) {
	switch family {
	case familyRSA:
		if password != "" {
			//nolint:staticcheck // encrypted PEM is legacy but still configurable
			return jwt.ParseRSAPrivateKeyFromPEMWithPassword([]byte(pem), password)
		}
		return jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
	case familyECDSA:
		if password != "" {
			return nil, errors.New("encrypted ECDSA keys are not supported")
		}
		return jwt.ParseECPrivateKeyFromPEM([]byte(pem))
	case familyEdDSA:
		if password != "" {
			return nil, errors.New("encrypted Ed25519 keys are not supported")
		}
		return jwt.ParseEdPrivateKeyFromPEM([]byte(pem))
	default:
		return nil, errors.New("algorithm takes no private key")
	}
}

func keyPairMatches(pub, priv any) bool {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		p, ok := pub.(*rsa.PublicKey)
		return ok && k.PublicKey.Equal(p)
	case *ecdsa.PrivateKey:
		p, ok := pub.(*ecdsa.PublicKey)
		return ok && k.PublicKey.Equal(p)
	case ed25519.PrivateKey:
		p, ok := pub.(ed25519.PublicKey)
		return ok && p.Equal(k.Public())
	default:
		return false
	}
}

// signer issues tokens with a validator's own key material. Only validators
// configured with a private key (or an HMAC key) can sign.
type signer struct {
	method jwt.SigningMethod
	key    any
}

func (s *signer) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(s.method, claims).SignedString(s.key)
}

// NewSimpleValidator builds a validator with a fixed algorithm and key.
func NewSimpleValidator(name, settingsKey string, p SimpleParams, now func() time.Time) (*Validator, error) {
	keys, err := buildSimpleKeys(p)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}

	v := &Validator{
		name:        name,
		kind:        KindSimple,
		settingsKey: settingsKey,
	}

	if keys.alg.family == familyNone {
		logger.Warn("JWT validator accepts unsigned tokens",
			logger.KeyValidator, name, logger.KeyAlgorithm, p.Algo)
		v.verifier = &unsignedVerifier{now: now}
		v.signer = &signer{method: jwt.SigningMethodNone, key: jwt.UnsafeAllowNoneSignatureType}
		return v, nil
	}

	v.verifier = &keyVerifier{method: keys.alg.method, key: keys.verify, now: now}
	if keys.signKey != nil {
		v.signer = &signer{method: keys.alg.method, key: keys.signKey}
	}
	return v, nil
}

// ErrCannotSign is returned by Sign when the validator has no signing key.
var ErrCannotSign = errors.New("validator has no signing key")

// Sign issues a token for claims with the validator's key. It backs the
// jwt sign command and local testing.
func (v *Validator) Sign(claims jwt.Claims) (string, error) {
	if v.signer == nil {
		return "", ErrCannotSign
	}
	return v.signer.sign(claims)
}
