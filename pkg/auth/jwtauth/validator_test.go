package jwtauth

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/settings"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func baseClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"iat": testNow.Add(-time.Minute).Unix(),
		"exp": testNow.Add(time.Hour).Unix(),
	}
}

func pemPublic(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func pemPrivate(t *testing.T, priv any) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func signHS(t *testing.T, method jwt.SigningMethod, key string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return tok
}

func TestSimpleValidator_HMACRoundTrip(t *testing.T) {
	v, err := NewSimpleValidator("hmac", "", SimpleParams{Algo: "hs256", StaticKey: "k1"}, fixedClock)
	require.NoError(t, err)

	token, err := v.Sign(baseClaims("alice"))
	require.NoError(t, err)

	res, ok := v.Validate(t.Context(), "", token)
	require.True(t, ok)
	assert.Equal(t, "alice", res.UserName)
	assert.Equal(t, "alice", res.Claims["sub"])
}

func TestSimpleValidator_Rejects(t *testing.T) {
	v, err := NewSimpleValidator("hmac", "", SimpleParams{Algo: "hs256", StaticKey: "k1"}, fixedClock)
	require.NoError(t, err)

	expired := baseClaims("alice")
	expired["exp"] = testNow.Add(-time.Second).Unix()

	future := baseClaims("alice")
	future["nbf"] = testNow.Add(time.Minute).Unix()

	noSubject := baseClaims("")
	delete(noSubject, "sub")

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", signHS(t, jwt.SigningMethodHS256, "k2", baseClaims("alice"))},
		{"wrong algorithm", signHS(t, jwt.SigningMethodHS384, "k1", baseClaims("alice"))},
		{"expired", signHS(t, jwt.SigningMethodHS256, "k1", expired)},
		{"not yet valid", signHS(t, jwt.SigningMethodHS256, "k1", future)},
		{"no subject", signHS(t, jwt.SigningMethodHS256, "k1", noSubject)},
		{"garbage", "not.a.jwt"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := v.Validate(t.Context(), "", tt.token)
			assert.False(t, ok)
			assert.Nil(t, res)
		})
	}
}

func TestSimpleValidator_Base64Key(t *testing.T) {
	raw := "\x00\x01binary-key"
	v, err := NewSimpleValidator("b64", "", SimpleParams{
		Algo:              "hs512",
		StaticKey:         base64.StdEncoding.EncodeToString([]byte(raw)),
		StaticKeyInBase64: true,
	}, fixedClock)
	require.NoError(t, err)

	_, ok := v.Validate(t.Context(), "", signHS(t, jwt.SigningMethodHS512, raw, baseClaims("bob")))
	assert.True(t, ok)
}

func TestSimpleValidator_ClaimsPredicate(t *testing.T) {
	v, err := NewSimpleValidator("hmac", "", SimpleParams{Algo: "hs256", StaticKey: "k1"}, fixedClock)
	require.NoError(t, err)

	claims := baseClaims("alice")
	claims["groups"] = []any{"dev", "ops"}
	claims["tenant"] = map[string]any{"id": 7}
	token := signHS(t, jwt.SigningMethodHS256, "k1", claims)

	_, ok := v.Validate(t.Context(), `{"groups": ["ops"], "tenant": {"id": 7}}`, token)
	assert.True(t, ok)

	_, ok = v.Validate(t.Context(), `{"groups": ["admin"]}`, token)
	assert.False(t, ok)

	_, ok = v.Validate(t.Context(), `["not an object"]`, token)
	assert.False(t, ok)
}

func TestSimpleValidator_SettingsKey(t *testing.T) {
	v, err := NewSimpleValidator("hmac", "profile", SimpleParams{Algo: "hs256", StaticKey: "k1"}, fixedClock)
	require.NoError(t, err)

	claims := baseClaims("alice")
	claims["profile"] = map[string]any{"max_threads": 4, "limits": map[string]any{"ratio": 0.5}}
	res, ok := v.Validate(t.Context(), "", signHS(t, jwt.SigningMethodHS256, "k1", claims))
	require.True(t, ok)
	assert.Equal(t, settings.Changes{
		{Name: "limits.ratio", Value: 0.5},
		{Name: "max_threads", Value: int64(4)},
	}, res.Settings)

	res, ok = v.Validate(t.Context(), "", signHS(t, jwt.SigningMethodHS256, "k1", baseClaims("alice")))
	require.True(t, ok)
	assert.Empty(t, res.Settings)
}

func TestSimpleValidator_NoneAcceptsAnySignature(t *testing.T) {
	v, err := NewSimpleValidator("open", "", SimpleParams{Algo: "none"}, fixedClock)
	require.NoError(t, err)

	res, ok := v.Validate(t.Context(), "", signHS(t, jwt.SigningMethodHS256, "unrelated", baseClaims("carol")))
	require.True(t, ok)
	assert.Equal(t, "carol", res.UserName)

	unsigned, err := v.Sign(baseClaims("dave"))
	require.NoError(t, err)
	res, ok = v.Validate(t.Context(), "", unsigned)
	require.True(t, ok)
	assert.Equal(t, "dave", res.UserName)

	expired := baseClaims("carol")
	expired["exp"] = testNow.Add(-time.Hour).Unix()
	_, ok = v.Validate(t.Context(), "", signHS(t, jwt.SigningMethodHS256, "x", expired))
	assert.False(t, ok)
}

func TestSimpleValidator_AsymmetricAlgorithms(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		algo string
		pub  any
		priv any
	}{
		{"rs256", &rsaKey.PublicKey, rsaKey},
		{"ps384", &rsaKey.PublicKey, rsaKey},
		{"es256", &ecKey.PublicKey, ecKey},
		{"ed25519", edPub, edPriv},
	}

	for _, tt := range tests {
		t.Run(tt.algo, func(t *testing.T) {
			v, err := NewSimpleValidator(tt.algo, "", SimpleParams{
				Algo:       tt.algo,
				PublicKey:  pemPublic(t, tt.pub),
				PrivateKey: pemPrivate(t, tt.priv),
			}, fixedClock)
			require.NoError(t, err)

			token, err := v.Sign(baseClaims("erin"))
			require.NoError(t, err)

			res, ok := v.Validate(t.Context(), "", token)
			require.True(t, ok)
			assert.Equal(t, "erin", res.UserName)
		})
	}
}

func TestSimpleValidator_PublicKeyOnlyCannotSign(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v, err := NewSimpleValidator("rs", "", SimpleParams{Algo: "rs256", PublicKey: pemPublic(t, &key.PublicKey)}, fixedClock)
	require.NoError(t, err)

	_, err = v.Sign(baseClaims("x"))
	assert.True(t, errors.Is(err, ErrCannotSign))
}

func TestSimpleValidator_ConfigErrors(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name   string
		params SimpleParams
	}{
		{"unknown algorithm", SimpleParams{Algo: "hs1024", StaticKey: "k"}},
		{"es256k unsupported", SimpleParams{Algo: "es256k", PublicKey: "x"}},
		{"ed448 unsupported", SimpleParams{Algo: "ed448", PublicKey: "x"}},
		{"hmac without key", SimpleParams{Algo: "hs256"}},
		{"rsa without public key", SimpleParams{Algo: "rs256"}},
		{"bad pem", SimpleParams{Algo: "rs256", PublicKey: "-----BEGIN nonsense"}},
		{"bad base64", SimpleParams{Algo: "hs256", StaticKey: "%%%", StaticKeyInBase64: true}},
		{"mismatched key pair", SimpleParams{
			Algo:       "rs256",
			PublicKey:  pemPublic(t, &key.PublicKey),
			PrivateKey: pemPrivate(t, other),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSimpleValidator("v", "", tt.params, fixedClock)
			assert.Error(t, err)
		})
	}
}

func TestParseValidator_ConfigErrorsMatchErrConfig(t *testing.T) {
	_, err := ParseValidator("v", map[string]any{"algo": "es256k", "public_key": "x"}, "", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, autherr.ErrConfig))
}
