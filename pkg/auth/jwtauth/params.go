package jwtauth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/auth/httpauth"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/config"
	"github.com/marmos91/extauth/pkg/metrics"
)

// SettingsKeyEntry is the reserved jwt_validators entry holding the settings
// key inherited by validators that do not set their own.
const SettingsKeyEntry = "settings_key"

type rawParams struct {
	Algo               string `mapstructure:"algo"`
	StaticKey          string `mapstructure:"static_key"`
	StaticKeyInBase64  bool   `mapstructure:"static_key_in_base64"`
	PublicKey          string `mapstructure:"public_key"`
	PrivateKey         string `mapstructure:"private_key"`
	PublicKeyPassword  string `mapstructure:"public_key_password"`
	PrivateKeyPassword string `mapstructure:"private_key_password"`

	URI       string `mapstructure:"uri"`
	RefreshMs *int64 `mapstructure:"refresh_ms"`

	StaticJWKS     string `mapstructure:"static_jwks"`
	StaticJWKSFile string `mapstructure:"static_jwks_file"`

	SettingsKey *string `mapstructure:"settings_key"`
}

// Options carries process-wide dependencies for validators.
type Options struct {
	Metrics *metrics.AuthMetrics

	// Now overrides the clock for time claims and the JWKS refresh window.
	Now func() time.Time

	// HTTPOptions are passed to the remote JWKS client.
	HTTPOptions []httpauth.Option
}

// ParseValidator builds a validator from one jwt_validators entry.
//
// An entry with "algo" is a simple validator, one with "uri" fetches a remote
// JWKS, and one with "static_jwks" or "static_jwks_file" uses a fixed key
// set. The entry's own settings_key overrides globalSettingsKey.
func ParseValidator(name string, raw any, globalSettingsKey string, opts Options) (*Validator, error) {
	cfgErr := func(key, format string, args ...any) error {
		return autherr.NewConfigError(config.SectionJWTValidators, name, key, format, args...)
	}

	raw = inlineStaticJWKS(raw)

	var rp rawParams
	if _, err := config.DecodeEntry(raw, &rp); err != nil {
		return nil, cfgErr("", "%v", err)
	}

	settingsKey := globalSettingsKey
	if rp.SettingsKey != nil {
		settingsKey = *rp.SettingsKey
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	switch {
	case config.HasKey(raw, "algo"):
		if rp.PublicKeyPassword != "" {
			logger.Debug("Ignoring public_key_password, public keys are not encrypted",
				logger.KeyValidator, name)
		}
		v, err := NewSimpleValidator(name, settingsKey, SimpleParams{
			Algo:               strings.ToLower(rp.Algo),
			StaticKey:          rp.StaticKey,
			StaticKeyInBase64:  rp.StaticKeyInBase64,
			PublicKey:          rp.PublicKey,
			PrivateKey:         rp.PrivateKey,
			PrivateKeyPassword: rp.PrivateKeyPassword,
		}, now)
		if err != nil {
			return nil, cfgErr("algo", "%v", err)
		}
		return v, nil

	case config.HasKey(raw, "uri"):
		hp, err := httpauth.ParseParams(config.SectionJWTValidators, name, raw)
		if err != nil {
			return nil, err
		}
		refresh := DefaultRefresh
		if rp.RefreshMs != nil {
			if *rp.RefreshMs < 0 {
				return nil, cfgErr("refresh_ms", "must not be negative")
			}
			refresh = time.Duration(*rp.RefreshMs) * time.Millisecond
		}

		httpOpts := append([]httpauth.Option{httpauth.WithMetrics(opts.Metrics, metrics.ProviderJWT)}, opts.HTTPOptions...)
		provider := NewRemoteKeySet(
			httpauth.NewClient(hp, httpOpts...),
			refresh,
			WithClock(now),
			WithKeySetMetrics(opts.Metrics),
		)
		return NewJWKSValidator(name, settingsKey, KindRemoteJWKS, provider, now), nil

	case config.HasKey(raw, "static_jwks") || config.HasKey(raw, "static_jwks_file"):
		if rp.StaticJWKS != "" && rp.StaticJWKSFile != "" {
			return nil, cfgErr("", "static_jwks and static_jwks_file cannot both be present")
		}

		var (
			provider *StaticKeySet
			err      error
		)
		switch {
		case rp.StaticJWKS != "":
			provider, err = NewStaticKeySet([]byte(rp.StaticJWKS))
		case rp.StaticJWKSFile != "":
			provider, err = LoadStaticKeySet(rp.StaticJWKSFile)
		default:
			return nil, cfgErr("", "static_jwks or static_jwks_file must not be empty")
		}
		if err != nil {
			return nil, cfgErr("", "%v", err)
		}
		return NewJWKSValidator(name, settingsKey, KindStaticJWKS, provider, now), nil

	default:
		return nil, cfgErr("", "one of algo, uri, static_jwks or static_jwks_file is required")
	}
}

// NewJWKSValidator builds a validator verifying RSA-signed tokens against the
// key set from provider.
func NewJWKSValidator(name, settingsKey string, kind Kind, provider KeySetProvider, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{
		name:        name,
		kind:        kind,
		settingsKey: settingsKey,
		verifier:    &jwksVerifier{name: name, provider: provider, now: now},
	}
}

// inlineStaticJWKS lets static_jwks be written as a YAML mapping instead of
// a JSON string by re-encoding it as JSON.
func inlineStaticJWKS(raw any) any {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	v, ok := m["static_jwks"]
	if !ok {
		return raw
	}
	if _, isString := v.(string); isString {
		return raw
	}

	data, err := json.Marshal(v)
	if err != nil {
		return raw
	}

	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	out["static_jwks"] = string(data)
	return out
}

// GlobalSettingsKey extracts the reserved settings_key entry from a
// jwt_validators section, if present.
func GlobalSettingsKey(entries []config.AuthEntry) string {
	for _, e := range entries {
		if e.Name == SettingsKeyEntry && e.Value != nil {
			return fmt.Sprint(e.Value)
		}
	}
	return ""
}
