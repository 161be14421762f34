// Package httpauth verifies user name and password pairs against an HTTP
// endpoint that speaks Basic authentication, and provides the retrying HTTP
// client shared with the remote JWKS fetcher.
package httpauth

import (
	"net/url"
	"time"

	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/config"
)

// Default transport settings for an authentication server entry.
const (
	DefaultConnectionTimeout   = 1000 * time.Millisecond
	DefaultReceiveTimeout      = 1000 * time.Millisecond
	DefaultSendTimeout         = 1000 * time.Millisecond
	DefaultMaxTries            = 3
	DefaultRetryInitialBackoff = 50 * time.Millisecond
	DefaultRetryMaxBackoff     = 1000 * time.Millisecond
)

// Params describes one upstream HTTP endpoint.
type Params struct {
	URI string

	ConnectionTimeout time.Duration
	ReceiveTimeout    time.Duration
	SendTimeout       time.Duration

	// MaxTries counts the first attempt. Values below 1 mean one attempt.
	MaxTries            int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
}

// rawParams mirrors the configuration keys. Pointers distinguish an absent
// key from an explicit zero.
type rawParams struct {
	URI                   string `mapstructure:"uri"`
	ConnectionTimeoutMs   *int64 `mapstructure:"connection_timeout_ms"`
	ReceiveTimeoutMs      *int64 `mapstructure:"receive_timeout_ms"`
	SendTimeoutMs         *int64 `mapstructure:"send_timeout_ms"`
	MaxTries              *int   `mapstructure:"max_tries"`
	RetryInitialBackoffMs *int64 `mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     *int64 `mapstructure:"retry_max_backoff_ms"`
}

// DefaultParams returns Params for uri with every default applied.
func DefaultParams(uri string) Params {
	return Params{
		URI:                 uri,
		ConnectionTimeout:   DefaultConnectionTimeout,
		ReceiveTimeout:      DefaultReceiveTimeout,
		SendTimeout:         DefaultSendTimeout,
		MaxTries:            DefaultMaxTries,
		RetryInitialBackoff: DefaultRetryInitialBackoff,
		RetryMaxBackoff:     DefaultRetryMaxBackoff,
	}
}

// ParseParams decodes one http_authentication_servers entry. Keys other
// than the transport ones are ignored so that the JWKS validator can reuse
// this on its own entries.
func ParseParams(section, name string, raw any) (Params, error) {
	var rp rawParams
	if _, err := config.DecodeEntry(raw, &rp); err != nil {
		return Params{}, autherr.NewConfigError(section, name, "", "%v", err)
	}

	if rp.URI == "" {
		return Params{}, autherr.NewConfigError(section, name, "uri", "is required")
	}
	u, err := url.Parse(rp.URI)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Params{}, autherr.NewConfigError(section, name, "uri", "%q is not an http(s) URL", rp.URI)
	}

	p := DefaultParams(rp.URI)

	msField := func(key string, v *int64, dst *time.Duration) error {
		if v == nil {
			return nil
		}
		if *v < 0 {
			return autherr.NewConfigError(section, name, key, "must not be negative")
		}
		*dst = time.Duration(*v) * time.Millisecond
		return nil
	}

	for _, f := range []struct {
		key string
		v   *int64
		dst *time.Duration
	}{
		{"connection_timeout_ms", rp.ConnectionTimeoutMs, &p.ConnectionTimeout},
		{"receive_timeout_ms", rp.ReceiveTimeoutMs, &p.ReceiveTimeout},
		{"send_timeout_ms", rp.SendTimeoutMs, &p.SendTimeout},
		{"retry_initial_backoff_ms", rp.RetryInitialBackoffMs, &p.RetryInitialBackoff},
		{"retry_max_backoff_ms", rp.RetryMaxBackoffMs, &p.RetryMaxBackoff},
	} {
		if err := msField(f.key, f.v, f.dst); err != nil {
			return Params{}, err
		}
	}

	if rp.MaxTries != nil {
		if *rp.MaxTries < 1 {
			return Params{}, autherr.NewConfigError(section, name, "max_tries", "must be at least 1")
		}
		p.MaxTries = *rp.MaxTries
	}

	return p, nil
}
