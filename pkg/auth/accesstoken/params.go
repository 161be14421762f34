package accesstoken

import (
	"maps"
	"regexp"
	"strings"
	"time"

	"github.com/marmos91/extauth/pkg/auth/httpauth"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/config"
	"github.com/marmos91/extauth/pkg/metrics"
)

// ProviderGoogle is the only provider currently accepted.
const ProviderGoogle = "google"

type rawParams struct {
	Provider                  string `mapstructure:"provider"`
	EmailFilter               string `mapstructure:"email_filter"`
	CacheInvalidationInterval *int64 `mapstructure:"cache_invalidation_interval"`
	TokenInfoURI              string `mapstructure:"token_info_uri"`
	UserInfoURI               string `mapstructure:"user_info_uri"`
}

// Options carries process-wide dependencies for processors.
type Options struct {
	Metrics     *metrics.AuthMetrics
	HTTPOptions []httpauth.Option
}

// ParseProcessor builds a processor from one access_token_processors entry.
//
// Besides provider, email_filter and cache_invalidation_interval (minutes),
// an entry accepts token_info_uri and user_info_uri to point at a proxy,
// and the HTTP timeout and retry keys of http_authentication_servers.
func ParseProcessor(name string, raw any, opts Options) (Processor, error) {
	section := config.SectionAccessTokenProcessors
	cfgErr := func(key, format string, args ...any) error {
		return autherr.NewConfigError(section, name, key, format, args...)
	}

	var rp rawParams
	if _, err := config.DecodeEntry(raw, &rp); err != nil {
		return nil, cfgErr("", "%v", err)
	}

	if rp.Provider == "" {
		return nil, cfgErr("provider", "provider name must be specified")
	}
	if strings.ToLower(rp.Provider) != ProviderGoogle {
		return nil, cfgErr("provider", "unsupported provider %q", rp.Provider)
	}

	interval := DefaultCacheInvalidationInterval
	if rp.CacheInvalidationInterval != nil {
		if *rp.CacheInvalidationInterval < 0 {
			return nil, cfgErr("cache_invalidation_interval", "must not be negative")
		}
		interval = time.Duration(*rp.CacheInvalidationInterval) * time.Minute
	}

	var filter *regexp.Regexp
	if rp.EmailFilter != "" {
		re, err := regexp.Compile(`^(?:` + rp.EmailFilter + `)$`)
		if err != nil {
			return nil, cfgErr("email_filter", "invalid regex: %v", err)
		}
		filter = re
	}

	tokenInfoParams, err := httpauth.ParseParams(section, name, withURI(raw, orDefault(rp.TokenInfoURI, GoogleTokenInfoURI)))
	if err != nil {
		return nil, err
	}
	userInfoParams, err := httpauth.ParseParams(section, name, withURI(raw, orDefault(rp.UserInfoURI, GoogleUserInfoURI)))
	if err != nil {
		return nil, err
	}

	clientOpts := append([]httpauth.Option{httpauth.WithMetrics(opts.Metrics, metrics.ProviderAccessToken)}, opts.HTTPOptions...)
	return NewGoogleProcessor(name, interval, filter,
		httpauth.NewClient(tokenInfoParams, clientOpts...),
		httpauth.NewClient(userInfoParams, clientOpts...),
	), nil
}

// withURI returns a copy of raw with its uri key set.
func withURI(raw any, uri string) map[string]any {
	out := map[string]any{}
	if m, ok := raw.(map[string]any); ok {
		out = maps.Clone(m)
	}
	out["uri"] = uri
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
