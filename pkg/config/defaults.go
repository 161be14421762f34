package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//
// Provider sections carry their own defaults, applied when each entry is
// parsed by the authenticator.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyServerDefaults(&cfg.Server)
	applyCacheDefaults(&cfg.Cache)
	applyShutdownTimeoutDefaults(cfg)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "extauth"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyServerDefaults sets verification endpoint defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8480"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.WatchConfig == nil {
		watch := true
		cfg.WatchConfig = &watch
	}
}

// applyCacheDefaults sets verification cache defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.AccessTokenEntries == 0 {
		cfg.AccessTokenEntries = 10000
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// GetSampleConfig returns the default configuration plus commented-out style
// example provider sections, used by "extauth config init".
func GetSampleConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Auth.Add(SectionLDAPServers, AuthEntry{
		Name: "corp_ldap",
		Value: map[string]any{
			"host":                  "ldap.example.com",
			"port":                  636,
			"auth_dn_prefix":        "uid=",
			"auth_dn_suffix":        ",ou=users,dc=example,dc=com",
			"enable_tls":            "yes",
			"tls_require_cert":      "demand",
			"verification_cooldown": 300,
		},
	})
	cfg.Auth.Add(SectionJWTValidators, AuthEntry{
		Name: "corp_sso",
		Value: map[string]any{
			"uri":        "https://sso.example.com/.well-known/jwks.json",
			"refresh_ms": 300000,
		},
	})
	return cfg
}
