package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the extauth configuration.
//
// This structure captures the static aspects of the process:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Server settings (listen address, shutdown timeout, metrics)
//   - Authentication provider sections (ldap_servers, kerberos,
//     http_authentication_servers, jwt_validators, access_token_processors)
//
// Provider sections are not decoded into typed structs here. They are kept
// as ordered raw entries so that the authenticator can parse each entry on
// its own and skip broken ones without failing the whole reload.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (EXTAUTH_*), except for provider sections
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Server configures the HTTP verification endpoint
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Cache bounds the in-memory verification caches
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Auth holds the provider sections in file order.
	Auth AuthConfig `mapstructure:"-" yaml:"-"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: TRACE, DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=TRACE DEBUG INFO WARN ERROR trace debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ServiceName identifies this instance to the trace and profile backends
	// Default: "extauth"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// ResourceAttributes are "key=value" pairs added to every exported
	// span's resource, e.g. "deployment.environment=prod". A list rather
	// than a map because attribute keys contain dots.
	ResourceAttributes []string `mapstructure:"resource_attributes" validate:"dive,required" yaml:"resource_attributes"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection
	// Default: true
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// Attributes parses ResourceAttributes. Later duplicates win.
func (c TelemetryConfig) Attributes() (map[string]string, error) {
	attrs := make(map[string]string, len(c.ResourceAttributes))
	for _, kv := range c.ResourceAttributes {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("telemetry.resource_attributes: %q is not key=value", kv)
		}
		attrs[k] = strings.TrimSpace(v)
	}
	return attrs, nil
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`

	// Tags are attached to every profile; "version" defaults to the build version
	Tags map[string]string `mapstructure:"tags" yaml:"tags"`
}

// ServerConfig configures the HTTP verification endpoint started by
// "extauth serve".
type ServerConfig struct {
	// Listen is the address the endpoint binds to
	// Default: "127.0.0.1:8480"
	Listen string `mapstructure:"listen" validate:"required,hostname_port" yaml:"listen"`

	// ReadTimeout bounds reading one request, headers included
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"gte=0" yaml:"read_timeout"`

	// WriteTimeout bounds a whole verification round trip
	// Default: 30s
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0" yaml:"write_timeout"`

	// WatchConfig reloads provider sections when the config file changes
	// Default: true
	WatchConfig *bool `mapstructure:"watch_config" yaml:"watch_config,omitempty"`
}

// CacheConfig bounds the verification caches.
type CacheConfig struct {
	// AccessTokenEntries is the number of resolved access tokens kept
	// Default: 10000
	AccessTokenEntries int `mapstructure:"access_token_entries" validate:"gte=0" yaml:"access_token_entries"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served on /metrics
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Provider sections are split off before viper sees the document: they are
// parsed into ordered AuthSections, duplicates included, so that duplicate
// detection happens in the authenticator the same way for files and for
// programmatic reloads.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v)

	path, data, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	if data == nil {
		return GetDefaultConfig(), nil
	}

	auth, rest, err := splitAuthSections(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(rest)); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Auth = auth

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  extauth config init\n\n"+
				"Or specify a custom config file:\n"+
				"  extauth <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  extauth config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration, provider sections included, to path
// in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	// Provider sections carry secrets (bind passwords, HMAC keys).
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Marshal renders cfg as YAML, provider sections last and in order.
func Marshal(cfg *Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := appendAuthSections(&doc, cfg.Auth); err != nil {
		return nil, fmt.Errorf("failed to marshal provider sections: %w", err)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Document returns cfg as a generic tree, for JSON output. It fails when a
// provider section is duplicated, which a plain map cannot hold.
func Document(cfg *Config) (map[string]any, error) {
	data, err := Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert config: %w", err)
	}
	return doc, nil
}

// setupViper configures viper with environment variable overrides.
func setupViper(v *viper.Viper) {
	// Example: EXTAUTH_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("EXTAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// readConfigFile locates and reads the configuration file. It returns nil
// data when no file exists, which means defaults apply.
func readConfigFile(configPath string) (string, []byte, error) {
	path := configPath
	if path == "" {
		path = GetDefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, nil, nil
		}
		return path, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return path, data, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "extauth")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "extauth")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
