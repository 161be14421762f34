package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default log output 'stderr', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_Cache(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Cache.AccessTokenEntries != 10000 {
		t.Errorf("Expected default access token cache size 10000, got %d", cfg.Cache.AccessTokenEntries)
	}

	cfg.Cache.AccessTokenEntries = -1
	if err := Validate(cfg); err == nil {
		t.Error("Expected a negative cache size to fail validation")
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.Listen != "127.0.0.1:8480" {
		t.Errorf("Expected default listen address '127.0.0.1:8480', got %q", cfg.Server.Listen)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("Expected default write timeout 30s, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Server.WatchConfig == nil || !*cfg.Server.WatchConfig {
		t.Errorf("Expected config watching enabled by default")
	}
}

func TestApplyDefaults_Telemetry(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Expected default telemetry endpoint 'localhost:4317', got %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("Expected default sample rate 1.0, got %v", cfg.Telemetry.SampleRate)
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		t.Errorf("Expected default profile types to be set")
	}
	if cfg.Telemetry.ServiceName != "extauth" {
		t.Errorf("Expected default service name 'extauth', got %q", cfg.Telemetry.ServiceName)
	}

	cfg = &Config{Telemetry: TelemetryConfig{ServiceName: "auth-gw-eu"}}
	ApplyDefaults(cfg)
	if cfg.Telemetry.ServiceName != "auth-gw-eu" {
		t.Errorf("Expected explicit service name to be kept, got %q", cfg.Telemetry.ServiceName)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	watch := false
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "json",
			Output: "/var/log/extauth.log",
		},
		Server: ServerConfig{
			Listen:      "0.0.0.0:9000",
			ReadTimeout: 3 * time.Second,
			WatchConfig: &watch,
		},
		ShutdownTimeout: 5 * time.Second,
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected log level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected log format 'json' preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/extauth.log" {
		t.Errorf("Expected log output preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" {
		t.Errorf("Expected listen address preserved, got %q", cfg.Server.Listen)
	}
	if cfg.Server.ReadTimeout != 3*time.Second {
		t.Errorf("Expected read timeout preserved, got %v", cfg.Server.ReadTimeout)
	}
	if *cfg.Server.WatchConfig {
		t.Errorf("Expected explicit watch_config=false preserved")
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout preserved, got %v", cfg.ShutdownTimeout)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should be valid, got error: %v", err)
	}
}

func TestGetSampleConfig_HasProviders(t *testing.T) {
	cfg := GetSampleConfig()

	if err := Validate(cfg); err != nil {
		t.Fatalf("Sample config should be valid, got error: %v", err)
	}
	if cfg.Auth.Count(SectionLDAPServers) != 1 {
		t.Errorf("Expected one ldap_servers section in sample config")
	}
	if cfg.Auth.Count(SectionJWTValidators) != 1 {
		t.Errorf("Expected one jwt_validators section in sample config")
	}
}
