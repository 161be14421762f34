package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/extauth/cmd/extauth/cmdutil"
	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/internal/telemetry"
	"github.com/marmos91/extauth/pkg/auth"
	"github.com/marmos91/extauth/pkg/config"
	"github.com/marmos91/extauth/pkg/metrics"
	"github.com/marmos91/extauth/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP verification endpoint",
	Long: `Run the HTTP verification endpoint in the foreground.

Provider sections are reloaded when the configuration file changes, unless
server.watch_config is false. A reload that fails keeps the previous
providers active.

Examples:
  # Serve with the default config file
  extauth serve

  # Serve with a custom config file and debug logging
  EXTAUTH_LOGGING_LEVEL=DEBUG extauth serve --config /etc/extauth/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	if err := cmdutil.InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	attrs, err := cfg.Telemetry.Attributes()
	if err != nil {
		return err
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		Attributes:     attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		// ctx is cancelled by then; flushing spans needs a live one.
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
		Tags:           cfg.Telemetry.Profiling.Tags,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", logger.KeyPath, cmdutil.ConfigPath())
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "service", cfg.Telemetry.ServiceName, "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	var authMetrics *metrics.AuthMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		authMetrics = metrics.NewAuthMetrics()
		logger.Info("Metrics enabled", "path", "/metrics")
	}

	a, err := cmdutil.NewAuthenticator(cfg, auth.WithMetrics(authMetrics))
	if err != nil {
		return fmt.Errorf("failed to apply provider configuration: %w", err)
	}
	defer func() { _ = a.Close() }()

	if *cfg.Server.WatchConfig {
		path := cmdutil.ConfigPath()
		err := config.Watch(ctx, path, config.DefaultWatchDebounce, func(providers config.AuthConfig) {
			if err := a.SetConfiguration(providers); err != nil {
				logger.Error("Provider reload rejected, keeping previous configuration", logger.Err(err))
			}
		})
		if err != nil {
			return err
		}
		logger.Info("Watching configuration for provider changes", logger.KeyPath, path)
	}

	srv := server.NewServer(cfg.Server, a)
	if err := srv.Start(ctx, cfg.ShutdownTimeout); err != nil {
		logger.Error("Server error", logger.Err(err))
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
