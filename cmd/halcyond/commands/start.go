package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/halcyonline/halcyon/internal/logger"
	"github.com/halcyonline/halcyon/internal/server"
	"github.com/halcyonline/halcyon/internal/telemetry"
	"github.com/halcyonline/halcyon/pkg/config"
)

var (
	startPort      int
	startLogLevel  string
	startFilesRoot string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Halcyon server",
	Long: `Start the Halcyon server with the specified configuration.

Use --config to specify a configuration file, or it will use the
default location at $XDG_CONFIG_HOME/halcyon/config.yaml.

Examples:
  # Start with the default config location
  halcyond start

  # Start with a custom config file
  halcyond start --config /etc/halcyon/config.yaml

  # Override the control port and file root for a quick test
  halcyond start --port 6500 --files-root ./files

  # Override any setting through the environment
  HALCYON_LOGGING_LEVEL=DEBUG halcyond start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVar(&startPort, "port", 0, "Control listener port (overrides config)")
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Log level (overrides config)")
	startCmd.Flags().StringVar(&startFilesRoot, "files-root", "", "File area root (overrides config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Flag overrides beat both file and environment.
	if startPort != 0 {
		cfg.Server.Port = startPort
		cfg.Server.TransferPort = startPort + 1
	}
	if startLogLevel != "" {
		cfg.Logging.Level = startLogLevel
	}
	if startFilesRoot != "" {
		cfg.Files.Root = startFilesRoot
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "halcyond",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "halcyond",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("configuration loaded", "source", configSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop",
		"port", cfg.Server.Port, "transfer_port", cfg.Server.TransferPort)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
		logger.Info("server stopped")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
		logger.Info("server stopped")
	}

	return nil
}
