package config

import (
	"strings"
	"time"

	"github.com/halcyonline/halcyon/internal/bytesize"
)

// Default listener ports. The transfer listener conventionally sits one
// above the control listener.
const (
	DefaultPort         = 5500
	DefaultTransferPort = 5501
)

// ApplyDefaults fills zero values with defaults. Explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyServerDefaults(&cfg.Server)
	applyNewsDefaults(&cfg.News)
	applyLimitsDefaults(&cfg.Limits)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

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

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Name == "" {
		cfg.Name = "Halcyon"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.TransferPort == 0 {
		if cfg.Port == DefaultPort {
			cfg.TransferPort = DefaultTransferPort
		} else {
			cfg.TransferPort = cfg.Port + 1
		}
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 256
	}
	if cfg.MaxTransfers == 0 {
		cfg.MaxTransfers = 64
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.IdleAway == 0 {
		cfg.IdleAway = 10 * time.Minute
	}
}

func applyNewsDefaults(cfg *NewsConfig) {
	if cfg.Encoding == "" {
		cfg.Encoding = "macroman"
	}
}

func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.SubscriberBuffer == 0 {
		cfg.SubscriberBuffer = 64
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 128
	}
	if cfg.MaxFramePayload == 0 {
		cfg.MaxFramePayload = 16 * bytesize.MB
	}
}

// GetDefaultConfig returns a Config with every default applied. Used
// for sample files, the init command and tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
		Server:  ServerConfig{AllowGuests: true},
		Files:   FilesConfig{Root: "/var/lib/halcyon/files"},
		Accounts: AccountsConfig{
			Path: "/var/lib/halcyon/accounts",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
