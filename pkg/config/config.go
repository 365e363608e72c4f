// Package config loads, validates and persists the halcyond
// configuration: YAML on disk, HALCYON_ environment overrides, defaults
// for everything else.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/halcyonline/halcyon/internal/bytesize"
)

// Config is the full halcyond configuration tree.
//
// Sources, highest precedence first: environment variables (HALCYON_*),
// the configuration file, defaults.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Server configures the control and transfer listeners.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Files configures the shared file area.
	Files FilesConfig `mapstructure:"files" yaml:"files"`

	// Accounts configures the account directory.
	Accounts AccountsConfig `mapstructure:"accounts" yaml:"accounts"`

	// News configures the message board.
	News NewsConfig `mapstructure:"news" yaml:"news"`

	// Limits holds buffer and payload bounds.
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled turns tracing on. Off by default.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling rate, 0.0 to 1.0.
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling configures Pyroscope continuous profiling.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled turns profiling on. Off by default.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes selects which profiles to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for /metrics.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ServerConfig configures the two listeners and session policy.
type ServerConfig struct {
	// Name is the advertised server name.
	Name string `mapstructure:"name" yaml:"name"`

	// BindAddress is the interface to bind; empty binds all.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`

	// Port is the control listener port.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// TransferPort is the transfer listener port. Defaults to Port+1.
	TransferPort int `mapstructure:"transfer_port" validate:"omitempty,min=1,max=65535" yaml:"transfer_port"`

	// MaxConnections bounds concurrent control sessions. 0 is unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// MaxTransfers bounds concurrent transfer connections. 0 is unlimited.
	MaxTransfers int `mapstructure:"max_transfers" validate:"gte=0" yaml:"max_transfers"`

	// ReadTimeout is the per-frame header read deadline. 0 disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// AllowGuests lets empty credentials log in as the guest account.
	AllowGuests bool `mapstructure:"allow_guests" yaml:"allow_guests"`

	// AgreementPath points at an optional agreement text shown after
	// login. Empty disables the agreement.
	AgreementPath string `mapstructure:"agreement_path" yaml:"agreement_path,omitempty"`

	// IdleAway marks sessions away after this much inactivity. 0
	// disables the idle sweeper.
	IdleAway time.Duration `mapstructure:"idle_away" yaml:"idle_away"`
}

// FilesConfig configures the shared file area.
type FilesConfig struct {
	// Root is the file area root directory. Must exist at startup.
	Root string `mapstructure:"root" validate:"required" yaml:"root"`
}

// AccountsConfig configures the account directory.
type AccountsConfig struct {
	// Path is the directory of per-login TOML account files.
	Path string `mapstructure:"path" validate:"required" yaml:"path"`
}

// NewsConfig configures the message board.
type NewsConfig struct {
	// Path is an optional seed file read once at startup. Never written.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// Encoding is the text codec for news and client info dumps:
	// macroman, latin1 or ascii.
	Encoding string `mapstructure:"encoding" validate:"required,oneof=macroman latin1 ascii" yaml:"encoding"`
}

// LimitsConfig holds buffer and payload bounds.
type LimitsConfig struct {
	// SubscriberBuffer is the per-session notification buffer.
	SubscriberBuffer int `mapstructure:"subscriber_buffer" validate:"gte=0" yaml:"subscriber_buffer"`

	// QueueDepth is the registry command queue depth.
	QueueDepth int `mapstructure:"queue_depth" validate:"gte=0" yaml:"queue_depth"`

	// MaxFramePayload rejects larger frame bodies at the reader.
	// Supports human-readable sizes like "16MB".
	MaxFramePayload bytesize.ByteSize `mapstructure:"max_frame_payload" yaml:"max_frame_payload"`
}

// configKeys lists every leaf key, for environment variable binding.
var configKeys = []string{
	"logging.level", "logging.format", "logging.output",
	"telemetry.enabled", "telemetry.endpoint", "telemetry.insecure", "telemetry.sample_rate",
	"telemetry.profiling.enabled", "telemetry.profiling.endpoint", "telemetry.profiling.profile_types",
	"metrics.enabled", "metrics.port",
	"server.name", "server.bind_address", "server.port", "server.transfer_port",
	"server.max_connections", "server.max_transfers",
	"server.read_timeout", "server.write_timeout", "server.shutdown_timeout",
	"server.allow_guests", "server.agreement_path", "server.idle_away",
	"files.root", "accounts.path",
	"news.path", "news.encoding",
	"limits.subscriber_buffer", "limits.queue_depth", "limits.max_frame_payload",
}

// Load loads configuration from file, environment and defaults.
//
// The file is resolved in order: the explicit path, $HALCYON_CONFIG,
// $XDG_CONFIG_HOME/halcyon/config.yaml, /etc/halcyon/config.yaml. A
// missing file is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration and turns a missing file into an error
// with instructions instead of silently running on defaults.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("HALCYON_CONFIG")
	}
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at %s\n\n"+
				"Initialize one first:\n"+
				"  halcyond init\n\n"+
				"Or point at an existing file:\n"+
				"  halcyond <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration as YAML with a short header.
// Restrictive permissions: account paths and agreement locations are
// operational detail, not secrets, but there is no reason to share them.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := "# halcyond configuration\n# Generated by halcyond init. Edit freely; unset values fall back to defaults.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// HALCYON_SERVER_PORT=5500 style overrides.
	v.SetEnvPrefix("HALCYON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true must be viper defaults: after
	// unmarshal an absent key and an explicit false look the same.
	v.SetDefault("server.allow_guests", true)
	v.SetDefault("metrics.enabled", true)

	// AutomaticEnv alone does not surface env values through Unmarshal
	// for keys the file never mentions; bind them explicitly.
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}

	if configPath == "" {
		configPath = os.Getenv("HALCYON_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(getConfigDir())
	v.AddConfigPath("/etc/halcyon")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the resolved file. A missing file reports found
// false without error.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// so the file can say "16MB" or a plain byte count.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML numbers often arrive as float64.
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration ("30s", "5m").
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
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

// getConfigDir returns $XDG_CONFIG_HOME/halcyon, falling back to
// ~/.config/halcyon.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "halcyon")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "halcyon")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks for a config file at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory (for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
