// Package config provides configuration loading and defaults for the seer
// daemon.
//
// Configuration is an optional TOML file. Missing files and missing keys fall
// back to [DefaultConfig], and command-line flags are layered on top by the
// caller.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/seer/internal/atomicfile"
	"tools.zach/dev/seer/internal/logger"
	"tools.zach/dev/seer/internal/migrate"
	"tools.zach/dev/seer/internal/paths"
)

// DefaultRESTPort is the port the query server listens on.
const DefaultRESTPort = 8000

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// REST holds query server settings.
	REST RESTConfig `toml:"rest"`
	// Notify holds service-manager socket settings.
	Notify NotifyConfig `toml:"notify"`
	// Injection holds injected message batch settings.
	Injection InjectionConfig `toml:"injection"`
	// Memory holds persisted knowledge settings.
	Memory MemoryConfig `toml:"memory"`
	// Knowledge holds perspective table settings.
	Knowledge KnowledgeConfig `toml:"knowledge"`
	// Metrics holds Prometheus exporter settings.
	Metrics MetricsConfig `toml:"metrics"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// RESTConfig holds query server settings.
type RESTConfig struct {
	// Host is the listen host; empty means all interfaces.
	Host string `toml:"host"`
	// Port is the listen port.
	Port int `toml:"port"`
	// ShutdownTimeoutSeconds bounds the graceful stop of the server.
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

// Addr returns the host:port listen address.
func (r RESTConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// NotifyConfig holds service-manager socket settings.
type NotifyConfig struct {
	// SocketFile is the notification socket path.
	SocketFile string `toml:"socket_file"`
	// Network is the socket type: "unixgram" or "unix".
	Network string `toml:"network"`
	// ConnectTimeoutSeconds is the total time spent waiting for the socket.
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`
	// PollIntervalSeconds is the wait between connection attempts.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// ConnectTimeout returns ConnectTimeoutSeconds as a duration.
func (n NotifyConfig) ConnectTimeout() time.Duration {
	return time.Duration(n.ConnectTimeoutSeconds) * time.Second
}

// PollInterval returns PollIntervalSeconds as a duration.
func (n NotifyConfig) PollInterval() time.Duration {
	return time.Duration(n.PollIntervalSeconds) * time.Second
}

// InjectionConfig holds injected message batch settings.
type InjectionConfig struct {
	// MessagesFile is the JSON batch consumed on the next Available entry.
	MessagesFile string `toml:"messages_file"`
}

// MemoryConfig holds persisted knowledge settings.
type MemoryConfig struct {
	// File is where knowledge is saved at shutdown and loaded at startup.
	File string `toml:"file"`
}

// KnowledgeConfig holds perspective table settings.
type KnowledgeConfig struct {
	// Sources are glob patterns naming extra YAML perspective files.
	Sources []string `toml:"sources"`
}

// MetricsConfig holds Prometheus exporter settings.
type MetricsConfig struct {
	// Addr is the exporter listen address; empty disables it.
	Addr string `toml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// File is an optional rotating log file written besides stdout.
	File string `toml:"file"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with the defaults the test harness
// expects.
func DefaultConfig() *Config {
	root := paths.DataDir{Root: paths.DefaultRoot}
	return &Config{
		Version: migrate.Config.CurrentVersion,
		REST: RESTConfig{
			Host:                   "",
			Port:                   DefaultRESTPort,
			ShutdownTimeoutSeconds: 5,
		},
		Notify: NotifyConfig{
			SocketFile:            root.Socket(),
			Network:               "unixgram",
			ConnectTimeoutSeconds: 30,
			PollIntervalSeconds:   2,
		},
		Injection: InjectionConfig{
			MessagesFile: paths.InjectedMessagesFile,
		},
		Memory: MemoryConfig{
			File: root.Memories(),
		},
		Knowledge: KnowledgeConfig{
			Sources: []string{},
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
		Log: LogConfig{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Example Configuration
// ///////////////////////////////////////////////

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file at path. An empty path or a
// missing file yields DefaultConfig.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)

	shouldMigrate := migrate.Config.NeedsMigration(version)
	if shouldMigrate {
		if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		data, err = migrate.Config.Upgrade(data, version)
		if err != nil {
			return nil, fmt.Errorf("migrate config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if shouldMigrate {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}

	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.REST.Port <= 0 || c.REST.Port > 65535 {
		return fmt.Errorf("rest.port must be in 1..65535, got %d", c.REST.Port)
	}

	if c.REST.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("rest.shutdown_timeout_seconds must be > 0, got %d", c.REST.ShutdownTimeoutSeconds)
	}

	if c.Notify.SocketFile == "" {
		return errors.New("notify.socket_file must not be empty")
	}

	switch c.Notify.Network {
	case "unixgram", "unix":
	default:
		return fmt.Errorf("invalid notify.network %q: must be unixgram or unix", c.Notify.Network)
	}

	if c.Notify.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("notify.connect_timeout_seconds must be > 0, got %d", c.Notify.ConnectTimeoutSeconds)
	}

	if c.Notify.PollIntervalSeconds <= 0 {
		return fmt.Errorf("notify.poll_interval_seconds must be > 0, got %d", c.Notify.PollIntervalSeconds)
	}

	if c.Memory.File == "" {
		return errors.New("memory.file must not be empty")
	}

	for _, pattern := range c.Knowledge.Sources {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid knowledge.sources pattern %q", pattern)
		}
	}

	if _, ok := logger.LookupLevel(strings.ToLower(c.Log.Level)); !ok {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	return nil
}
