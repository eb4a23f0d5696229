// Package config loads the bridge process's bootstrap configuration.
//
// This is process-level configuration only: where the config store lives,
// how to log, and whether to mirror stats to InfluxDB. The bridge's domain
// configuration — MQTT/ZeroMQ endpoints and topic mappings — lives in the
// config store (internal/bridgestore) and is loaded by the Supervisor, not
// by this package.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the bridge process.
// It is loaded from YAML; a few fields can be overridden by environment
// variables (see applyEnvOverrides).
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Bridge   BridgeConfig   `yaml:"bridge"`
}

// StoreConfig contains the SQLite-backed configuration store settings.
type StoreConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// Stats Aggregator sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// BridgeConfig contains bridge runtime tuning not tied to any one endpoint.
type BridgeConfig struct {
	// ShutdownTimeoutSeconds bounds how long Stop waits for workers to drain.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`

	// OutboundQueueSize is the default per-worker outbound channel capacity.
	OutboundQueueSize int `yaml:"outbound_queue_size"`

	// InboundQueueSize is the fan-in channel capacity shared by all workers.
	InboundQueueSize int `yaml:"inbound_queue_size"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// The environment variables read are BRIDGE_STORE_PATH,
// BRIDGE_INFLUXDB_TOKEN and BRIDGE_LOG_LEVEL.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:        "./data/bridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Bridge: BridgeConfig{
			ShutdownTimeoutSeconds: 2,
			OutboundQueueSize:      10000,
			InboundQueueSize:       10000,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration: BRIDGE_STORE_PATH, BRIDGE_INFLUXDB_TOKEN and
// BRIDGE_LOG_LEVEL. An unset or empty variable leaves its field unchanged.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRIDGE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("BRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}
	if c.Bridge.OutboundQueueSize <= 0 {
		errs = append(errs, "bridge.outbound_queue_size must be positive")
	}
	if c.Bridge.InboundQueueSize <= 0 {
		errs = append(errs, "bridge.inbound_queue_size must be positive")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ShutdownTimeout returns the worker shutdown deadline as a Duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Bridge.ShutdownTimeoutSeconds) * time.Second
}
