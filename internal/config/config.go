// Package config loads the reflow.yaml configuration with REFLOW_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default configuration file name.
	ConfigFileName = "reflow.yaml"

	// DefaultAddress is the default sync server listen address.
	DefaultAddress = ":8420"
)

// Config is the complete reflow.yaml configuration. Environment
// variables override file values.
type Config struct {
	// Address is the sync server listen address.
	Address string `yaml:"address" env:"REFLOW_ADDRESS"`

	// ModelFile is the YAML document the model is built from.
	ModelFile string `yaml:"model_file" env:"REFLOW_MODEL_FILE"`

	// HistoryDB is the SQLite change journal path. Empty disables the
	// journal.
	HistoryDB string `yaml:"history_db" env:"REFLOW_HISTORY_DB"`

	// Snapshots configures snapshot persistence.
	Snapshots SnapshotsConfig `yaml:"snapshots"`

	// UpdateLimit caps watcher updates per write. 0 means unlimited.
	UpdateLimit int `yaml:"update_limit" env:"REFLOW_UPDATE_LIMIT"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"REFLOW_LOG_LEVEL"`

	// Metrics enables Prometheus middleware and /metrics.
	Metrics bool `yaml:"metrics" env:"REFLOW_METRICS"`

	// Tracing enables OpenTelemetry middleware.
	Tracing bool `yaml:"tracing" env:"REFLOW_TRACING"`
}

// SnapshotsConfig selects and configures the snapshot backend.
type SnapshotsConfig struct {
	// Dir stores snapshots in a local directory.
	Dir string `yaml:"dir" env:"REFLOW_SNAPSHOTS_DIR"`

	// Bucket stores snapshots in an S3 bucket instead. When both Dir
	// and Bucket are set, Bucket wins.
	Bucket string `yaml:"bucket" env:"REFLOW_SNAPSHOTS_BUCKET"`

	// Prefix is the S3 key prefix.
	Prefix string `yaml:"prefix" env:"REFLOW_SNAPSHOTS_PREFIX"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Address:  DefaultAddress,
		LogLevel: "info",
	}
}

// Load reads the configuration file at path (or the defaults when the
// file does not exist), then applies environment overrides. An empty
// path means ConfigFileName in the working directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigFileName
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Defaults plus env only.
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	if c.UpdateLimit < 0 {
		return fmt.Errorf("config: update_limit must be >= 0, got %d", c.UpdateLimit)
	}
	return nil
}
