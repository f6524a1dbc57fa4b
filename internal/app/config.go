package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// NotebookPath points at a single .hcl notebook file or a directory of
	// them.
	NotebookPath string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// CellTimeout bounds every cell execution. Zero disables the limit.
	CellTimeout time.Duration

	// EventBuffer sizes the kernel's status stream.
	EventBuffer int
}

// fileConfig is the YAML shape of an optional config file. Only fields set
// in the file override the base config.
type fileConfig struct {
	NotebookPath    *string `yaml:"notebook_path"`
	LogFormat       *string `yaml:"log_format"`
	LogLevel        *string `yaml:"log_level"`
	HealthcheckPort *int    `yaml:"healthcheck_port"`
	// CellTimeout is a Go duration string, e.g. "30s".
	CellTimeout *string `yaml:"cell_timeout"`
	EventBuffer *int    `yaml:"event_buffer"`
}

// NewConfig validates a config and returns it, or the first validation error.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.NotebookPath == "" {
		return nil, errors.New("NotebookPath is a required configuration field and cannot be empty")
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.CellTimeout < 0 {
		return nil, errors.New("CellTimeout cannot be negative")
	}
	return &cfg, nil
}

// ApplyConfigFile overlays settings from a YAML file onto cfg. Fields absent
// from the file keep their current values.
func ApplyConfigFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if fc.NotebookPath != nil {
		cfg.NotebookPath = *fc.NotebookPath
	}
	if fc.LogFormat != nil {
		cfg.LogFormat = *fc.LogFormat
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.HealthcheckPort != nil {
		cfg.HealthcheckPort = *fc.HealthcheckPort
	}
	if fc.CellTimeout != nil {
		d, err := time.ParseDuration(*fc.CellTimeout)
		if err != nil {
			return fmt.Errorf("parsing cell_timeout in %s: %w", path, err)
		}
		cfg.CellTimeout = d
	}
	if fc.EventBuffer != nil {
		cfg.EventBuffer = *fc.EventBuffer
	}
	return nil
}
