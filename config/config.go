// Package config loads the service configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all formlogic-engine configuration.
type Config struct {
	// Listen address for the HTTP server, e.g. ":8080".
	Addr string `yaml:"addr"`

	// Path to the SQLite database file.
	DatabasePath string `yaml:"database_path"`

	// DebugMode enables verbose request logging. Per-form rule tracing
	// is controlled separately by each form's logic settings.
	DebugMode bool `yaml:"debug_mode"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Addr:         ":8080",
		DatabasePath: "./formlogic.db",
	}
}

// Load reads the configuration from path. A missing file is not an
// error: defaults are returned so the service can run unconfigured.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.Addr == "" {
		cfg.Addr = Default().Addr
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = Default().DatabasePath
	}
	return cfg, nil
}
