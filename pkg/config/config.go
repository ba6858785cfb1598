// Package config holds the YAML configuration for the turnod server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the turnod server configuration.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	Store struct {
		// Backend selects the persistence backend: "memory" or "sqlite".
		Backend string `yaml:"backend"`
		// Path is the SQLite database file.
		Path string `yaml:"path"`
	} `yaml:"store"`

	Workers struct {
		// Count is the number of worker goroutines. Minimum 1.
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Flows struct {
		// ApprovalSLAHours overrides the default per-hop approval
		// escalation window. 0 keeps the default (24h).
		ApprovalSLAHours int `yaml:"approval_sla_hours"`
		// SimulatedActivities registers the stand-in activity
		// implementations instead of expecting the host to provide real
		// ones.
		SimulatedActivities bool `yaml:"simulated_activities"`
	} `yaml:"flows"`

	Log struct {
		// Level is one of debug, info, warn, error.
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{ListenAddr: ":8080"}
	cfg.Store.Backend = "memory"
	cfg.Workers.Count = 4
	cfg.Flows.SimulatedActivities = true
	cfg.Log.Level = "info"
	return cfg
}

// Load reads a YAML config file and applies defaults to unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Workers.Count < 1 {
		c.Workers.Count = 1
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
