// Package config provides configuration loading and management for Loom.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Loom configuration
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	NATS      NATSConfig      `yaml:"nats"`
	Playbooks PlaybooksConfig `yaml:"playbooks"`
	Log       LogConfig       `yaml:"log"`
}

// StoreConfig selects and configures the element/edge store
type StoreConfig struct {
	// Driver is the storage backend: "memory", "sqlite", or "nats"
	Driver string `yaml:"driver"`
	// Path is the database file path (sqlite driver only)
	Path string `yaml:"path"`
}

// NATSConfig configures the NATS connection used by the "nats" store
// driver and the audit publisher
type NATSConfig struct {
	// URL is the NATS server URL (empty = no NATS, audit stays local)
	URL string `yaml:"url"`
}

// PlaybooksConfig configures the playbook library
type PlaybooksConfig struct {
	// Dir is the directory scanned for *.yaml/*.yml playbooks
	Dir string `yaml:"dir"`
	// Watch reloads the library when files under Dir change
	Watch bool `yaml:"watch"`
	// Debounce batches rapid file events into one reload
	Debounce time.Duration `yaml:"debounce"`
}

// LogConfig configures structured logging
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "loom.db",
		},
		NATS: NATSConfig{
			URL: "",
		},
		Playbooks: PlaybooksConfig{
			Dir:      "playbooks",
			Watch:    true,
			Debounce: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "nats":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be memory, sqlite, or nats (got %q)", c.Store.Driver)
	}
	if c.Store.Driver == "nats" && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required for the nats driver")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error (got %q)", c.Log.Level)
	}
	if c.Playbooks.Dir == "" {
		return fmt.Errorf("playbooks.dir is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Store
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Playbooks
	if other.Playbooks.Dir != "" {
		c.Playbooks.Dir = other.Playbooks.Dir
	}
	if other.Playbooks.Watch {
		c.Playbooks.Watch = true
	}
	if other.Playbooks.Debounce != 0 {
		c.Playbooks.Debounce = other.Playbooks.Debounce
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}
