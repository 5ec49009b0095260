package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %s", cfg.Store.Driver)
	}
	if cfg.Store.Path != "loom.db" {
		t.Errorf("expected default path loom.db, got %s", cfg.Store.Path)
	}
	if cfg.Playbooks.Dir != "playbooks" {
		t.Errorf("expected default playbooks dir, got %s", cfg.Playbooks.Dir)
	}
	if !cfg.Playbooks.Watch {
		t.Error("expected playbook watching by default")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "memory driver needs no path",
			modify:  func(c *Config) { c.Store.Driver = "memory"; c.Store.Path = "" },
			wantErr: false,
		},
		{
			name:    "unknown driver",
			modify:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: true,
		},
		{
			name:    "sqlite driver without path",
			modify:  func(c *Config) { c.Store.Path = "" },
			wantErr: true,
		},
		{
			name:    "nats driver without url",
			modify:  func(c *Config) { c.Store.Driver = "nats" },
			wantErr: true,
		},
		{
			name:    "nats driver with url",
			modify:  func(c *Config) { c.Store.Driver = "nats"; c.NATS.URL = "nats://localhost:4222" },
			wantErr: false,
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "missing playbooks dir",
			modify:  func(c *Config) { c.Playbooks.Dir = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
store:
  driver: "memory"
nats:
  url: "nats://test:4222"
playbooks:
  dir: "/srv/playbooks"
  watch: true
  debounce: 2s
log:
  level: "debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Store.Driver != "memory" {
		t.Errorf("expected driver memory, got %s", cfg.Store.Driver)
	}
	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	if cfg.Playbooks.Dir != "/srv/playbooks" {
		t.Errorf("expected playbooks dir /srv/playbooks, got %s", cfg.Playbooks.Dir)
	}
	if cfg.Playbooks.Debounce != 2*time.Second {
		t.Errorf("expected debounce 2s, got %v", cfg.Playbooks.Debounce)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Store: StoreConfig{
			Driver: "memory",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}

	base.Merge(override)

	if base.Store.Driver != "memory" {
		t.Errorf("expected driver memory, got %s", base.Store.Driver)
	}
	// Path should remain from base since override didn't set it
	if base.Store.Path != "loom.db" {
		t.Errorf("expected path to remain default, got %s", base.Store.Path)
	}
	if base.Log.Level != "warn" {
		t.Errorf("expected log level warn, got %s", base.Log.Level)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Store.Path = "saved.db"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Store.Path != "saved.db" {
		t.Errorf("expected path saved.db, got %s", loaded.Store.Path)
	}
}

func TestParseLogLevel(t *testing.T) {
	if got := ParseLogLevel("debug"); got.String() != "DEBUG" {
		t.Errorf("expected DEBUG, got %s", got)
	}
	if got := ParseLogLevel("nonsense"); got.String() != "INFO" {
		t.Errorf("expected INFO fallback, got %s", got)
	}
}
