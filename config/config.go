// Package config holds the server settings, read from an optional YAML file
// and overridden by command-line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	// DBPath is the bbolt dimension index; empty disables it.
	DBPath string `yaml:"db_path"`

	// Write enables uploads into browsed folders.
	Write      bool   `yaml:"write"`
	UploadsDir string `yaml:"uploads_dir"`

	// StaticDir, when set, is served at / for the picker front end.
	StaticDir string `yaml:"static_dir"`

	LogFile string `yaml:"log_file"`

	// RefreshWorkers bounds concurrent thumbnail regeneration in /refresh.
	RefreshWorkers int `yaml:"refresh_workers"`

	Watch WatchConfig `yaml:"watch"`
}

type WatchConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Debounce        time.Duration `yaml:"debounce"`
	FlushDelay      time.Duration `yaml:"flush_delay"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the settings used when no file or flag says otherwise.
func Default() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           "8188",
		UploadsDir:     "./uploads",
		RefreshWorkers: 1,
		Watch: WatchConfig{
			Enabled:         true,
			Debounce:        300 * time.Millisecond,
			FlushDelay:      500 * time.Millisecond,
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must be set")
	}
	if c.RefreshWorkers < 1 {
		return fmt.Errorf("refresh_workers must be at least 1, got %d", c.RefreshWorkers)
	}
	if c.Write && c.UploadsDir == "" {
		return fmt.Errorf("uploads_dir must be set in write mode")
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
