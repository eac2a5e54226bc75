// Package config loads and persists the websess configuration.
package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tidwall/sjson"
)

const (
	appName        = "websess"
	configFileName = "websess.json"

	defaultCheckIntervalSec = 15
)

// Options are behavior toggles.
type Options struct {
	Debug          bool `json:"debug,omitempty"`
	DisableMetrics bool `json:"disable_metrics,omitempty"`
}

// Config is the resolved websess configuration.
type Config struct {
	// BaseURL is the web application this keeper maintains a session with.
	BaseURL string `json:"base_url,omitempty"`

	// CheckIntervalSeconds overrides the 15s session checker interval.
	CheckIntervalSeconds int `json:"check_interval_seconds,omitempty"`

	// DataDirectory holds the database and logs.
	DataDirectory string `json:"data_directory,omitempty"`

	Options Options `json:"options,omitempty"`

	configPath string
}

var instance atomic.Pointer[Config]

// GlobalConfig returns the path of the global configuration file.
func GlobalConfig() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appName, configFileName)
}

// GlobalData returns the default data directory.
func GlobalData() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appName, "data")
}

// Init loads the configuration and makes it available through [Get].
// Flag values win over environment variables, which win over the file.
func Init(dataDir string, debug bool) (*Config, error) {
	cfg, err := Load(GlobalConfig())
	if err != nil {
		return nil, err
	}

	cfg.BaseURL = cmp.Or(os.Getenv("WEBSESS_BASE_URL"), cfg.BaseURL)
	cfg.DataDirectory = cmp.Or(dataDir, os.Getenv("WEBSESS_DATA_DIR"), cfg.DataDirectory, GlobalData())
	cfg.Options.Debug = cfg.Options.Debug || debug
	if v := os.Getenv("WEBSESS_DISABLE_METRICS"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("Ignoring invalid WEBSESS_DISABLE_METRICS", "value", v)
		} else {
			cfg.Options.DisableMetrics = disabled
		}
	}

	if err := os.MkdirAll(cfg.DataDirectory, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	instance.Store(cfg)
	return cfg, nil
}

// Get returns the configuration loaded by [Init], or nil before it ran.
func Get() *Config {
	return instance.Load()
}

// Load reads the configuration file at path. A missing file yields the
// defaults rather than an error.
func Load(path string) (*Config, error) {
	cfg := &Config{configPath: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.configPath = path
	return cfg, nil
}

// CheckInterval returns the configured checker interval.
func (c *Config) CheckInterval() time.Duration {
	if c.CheckIntervalSeconds > 0 {
		return time.Duration(c.CheckIntervalSeconds) * time.Second
	}
	return defaultCheckIntervalSec * time.Second
}

// IsConfigured reports whether a target application is set.
func (c *Config) IsConfigured() bool {
	return c.BaseURL != ""
}

// SetConfigField persists a single field to the configuration file without
// clobbering unknown keys.
func (c *Config) SetConfigField(key string, value any) error {
	data, err := os.ReadFile(c.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			data = []byte("{}")
		} else {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	newValue, err := sjson.Set(string(data), key, value)
	if err != nil {
		return fmt.Errorf("failed to set config field %s: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(c.configPath, []byte(newValue), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SetBaseURL updates the target application in memory and on disk.
func (c *Config) SetBaseURL(baseURL string) error {
	c.BaseURL = baseURL
	return c.SetConfigField("base_url", baseURL)
}
