// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is a developer's machine.
	Development Environment = "development"
	// Staging is pre-production.
	Staging Environment = "staging"
	// Production is a production deployment.
	Production Environment = "production"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the configuration for a Beacon process.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Store configures the record store.
	Store StoreConfig `yaml:"store"`

	// Sync configures the synchronization engine.
	Sync SyncConfig `yaml:"sync"`

	// Chat configures chat threads.
	Chat ChatConfig `yaml:"chat"`

	// Log configures the structured logger.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base values.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the fields that may differ per environment.
type ConfigOverrides struct {
	Store *StoreConfig `yaml:"store,omitempty"`
	Sync  *SyncConfig  `yaml:"sync,omitempty"`
	Log   *LogConfig   `yaml:"log,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Beacon data. Other paths may
	// refer to it as ${BEACON_ROOT}.
	Root string `yaml:"root"`
}

// StoreConfig configures the record store.
type StoreConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// PoolSize is the SQLite connection pool size.
	PoolSize int `yaml:"pool_size"`
}

// SyncConfig configures the synchronization engine.
type SyncConfig struct {
	// RepairDelay is how long a session waits after a partially
	// applied accept or disconnect before repairing the edge. Go
	// duration syntax.
	RepairDelay string `yaml:"repair_delay"`

	// RepairConcurrency bounds concurrent edge fixes in a full repair
	// pass.
	RepairConcurrency int `yaml:"repair_concurrency"`
}

// ChatConfig configures chat threads.
type ChatConfig struct {
	// MaxMessageLength is the longest accepted message, in bytes,
	// after trimming.
	MaxMessageLength int `yaml:"max_message_length"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is text, json, or auto. Auto picks text when stderr is
	// a terminal and json otherwise.
	Format string `yaml:"format"`
}

// Default returns the base configuration that the config file is
// merged into.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root: filepath.Join(homeDir, ".local", "share", "beacon"),
		},
		Store: StoreConfig{
			Backend:  BackendSQLite,
			Path:     "${BEACON_ROOT}/beacon.db",
			PoolSize: 4,
		},
		Sync: SyncConfig{
			RepairDelay:       "5s",
			RepairConcurrency: 4,
		},
		Chat: ChatConfig{
			MaxMessageLength: 4096,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the file named by BEACON_CONFIG.
// There is no discovery: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("BEACON_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BEACON_CONFIG environment variable not set; " +
			"set it to the path of your beacon.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies the section for the
// configured environment, and expands ${VAR} references.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.Expand()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: structured logs.
		if overrides == nil {
			overrides = &ConfigOverrides{Log: &LogConfig{Format: "json"}}
		}
	}
	if overrides == nil {
		return
	}

	if overrides.Store != nil {
		if overrides.Store.Backend != "" {
			c.Store.Backend = overrides.Store.Backend
		}
		if overrides.Store.Path != "" {
			c.Store.Path = overrides.Store.Path
		}
		if overrides.Store.PoolSize > 0 {
			c.Store.PoolSize = overrides.Store.PoolSize
		}
	}

	if overrides.Sync != nil {
		if overrides.Sync.RepairDelay != "" {
			c.Sync.RepairDelay = overrides.Sync.RepairDelay
		}
		if overrides.Sync.RepairConcurrency > 0 {
			c.Sync.RepairConcurrency = overrides.Sync.RepairConcurrency
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// Expand resolves ${VAR} references in path fields. LoadFile calls it;
// callers that start from Default call it themselves.
func (c *Config) Expand() {
	vars := map[string]string{
		"BEACON_ROOT": c.Paths.Root,
		"HOME":        os.Getenv("HOME"),
	}
	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["BEACON_ROOT"] = c.Paths.Root

	c.Store.Path = expandVars(c.Store.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, consulting vars before
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// RepairDelayDuration parses Sync.RepairDelay.
func (c *Config) RepairDelayDuration() (time.Duration, error) {
	delay, err := time.ParseDuration(c.Sync.RepairDelay)
	if err != nil {
		return 0, fmt.Errorf("sync.repair_delay: %w", err)
	}
	return delay, nil
}

// Validate checks the configuration for errors and reports all of
// them at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the sqlite backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend must be %q or %q, got %q",
			BackendSQLite, BackendMemory, c.Store.Backend))
	}

	if delay, err := c.RepairDelayDuration(); err != nil {
		errs = append(errs, err)
	} else if delay < 0 {
		errs = append(errs, fmt.Errorf("sync.repair_delay must not be negative"))
	}
	if c.Sync.RepairConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("sync.repair_concurrency must be positive"))
	}

	if c.Chat.MaxMessageLength <= 0 {
		errs = append(errs, fmt.Errorf("chat.max_message_length must be positive"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error"))
	}
	switch c.Log.Format {
	case "text", "json", "auto":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text, json, or auto"))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the data directory and the store's parent
// directory.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Paths.Root}
	if c.Store.Backend == BackendSQLite && c.Store.Path != "" {
		paths = append(paths, filepath.Dir(c.Store.Path))
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
