// Package config holds stubtree's tool configuration, loaded from
// .stubtree.yaml with environment overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = ".stubtree.yaml"

// Malformed-manifest policies. Abort is the default: proceeding past an
// unparseable manifest silently under-caches that subproject.
const (
	OnMalformedAbort = "abort"
	OnMalformedSkip  = "skip"
)

// Config holds all stubtree configuration.
type Config struct {
	// Lockfile is the lock file path relative to the tree root.
	Lockfile string `yaml:"lockfile"`

	// Output is the skeleton output directory.
	Output string `yaml:"output"`

	// OnMalformed decides whether an unparseable manifest aborts the run
	// ("abort") or only excludes that manifest's outputs ("skip").
	OnMalformed string `yaml:"on_malformed"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Lockfile:    "Cargo.lock",
		Output:      "skeleton",
		OnMalformed: OnMalformedAbort,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, layered over defaults.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects values the pipeline cannot act on.
func (c *Config) Validate() error {
	switch c.OnMalformed {
	case OnMalformedAbort, OnMalformedSkip:
	default:
		return fmt.Errorf("on_malformed must be %q or %q, got %q",
			OnMalformedAbort, OnMalformedSkip, c.OnMalformed)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	if c.Output == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if out := os.Getenv("STUBTREE_OUTPUT"); out != "" {
		c.Output = out
	}
	if lock := os.Getenv("STUBTREE_LOCKFILE"); lock != "" {
		c.Lockfile = lock
	}
	if policy := os.Getenv("STUBTREE_ON_MALFORMED"); policy != "" {
		c.OnMalformed = policy
	}
}
