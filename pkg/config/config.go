package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds client-level settings. Values come from defaults, then the
// YAML file, then TF_* environment variables; command-line flags are
// applied last by the caller.
type Config struct {
	Debug     bool `yaml:"debug" env:"DEBUG"`
	Verbosity int  `yaml:"verbosity" env:"VERBOSITY"`

	// --- Persistence ---
	StateDB     string `yaml:"state_db" env:"STATE_DB"`       // bbolt snapshot path; empty disables
	MacroFile   string `yaml:"macro_file" env:"MACRO_FILE"`   // YAML macro definitions
	WatchMacros bool   `yaml:"watch_macros" env:"WATCH_MACROS"`

	// --- Session ---
	MetricsAddr  string `yaml:"metrics_addr" env:"METRICS_ADDR"` // e.g. ":9464"; empty disables
	DefaultWorld string `yaml:"default_world" env:"DEFAULT_WORLD"`
	History      int    `yaml:"history" env:"HISTORY"` // input lines kept for /history
}

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TF_"

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Verbosity:   1,
		WatchMacros: true,
		History:     100,
	}
}

// Load reads the YAML file at path (if non-empty) over the defaults and
// then applies environment overrides. A missing file is not an error when
// path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Verbosity < 0 {
		errs = append(errs, fmt.Errorf("verbosity %d is negative", c.Verbosity))
	}
	if c.History < 0 {
		errs = append(errs, fmt.Errorf("history %d is negative", c.History))
	}
	if c.WatchMacros && c.MacroFile == "" {
		c.WatchMacros = false
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
