// Package config loads engine configuration from an optional YAML file.
//
// Everything has a working default: a missing file (or a missing key) yields
// a usable configuration, so the CLI runs with zero setup. The engine itself
// only ever consumes a validated Config value; it never reads files or
// environment state on its own.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sexpedit/internal/guard"
)

// Config is the full engine configuration.
type Config struct {
	// Formatter toggles the external reformat step of the edit pipeline.
	Formatter struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"formatter"`

	// Guard selects the staleness-guard mode: "full" (default), "all",
	// or "disabled".
	Guard struct {
		Mode string `yaml:"mode"`
	} `yaml:"guard"`

	// Diff controls unified-diff output.
	Diff struct {
		Context  int `yaml:"context"`
		MaxBytes int `yaml:"max_bytes"`
	} `yaml:"diff"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	var c Config
	c.Formatter.Enabled = true
	c.Guard.Mode = "full"
	c.Diff.Context = 3
	return c
}

// Load reads YAML configuration from path, applying defaults for absent
// keys. A missing file is not an error; it returns Default().
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Validate checks field values that have a closed set of spellings.
func (c Config) Validate() error {
	if _, err := guard.ParseMode(c.Guard.Mode); err != nil {
		return err
	}
	if c.Diff.Context < 0 {
		return fmt.Errorf("diff.context must be >= 0, got %d", c.Diff.Context)
	}
	return nil
}

// GuardMode resolves the configured guard mode. Validate must have accepted
// the config first; an invalid spelling falls back to the strict default.
func (c Config) GuardMode() guard.Mode {
	m, err := guard.ParseMode(c.Guard.Mode)
	if err != nil {
		return guard.ModeFullReads
	}
	return m
}
