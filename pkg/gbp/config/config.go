// Package config manages the engine's configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
)

// StoreConfig selects the orchestration store backend.
type StoreConfig struct {
	// Address of the redis backend; empty selects the in-memory store.
	Address string `yaml:"address,omitempty"`
	DB      int    `yaml:"db,omitempty"`
}

// NamingConfig tunes the name mapper.
type NamingConfig struct {
	// Strategy is "use_uuid" or "use_name".
	Strategy string `yaml:"strategy,omitempty"`
	// Prefix is prepended to every mapped name.
	Prefix string `yaml:"prefix,omitempty"`
}

// ValidationConfig tunes the validation engine.
type ValidationConfig struct {
	Repair bool `yaml:"repair,omitempty"`
}

// Config is the full configuration file.
type Config struct {
	Store      StoreConfig      `yaml:"store,omitempty"`
	Naming     NamingConfig     `yaml:"naming,omitempty"`
	Validation ValidationConfig `yaml:"validation,omitempty"`
	LogLevel   string           `yaml:"log_level,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Store:    StoreConfig{Address: "127.0.0.1:6379", DB: 0},
		Naming:   NamingConfig{Strategy: string(namemap.StrategyUUID)},
		LogLevel: "info",
	}
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "gbp.yaml"
	}
	return filepath.Join(home, ".gbp", "config.yaml")
}

// Load reads a configuration file, filling unset fields with defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Config) validate() error {
	switch namemap.Strategy(c.Naming.Strategy) {
	case "", namemap.StrategyUUID, namemap.StrategyName:
	default:
		return fmt.Errorf("unknown naming strategy %q", c.Naming.Strategy)
	}
	return nil
}

// Save writes the configuration atomically: a temp file in the target
// directory is renamed into place so readers never see a partial file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
