// Package config loads the YAML configuration of the dfusim demo gadget.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const maxUnits = 16

type Config struct {
	// Listen is the Unix socket path of the loopback bus.
	Listen string `yaml:"listen"`

	Log   LogConfig    `yaml:"log"`
	Units []UnitConfig `yaml:"units"`
}

type LogConfig struct {
	// File is the log destination; empty means stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Level      string `yaml:"level"`
}

// UnitConfig describes one in-memory logical unit.
type UnitConfig struct {
	Blocks    uint32 `yaml:"blocks"`
	BlockSize uint32 `yaml:"block_size"`
}

// Load reads and validates the configuration at path, applying defaults for
// omitted fields.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "/run/dfusim.sock"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if len(c.Units) == 0 {
		// A single 16 MiB unit with 512-byte blocks.
		c.Units = []UnitConfig{{Blocks: 16 * 1024 * 1024 / 512, BlockSize: 512}}
	}
	for i := range c.Units {
		if c.Units[i].BlockSize == 0 {
			c.Units[i].BlockSize = 512
		}
	}
}

func (c *Config) validate() error {
	if len(c.Units) > maxUnits {
		return fmt.Errorf("config: %d units, the transport addresses at most %d", len(c.Units), maxUnits)
	}
	for i, u := range c.Units {
		if u.Blocks == 0 {
			return fmt.Errorf("config: unit %d has no capacity", i)
		}
		if u.BlockSize%512 != 0 {
			return fmt.Errorf("config: unit %d block size %d is not a multiple of 512", i, u.BlockSize)
		}
	}
	return nil
}
