// Package godf configuration
package godf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Cache and buffer tuning constants
const (
	// Spare block slots reserved per source beyond the observed block
	// count, so a small change in block count between calls does not
	// force a full cache rebuild
	DefaultERICacheExtra = 2

	// Number of host-side probe elements sampled per cached block for
	// staleness detection
	DefaultShadowProbes = 16

	// Memory alignment for device allocations
	MemoryAlignment = 64

	// Default auxiliary-dimension extent of one streamed integral block
	DefaultBlockSize = 240

	// Fallback when the platform offers no memory query
	defaultSystemMemory = 16 * 1024 * 1024 * 1024
)

// Triangular-pack fill modes, matching the np_helper conventions
const (
	Hermitian     = 1
	AntiHermitian = 2
	Symmetric     = 3
)

// Config holds the device-manager settings.
// The zero value of any field is replaced by its default in New.
type Config struct {
	// Devices is the number of devices to drive. 0 means all devices
	// the backend reports.
	Devices int `yaml:"devices"`

	// BlockSize is the default auxiliary extent per streamed block
	BlockSize int `yaml:"block_size"`

	// ERICacheExtra is the spare block-slot margin per source
	ERICacheExtra int `yaml:"eri_cache_extra"`

	// ShadowProbes is the per-block staleness sample size
	ShadowProbes int `yaml:"shadow_probes"`

	// DisableERICache starts the manager with the ERI cache off.
	// Useful when host-side data is known to change every call.
	DisableERICache bool `yaml:"disable_eri_cache"`
}

// DefaultConfig returns the default manager configuration
func DefaultConfig() Config {
	return Config{
		Devices:       0,
		BlockSize:     DefaultBlockSize,
		ERICacheExtra: DefaultERICacheExtra,
		ShadowProbes:  DefaultShadowProbes,
	}
}

// LoadConfig reads a Config from a YAML file, applying defaults for
// fields left unset.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.ERICacheExtra < 0 {
		c.ERICacheExtra = DefaultERICacheExtra
	}
	if c.ShadowProbes <= 0 {
		c.ShadowProbes = DefaultShadowProbes
	}
	if c.Devices < 0 {
		c.Devices = 0
	}
}
