package godf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0, cfg.Devices)
	assert.Equal(t, DefaultBlockSize, cfg.BlockSize)
	assert.Equal(t, DefaultERICacheExtra, cfg.ERICacheExtra)
	assert.Equal(t, DefaultShadowProbes, cfg.ShadowProbes)
	assert.False(t, cfg.DisableERICache)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "godf.yaml")
	data := []byte(`
devices: 2
block_size: 120
disable_eri_cache: true
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Devices)
	assert.Equal(t, 120, cfg.BlockSize)
	assert.True(t, cfg.DisableERICache)
	// Unset fields keep their defaults.
	assert.Equal(t, DefaultERICacheExtra, cfg.ERICacheExtra)
	assert.Equal(t, DefaultShadowProbes, cfg.ShadowProbes)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices: [not an int"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Devices: -3, BlockSize: -1}
	cfg.applyDefaults()
	assert.Equal(t, 0, cfg.Devices)
	assert.Equal(t, DefaultBlockSize, cfg.BlockSize)
	assert.Equal(t, DefaultERICacheExtra, cfg.ERICacheExtra)
	assert.Equal(t, DefaultShadowProbes, cfg.ShadowProbes)
}
