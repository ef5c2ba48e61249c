package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultReturnsValidConfiguration(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)
	assert.NoError(t, Validate(cfg))
	assert.Greater(t, cfg.MaxFileBytes, int64(0))
	assert.True(t, cfg.Trace.Enabled)
	assert.True(t, cfg.Watcher.Enabled)
	assert.True(t, cfg.Primer.Enabled)
}

func TestLoadConfigFromDirUsesDefaultsWhenNoFileExists(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().Watcher.DebounceMs, cfg.Watcher.DebounceMs)
}

func TestLoadConfigFromDirReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".codrag"), 0755))
	yaml := "max_file_bytes: 500000\ntrace:\n  enabled: false\nwatcher:\n  debounce_ms: 750\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codrag", "config.yml"), []byte(yaml), 0644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), cfg.MaxFileBytes)
	assert.False(t, cfg.Trace.Enabled)
	assert.Equal(t, 750, cfg.Watcher.DebounceMs)
}

func TestLoadConfigFromDirEnvVarOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".codrag"), 0755))
	yaml := "watcher:\n  debounce_ms: 750\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codrag", "config.yml"), []byte(yaml), 0644))

	t.Setenv("CODRAG_WATCHER_DEBOUNCE_MS", "900")

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.Watcher.DebounceMs)
}

func TestValidateRejectsInvalidEmbedding(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Model = ""
	cfg.Embedding.Dimensions = 0
	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyModel)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestValidateSkipsTraceCapsWhenDisabled(t *testing.T) {
	cfg := Default()
	cfg.Trace.Enabled = false
	cfg.Trace.MaxNodes = 0
	assert.NoError(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangePrimerBoost(t *testing.T) {
	cfg := Default()
	cfg.Primer.ScoreBoost = 1.5
	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPrimerConfig)
}

func TestLoadGlobalConfigUsesDefaultsWhenNoFileExists(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".codrag"), cfg.DataDir)
	assert.Equal(t, filepath.Join(home, ".codrag", "registry.db"), cfg.Registry.DBPath)
}
