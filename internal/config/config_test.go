package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsOverlapEqualToChunkSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestValidateRejectsOverlapPercentageOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.OverlapPercentage = 0.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap_percentage")
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.MaxConcurrentFiles = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_files")
}

func TestGetStringEnvWithFallbackPrefersPrimary(t *testing.T) {
	t.Setenv("MDVEC_TEST_PRIMARY", "primary-value")
	t.Setenv("TEST_LEGACY", "legacy-value")
	assert.Equal(t, "primary-value", getStringEnvWithFallback("MDVEC_TEST_PRIMARY", "TEST_LEGACY", "default"))
}

func TestGetStringEnvWithFallbackUsesLegacyWhenPrimaryUnset(t *testing.T) {
	t.Setenv("TEST_LEGACY_ONLY", "legacy-value")
	assert.Equal(t, "legacy-value", getStringEnvWithFallback("MDVEC_TEST_UNSET", "TEST_LEGACY_ONLY", "default"))
}

func TestGetIntEnvWithDefaultFallsBackOnBadValue(t *testing.T) {
	t.Setenv("MDVEC_TEST_INT", "not-a-number")
	assert.Equal(t, 42, getIntEnvWithDefault("MDVEC_TEST_INT", 42))
}

func TestApplyYAMLFileOverlaysNonZeroFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qdrant:\n  host: qdrant.internal\n  port: 7000\nchunking:\n  chunk_size: 1500\n"), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, applyYAMLFile(cfg, path))

	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7000, cfg.Qdrant.Port)
	assert.Equal(t, 1500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 200, cfg.Chunking.ChunkOverlap) // untouched, keeps default
}

func TestLoadConfigAcceptsSilentLogLevel(t *testing.T) {
	t.Setenv("MDVEC_LOG_LEVEL", "silent")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "silent", cfg.Server.LogLevel)
}

func TestLoadConfigUsesYAMLFileWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  log_level: debug\n"), 0o600))
	t.Setenv("MDVEC_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}
