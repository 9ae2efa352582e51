package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, cfg.Workers, 0)
	assert.Equal(t, 1<<16, cfg.HazardSampleLimit)
	assert.Zero(t, cfg.ErrorCutoff)
}

func TestLoad_FileInDir(t *testing.T) {
	dir := t.TempDir()
	body := "workers: 3\nerror_cutoff: 12\ntrace: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(body), 0o644))

	cfg, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 12, cfg.ErrorCutoff)
	assert.True(t, cfg.Trace)

	pool := cfg.Pool()
	assert.True(t, pool.Enabled)
	assert.Equal(t, 3, pool.NumWorkers)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("workers: 3\n"), 0o644))
	t.Setenv("LUMEN_WORKERS", "7")

	cfg, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
}
