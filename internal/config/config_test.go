package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nschema_version: 3.1.0\nscript_timeout: 2s\n"), 0o644))
	t.Setenv("CADSYNC_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "3.1.0", cfg.SchemaVersion)
	assert.Equal(t, 2*time.Second, cfg.ScriptTimeout)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("CADSYNC_SCRIPT_TIMEOUT", "soon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(".env", []byte("CADSYNC_WORK_DIR=/var/cadsync\n"), 0o644))
	t.Setenv("CADSYNC_WORK_DIR", "")
	require.NoError(t, os.Unsetenv("CADSYNC_WORK_DIR"))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/cadsync", cfg.WorkDir)

	require.NoError(t, os.WriteFile(".env", []byte("BAD\"KEY=1\n"), 0o644))
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".env")
}
