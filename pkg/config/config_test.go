package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
tasks:
  - key: disk-usage
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "tmp/state.db", cfg.StatePath)
	assert.Len(t, cfg.Tasks, 1)
	assert.Equal(t, "disk-usage", cfg.Tasks[0].Key)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	t.Setenv("TASKCOMMANDER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejectsDuplicateTaskKeys(t *testing.T) {
	cfg := Default()
	cfg.Tasks = []TaskDeclaration{{Key: "a"}, {Key: "a"}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsZeroTick(t *testing.T) {
	cfg := Default()
	cfg.TickInterval = 0
	err := cfg.Validate()
	assert.Error(t, err)
}
