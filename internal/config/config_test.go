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
	testChdir(t, t.TempDir())

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultOperator, cfg.Operator)
	assert.Equal(t, DefaultEstimateDelay, cfg.EstimateDelay)
	assert.Equal(t, DefaultHubLinkDelay, cfg.HubLinkDelay)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.FleetFile)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	body := `
operator: alice
fleet:
  file: fleet.yaml
wizard:
  estimate_delay: 250ms
log:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("FLEETJOBS_OPERATOR", "bob")

	cfg, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Operator)
	assert.Equal(t, "fleet.yaml", cfg.FleetFile)
	assert.Equal(t, 250*time.Millisecond, cfg.EstimateDelay)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("FLEETJOBS_HISTORY_FILE=history.json\n"), 0o644))
	t.Setenv("FLEETJOBS_HISTORY_FILE", "")
	os.Unsetenv("FLEETJOBS_HISTORY_FILE")
	testChdir(t, dir)

	cfg, err := Load(LoadOptions{EnvFile: envPath})
	require.NoError(t, err)
	assert.Equal(t, "history.json", cfg.HistoryFile)
}

func TestLoadRejectsBadFormat(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("FLEETJOBS_LOG_FORMAT", "xml")

	_, err := Load(LoadOptions{})
	require.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
}

// testChdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func testChdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
