package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Exchange.Timeout)
	assert.Equal(t, 100, cfg.Daemon.QueueCapacity)
	assert.Equal(t, 1000, cfg.Bus.Capacity)
	assert.Equal(t, 50, cfg.Market.BandWidthBps)
	assert.False(t, cfg.Store.Enabled)
	assert.False(t, cfg.Profiling.Enabled)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
exchange:
  baseUrl: https://clob.example.com
  timeout: 3s
market:
  bandWidthBps: 25
daemon:
  maxConcurrent: 2
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://clob.example.com", cfg.Exchange.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Exchange.Timeout)
	assert.Equal(t, 25, cfg.Market.BandWidthBps)
	assert.Equal(t, 2, cfg.Daemon.MaxConcurrent)
	// Untouched fields keep their defaults.
	assert.Equal(t, 100, cfg.Daemon.QueueCapacity)
	assert.Equal(t, 5, cfg.Market.DepthLevels)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("POLYMARKET_API_KEY", "env-key")
	t.Setenv("POLYMARKET_PG_PASSWORD", "env-pass")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Exchange.APIKey)
	assert.Equal(t, "env-pass", cfg.Store.Connection.Password)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Market.BandWidthBps = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Exchange.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Enabled = true
	assert.Error(t, cfg.Validate(), "store enabled without a database must fail")

	cfg = Default()
	cfg.Profiling.Enabled = true
	assert.Error(t, cfg.Validate(), "profiling enabled without a server address must fail")
}
