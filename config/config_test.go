package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
quantflow:
  name: "quantflow"
  version: "0.1.0"
venue:
  name: "BYBIT"
  env: "Testnet"
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Venue.MaxArgsPerRequest)
	assert.Equal(t, 10*time.Second, cfg.Venue.AuthTimeout)
	assert.True(t, cfg.DataEngine.TimeBarsTimestampOnClose)
	assert.Equal(t, "left-open", cfg.DataEngine.TimeBarsIntervalType)
	assert.True(t, cfg.Simulation.UseMessageQueue)
	assert.Equal(t, "cash", cfg.Simulation.AccountType)

	// WS URL is derived from the environment name when not set.
	assert.Equal(t, "wss://stream-testnet.bybit.com/v5/public/linear", cfg.Venue.WSURL)
}

func TestLoadConfigMissingNameFails(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
quantflow:
  version: "0.1.0"
`))
	assert.Error(t, err)
}

func TestLoadConfigValidatesIntervalType(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, minimalConfig+`
data_engine:
  time_bars_interval_type: "sideways"
`))
	assert.Error(t, err)
}

func TestLoadConfigValidatesAccountType(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, minimalConfig+`
simulation:
  account_type: "island"
`))
	assert.Error(t, err)
}

func TestLoadConfigS3RequiresBucket(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, minimalConfig+`
catalog:
  s3:
    enabled: true
`))
	assert.Error(t, err)
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("BYBIT_WS_URL", "wss://override.example/v5")
	t.Setenv("BYBIT_API_KEY", "key-from-env")
	t.Setenv("HEARTBEAT_SECONDS", "33")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "wss://override.example/v5", cfg.Venue.WSURL)
	assert.Equal(t, "key-from-env", cfg.Venue.APIKey)
	assert.Equal(t, 33, cfg.Venue.HeartbeatSecs)
}

func TestParseBybitEnv(t *testing.T) {
	assert.Equal(t, BybitTestnet, ParseBybitEnv("testnet"))
	assert.Equal(t, BybitDemo, ParseBybitEnv(" Demo "))
	assert.Equal(t, BybitMainnet, ParseBybitEnv("anything-else"))
}

func TestReconnectDefaults(t *testing.T) {
	var r ReconnectConfig
	assert.Equal(t, time.Second, r.ReconnectInitial())
	assert.Equal(t, 30*time.Second, r.ReconnectMax())
	assert.Equal(t, float64(2), r.ReconnectFactor())
	assert.Equal(t, 10*time.Second, r.ReconnectTimeout())
}
