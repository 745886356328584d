package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_DefaultsFill(t *testing.T) {
	path := writeConfig(t, `
app:
  name: sim-test
market:
  symbols: [SOLUSDT]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sim-test", cfg.App.Name)
	assert.Equal(t, []string{"SOLUSDT"}, cfg.Market.Symbols)
	assert.Equal(t, int32(4), cfg.Market.PriceDecimals)
	assert.Equal(t, int64(100), cfg.Market.SpreadBps)
	assert.Equal(t, []int{1, 5, 10, 20, 100}, cfg.Trading.Leverages)
	assert.Equal(t, ":3000", cfg.Stream.ListenAddr)
	assert.Equal(t, 2000, cfg.Stream.HeartbeatMS)
	assert.Equal(t, 30000, cfg.Stream.PingIntervalMS)
}

func TestLoadConfig_RejectsBadSymbols(t *testing.T) {
	path := writeConfig(t, `
market:
  symbols: [solusdt]
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)

	path = writeConfig(t, `
market:
  symbols: [SOLEUR]
`)
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_RejectsBadSpread(t *testing.T) {
	path := writeConfig(t, `
market:
  spread_bps: 20000
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("EXNESS_DB_PATH", "/tmp/override.db")
	t.Setenv("EXNESS_SYMBOLS", "btcusdt, ethusdt")
	t.Setenv("EXNESS_LOG_LEVEL", "debug")

	path := writeConfig(t, `
storage:
  path: from-file.db
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Storage.Path)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Market.Symbols)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, os.IsNotExist(err))
}
