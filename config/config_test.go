package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLedger/internal/adapters/logger"
	"cryptoLedger/internal/domain"
)

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // keep any developer .env out of the test
	for _, k := range []string{"ASSETS", "STORE_DRIVER", "LEDGER_POLICY", "PRICE_SOURCE", "ROLLING_WINDOW", "ASSET_MAP_FILE"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, cfg.Assets)
	assert.Equal(t, "BTCUSDT", cfg.AssetPairs["BTC"])
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "rest", cfg.PriceSource)
	assert.Equal(t, 2*time.Hour, cfg.RollingWindow)
	assert.Equal(t, domain.WeightedAverage, cfg.LedgerPolicy)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
}

func TestLoadConfig_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	mapPath := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(mapPath, []byte("pairs:\n  eth: ethusdc\n"), 0o644))

	t.Setenv("ASSETS", "btc, eth,btc,,doge")
	t.Setenv("QUOTE_ASSET", "fdusd")
	t.Setenv("ASSET_MAP_FILE", mapPath)
	t.Setenv("LEDGER_POLICY", "FIFO")
	t.Setenv("SNAPSHOT_INTERVAL", "15s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH", "DOGE"}, cfg.Assets)
	assert.Equal(t, "BTCFDUSD", cfg.AssetPairs["BTC"])
	assert.Equal(t, "ETHUSDC", cfg.AssetPairs["ETH"])
	assert.Equal(t, domain.FIFO, cfg.LedgerPolicy)
	assert.Equal(t, 15*time.Second, cfg.SnapshotInterval)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
}

func TestLoadConfig_CollectsErrors(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LEDGER_POLICY", "lifo")
	t.Setenv("SNAPSHOT_INTERVAL", "soon")
	t.Setenv("MAX_RETRIES", "-1")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL must be set")
	assert.Contains(t, err.Error(), "LEDGER_POLICY")
	assert.Contains(t, err.Error(), "invalid SNAPSHOT_INTERVAL")
	assert.Contains(t, err.Error(), "MAX_RETRIES cannot be negative")
}

func TestLoadAssetMap(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("pairs:\n  sol: solusdt\n  BTC: BTCUSDC\n"), 0o644))
	pairs, err := LoadAssetMap(good)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"SOL": "SOLUSDT", "BTC": "BTCUSDC"}, pairs)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pairs:\n  sol: \"\"\n"), 0o644))
	_, err = LoadAssetMap(bad)
	assert.Error(t, err)

	_, err = LoadAssetMap(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
