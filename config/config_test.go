package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	match "github.com/0x5487/market-backtester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
engine:
  iterations: 1000
  position_limits:
    AMETHYSTS: 20
    STARFRUIT: 20
data:
  prices: data/prices.csv
  trades: data/trades.csv
strategy:
  name: multi
  window: 4
  fair_values:
    AMETHYSTS: "10000"
  mean_reversion: [STARFRUIT]
logging:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Engine.Iterations)
	assert.Equal(t, map[string]int64{"AMETHYSTS": 20, "STARFRUIT": 20}, cfg.Engine.PositionLimits)
	// untouched engine fields keep their defaults
	assert.Equal(t, int64(match.DefaultTickSize), cfg.Engine.TickSize)
	assert.Equal(t, match.DefaultDenomination, cfg.Engine.Denomination)
	assert.True(t, cfg.Engine.VerifyInvariants)

	assert.Equal(t, "data/prices.csv", cfg.Data.Prices)
	assert.Equal(t, "multi", cfg.Strategy.Name)
	assert.Equal(t, "10000", cfg.Strategy.FairValues["AMETHYSTS"].String())
	assert.Equal(t, []string{"STARFRUIT"}, cfg.Strategy.MeanReversion)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BACKTEST_ITERATIONS", "5")
	t.Setenv("BACKTEST_STORE_PATH", "/tmp/bt.db")
	t.Setenv("BACKTEST_LOG_LEVEL", "warn")
	t.Setenv("BACKTEST_SNAPSHOT_DIR", "/tmp/snap")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.Iterations)
	assert.Equal(t, "/tmp/bt.db", cfg.Store.Path)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/tmp/snap", cfg.Snapshot.Dir)

	t.Setenv("BACKTEST_ITERATIONS", "many")
	_, err = Load(writeConfig(t, sampleConfig))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Engine.PositionLimits = map[string]int64{"X": 10}
		cfg.Data.Prices = "prices.csv"
		cfg.Strategy.Name = "fair_value"
		return cfg
	}

	require.NoError(t, valid().Validate())

	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no instruments", func(c *Config) { c.Engine.PositionLimits = nil }},
		{"no data source", func(c *Config) { c.Data.Prices = "" }},
		{"import without store", func(c *Config) { c.Store.Import = true }},
		{"save without store", func(c *Config) { c.Store.SaveResults = true }},
		{"no strategy", func(c *Config) { c.Strategy.Name = "" }},
		{"negative window", func(c *Config) { c.Strategy.Window = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), match.ErrInvalidParam)
		})
	}

	t.Run("store alone is a data source", func(t *testing.T) {
		cfg := valid()
		cfg.Data.Prices = ""
		cfg.Store.Path = "bt.db"
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "engine: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "strategy:\n  name: multi\n"))
	assert.ErrorIs(t, err, match.ErrInvalidParam)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "warn"

	logger := NewLogger(cfg)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	cfg.Logging.Level = "debug"
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "backtest.log")
	logger = NewLogger(cfg)
	logger.Debug("hello")

	_, err := os.Stat(cfg.Logging.File)
	assert.NoError(t, err)
}
