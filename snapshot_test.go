package match

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	feed := NewMemoryFeed()
	feed.AddQuote(quote(0, "X", []PriceQuantity{{9, 5}, {8, 2}}, []PriceQuantity{{11, 5}}))
	feed.AddQuote(quote(0, "Y", []PriceQuantity{{99, 1}}, []PriceQuantity{{101, 1}}))

	strategy := StrategyFunc(func(state *TradingState) (map[string][]Order, int, string) {
		return map[string][]Order{"X": {{Price: 10, Quantity: 3}}}, 0, ""
	})

	cfg := testConfig(1)
	cfg.PositionLimits["Y"] = 5

	engine, err := NewMatchingEngine(cfg, strategy, feed, WithRunID("snap-run"))
	require.NoError(t, err)
	_, err = engine.Run(context.Background())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "snapshot")

	meta, err := engine.TakeSnapshot(dir)
	require.NoError(t, err)
	assert.Equal(t, "snap-run", meta.RunID)
	assert.Equal(t, SnapshotSchemaVersion, meta.SchemaVersion)
	assert.Equal(t, PhaseSettled, meta.Phase)
	assert.NotZero(t, meta.SnapshotChecksum)

	_, err = os.Stat(dir + ".tmp")
	assert.True(t, os.IsNotExist(err))

	t.Run("read back", func(t *testing.T) {
		readMeta, books, err := ReadSnapshot(dir)
		require.NoError(t, err)
		assert.Equal(t, meta.SnapshotChecksum, readMeta.SnapshotChecksum)

		require.Len(t, books, 2)
		assert.Equal(t, "X", books[0].Symbol)
		require.Len(t, books[0].Bids, 3)
		assert.Equal(t, int64(10), books[0].Bids[0].Price)
		assert.Equal(t, OwnerAlgo, books[0].Bids[0].Owner)
		assert.Equal(t, int64(-5), books[0].Asks[0].Quantity)
		assert.Equal(t, "Y", books[1].Symbol)
	})

	t.Run("overwrite keeps a single snapshot", func(t *testing.T) {
		_, err := engine.TakeSnapshot(dir)
		require.NoError(t, err)
		_, books, err := ReadSnapshot(dir)
		require.NoError(t, err)
		assert.Len(t, books, 2)
	})

	t.Run("corruption is detected", func(t *testing.T) {
		binPath := filepath.Join(dir, snapshotBinFile)
		data, err := os.ReadFile(binPath)
		require.NoError(t, err)
		data[0] ^= 0xFF
		require.NoError(t, os.WriteFile(binPath, data, 0600))

		_, _, err = ReadSnapshot(dir)
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}
