package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateDepthChange(t *testing.T) {
	t.Run("open adds to own side", func(t *testing.T) {
		change := CalculateDepthChange(&BookLog{Type: LogTypeOpen, Side: Sell, Price: 11, Size: 4})
		assert.Equal(t, DepthChange{Side: Sell, Price: 11, SizeDiff: 4}, change)
	})

	t.Run("match reduces maker side", func(t *testing.T) {
		change := CalculateDepthChange(&BookLog{Type: LogTypeMatch, Side: Buy, Price: 11, Size: 3})
		assert.Equal(t, DepthChange{Side: Sell, Price: 11, SizeDiff: -3}, change)

		change = CalculateDepthChange(&BookLog{Type: LogTypeMatch, Side: Sell, Price: 9, Size: 2})
		assert.Equal(t, DepthChange{Side: Buy, Price: 9, SizeDiff: -2}, change)
	})

	t.Run("reject changes nothing", func(t *testing.T) {
		change := CalculateDepthChange(&BookLog{Type: LogTypeReject, Side: Buy, Price: 9, Size: 2})
		assert.Equal(t, DepthChange{}, change)
	})
}
