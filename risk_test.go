package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckPositionLimit(t *testing.T) {
	t.Run("buy side dropped as a whole", func(t *testing.T) {
		orders := []Order{
			{Symbol: "X", Price: 10, Quantity: 4},
			{Symbol: "X", Price: 12, Quantity: -3},
			{Symbol: "X", Price: 10, Quantity: 6},
		}

		accepted, rejected := CheckPositionLimit(15, 20, orders)

		assert.Equal(t, []Order{{Symbol: "X", Price: 12, Quantity: -3}}, accepted)
		assert.Equal(t, []Order{orders[0], orders[2]}, rejected)
	})

	t.Run("sell side dropped as a whole", func(t *testing.T) {
		orders := []Order{
			{Symbol: "X", Price: 12, Quantity: -10},
			{Symbol: "X", Price: 10, Quantity: 2},
			{Symbol: "X", Price: 13, Quantity: -11},
		}

		accepted, rejected := CheckPositionLimit(0, 20, orders)

		assert.Equal(t, []Order{{Symbol: "X", Price: 10, Quantity: 2}}, accepted)
		assert.Len(t, rejected, 2)
	})

	t.Run("exactly at the limit is allowed", func(t *testing.T) {
		accepted, rejected := CheckPositionLimit(-20, 20, []Order{{Price: 10, Quantity: 40}})
		assert.Len(t, accepted, 1)
		assert.Empty(t, rejected)
	})

	t.Run("buys first then sells and zero dropped", func(t *testing.T) {
		orders := []Order{
			{Price: 12, Quantity: -1},
			{Price: 11, Quantity: 0},
			{Price: 10, Quantity: 1},
			{Price: 13, Quantity: -2},
		}

		accepted, rejected := CheckPositionLimit(0, 20, orders)

		assert.Equal(t, []Order{orders[2], orders[0], orders[3]}, accepted)
		assert.Empty(t, rejected)
	})

	t.Run("no clipping", func(t *testing.T) {
		accepted, rejected := CheckPositionLimit(19, 20, []Order{{Price: 10, Quantity: 2}})
		assert.Empty(t, accepted)
		assert.Equal(t, []Order{{Price: 10, Quantity: 2}}, rejected)
	})
}
