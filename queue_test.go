package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestOrder(seq uint64, price, qty int64) *DetailedOrder {
	return &DetailedOrder{
		Order:    Order{Symbol: "X", Price: price, Quantity: qty},
		Owner:    OwnerMarket,
		Sequence: seq,
	}
}

func TestBuyerQueue(t *testing.T) {
	q := NewBuyerQueue()

	q.insertOrder(newTestOrder(101, 10, 1), false)
	q.insertOrder(newTestOrder(201, 20, 10), false)
	q.insertOrder(newTestOrder(301, 30, 10), false)
	q.insertOrder(newTestOrder(202, 20, 100), false)

	assert.Equal(t, int64(4), q.orderCount())
	assert.Equal(t, int64(3), q.depthCount())
	assert.Equal(t, int64(110), q.levelSize(20))

	ord := q.popHeadOrder()
	assert.Equal(t, uint64(301), ord.Sequence)
	assert.Equal(t, int64(30), ord.Price)

	ord = q.popHeadOrder()
	assert.Equal(t, uint64(201), ord.Sequence)
	ord.Quantity = 2
	q.insertOrder(ord, true)

	ord = q.popHeadOrder()
	assert.Equal(t, uint64(201), ord.Sequence)
	assert.Equal(t, int64(2), ord.Quantity)

	ord = q.popHeadOrder()
	assert.Equal(t, uint64(202), ord.Sequence)

	ord = q.popHeadOrder()
	assert.Equal(t, uint64(101), ord.Sequence)
	assert.Equal(t, int64(10), ord.Price)

	assert.Equal(t, int64(0), q.orderCount())
	assert.Equal(t, int64(0), q.depthCount())
	assert.Nil(t, q.popHeadOrder())
}

func TestSellerQueue(t *testing.T) {
	q := NewSellerQueue()

	q.insertOrder(newTestOrder(101, 10, -1), false)
	q.insertOrder(newTestOrder(201, 20, -10), false)
	q.insertOrder(newTestOrder(301, 30, -10), false)
	q.insertOrder(newTestOrder(202, 20, -100), false)

	assert.Equal(t, int64(4), q.orderCount())
	assert.Equal(t, int64(110), q.levelSize(20))

	ord := q.popHeadOrder()
	assert.Equal(t, uint64(101), ord.Sequence)

	ord = q.popHeadOrder()
	assert.Equal(t, uint64(201), ord.Sequence)
	assert.Equal(t, int64(-10), ord.Quantity)

	ord = q.popHeadOrder()
	assert.Equal(t, uint64(202), ord.Sequence)

	ord = q.popHeadOrder()
	assert.Equal(t, uint64(301), ord.Sequence)
	assert.Equal(t, int64(30), ord.Price)

	assert.Equal(t, int64(0), q.orderCount())
}

func TestQueueUpdateOrderSize(t *testing.T) {
	t.Run("buy side keeps priority", func(t *testing.T) {
		q := NewBuyerQueue()
		q.insertOrder(newTestOrder(1, 10, 5), false)
		q.insertOrder(newTestOrder(2, 10, 5), false)

		q.updateOrderSize(1, 2)

		assert.Equal(t, int64(7), q.levelSize(10))
		head := q.peekHeadOrder()
		assert.Equal(t, uint64(1), head.Sequence)
		assert.Equal(t, int64(2), head.Quantity)
	})

	t.Run("sell side stays negative", func(t *testing.T) {
		q := NewSellerQueue()
		q.insertOrder(newTestOrder(1, 10, -5), false)

		q.updateOrderSize(1, 3)

		assert.Equal(t, int64(3), q.levelSize(10))
		assert.Equal(t, int64(-3), q.peekHeadOrder().Quantity)
	})

	t.Run("unknown order is ignored", func(t *testing.T) {
		q := NewSellerQueue()
		q.updateOrderSize(99, 3)
		assert.Equal(t, int64(0), q.orderCount())
	})
}

func TestQueueRemoveOrder(t *testing.T) {
	q := NewBuyerQueue()
	q.insertOrder(newTestOrder(1, 10, 1), false)
	q.insertOrder(newTestOrder(2, 10, 2), false)
	q.insertOrder(newTestOrder(3, 10, 3), false)

	q.removeOrder(10, 2)
	assert.Equal(t, int64(2), q.orderCount())
	assert.Equal(t, int64(4), q.levelSize(10))
	assert.Nil(t, q.order(2))

	q.removeOrder(10, 1)
	q.removeOrder(10, 3)
	assert.False(t, q.hasPrice(10))
	assert.Equal(t, int64(0), q.depthCount())

	// removing again is a no-op
	q.removeOrder(10, 3)
	assert.Equal(t, int64(0), q.orderCount())
}

func TestQueueDepth(t *testing.T) {
	bids := NewBuyerQueue()
	asks := NewSellerQueue()
	for i, p := range []int64{9, 8, 7, 9} {
		bids.insertOrder(newTestOrder(uint64(i+1), p, 2), false)
		asks.insertOrder(newTestOrder(uint64(i+10), p+3, -2), false)
	}

	assert.Equal(t, []DepthItem{{Price: 9, Quantity: 4}, {Price: 8, Quantity: 2}}, bids.depth(2))
	assert.Equal(t, []DepthItem{{Price: 10, Quantity: -2}, {Price: 11, Quantity: -2}, {Price: 12, Quantity: -4}}, asks.depth(0))

	price, ok := bids.bestPrice()
	assert.True(t, ok)
	assert.Equal(t, int64(9), price)

	price, ok = asks.bestPrice()
	assert.True(t, ok)
	assert.Equal(t, int64(10), price)
}

func TestQueueSnapshotAndReset(t *testing.T) {
	q := NewSellerQueue()
	q.insertOrder(newTestOrder(1, 11, -1), false)
	q.insertOrder(newTestOrder(2, 10, -2), false)
	q.insertOrder(newTestOrder(3, 11, -3), true)

	snap := q.toSnapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, uint64(2), snap[0].Sequence)
	assert.Equal(t, uint64(3), snap[1].Sequence)
	assert.Equal(t, uint64(1), snap[2].Sequence)

	q.reset()
	assert.Equal(t, int64(0), q.orderCount())
	assert.Equal(t, int64(0), q.depthCount())
	_, ok := q.bestPrice()
	assert.False(t, ok)

	q.insertOrder(newTestOrder(4, 5, -1), false)
	price, _ := q.bestPrice()
	assert.Equal(t, int64(5), price)
}
