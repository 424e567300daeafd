package match

import (
	"testing"

	"github.com/0x5487/market-backtester/protocol"
	"github.com/stretchr/testify/assert"
)

func TestOrderDepthToProtocol(t *testing.T) {
	book, _ := createTestOrderBook(t)

	resp := book.Depth().ToProtocol("X", 300)

	assert.Equal(t, "X", resp.Symbol)
	assert.Equal(t, int64(300), resp.Timestamp)
	assert.Equal(t, []*protocol.DepthItem{{Price: 90, Quantity: 1}, {Price: 80, Quantity: 1}, {Price: 70, Quantity: 1}}, resp.Bids)
	assert.Equal(t, []*protocol.DepthItem{{Price: 110, Quantity: -1}, {Price: 120, Quantity: -1}, {Price: 130, Quantity: -1}}, resp.Asks)

	empty := (&OrderDepth{}).ToProtocol("Y", 0)
	assert.NotNil(t, empty.Bids)
	assert.Empty(t, empty.Bids)
	assert.Empty(t, empty.Asks)
}
