package match

import (
	"fmt"

	"github.com/igrmk/treemap/v2"
)

// AggregatedBook maintains a simplified view of the order book,
// tracking only price levels and their net resting quantity.
// The order book drives it from its own BookLog stream, and any consumer
// of the same stream can rebuild an identical view.
// Sell quantities are stored negative.
type AggregatedBook struct {
	seqID uint64 // Last processed SequenceID for gap detection and deduplication
	ask   *treemap.TreeMap[int64, int64]
	bid   *treemap.TreeMap[int64, int64]
}

// NewAggregatedBook creates a new AggregatedBook instance with empty ask and bid sides.
func NewAggregatedBook() *AggregatedBook {
	return &AggregatedBook{
		ask: treemap.New[int64, int64](),
		bid: treemap.New[int64, int64](),
	}
}

// SequenceID returns the last processed sequence ID.
func (ab *AggregatedBook) SequenceID() uint64 {
	return ab.seqID
}

// Replay applies a BookLog event to update the aggregated book state.
// Events already seen are ignored. A gap in sequence IDs is an error because
// the view can no longer be trusted.
func (ab *AggregatedBook) Replay(log *BookLog) error {
	if ab.seqID != 0 && log.SequenceID <= ab.seqID {
		return nil
	}
	if ab.seqID != 0 && log.SequenceID != ab.seqID+1 {
		return fmt.Errorf("%w: sequence gap, expected %d got %d", ErrInvariantViolation, ab.seqID+1, log.SequenceID)
	}
	ab.seqID = log.SequenceID

	if log.Type == LogTypeReject {
		return nil
	}
	return ab.Apply(CalculateDepthChange(log))
}

// Apply adds a depth change to the view. A level is removed the moment
// its quantity reaches zero.
func (ab *AggregatedBook) Apply(change DepthChange) error {
	if change.SizeDiff == 0 {
		return nil
	}

	tree := ab.bid
	delta := change.SizeDiff
	if change.Side == Sell {
		tree = ab.ask
		delta = -delta
	}

	current, _ := tree.Get(change.Price)
	next := current + delta

	switch {
	case next == 0:
		tree.Del(change.Price)
	case (change.Side == Buy && next < 0) || (change.Side == Sell && next > 0):
		return fmt.Errorf("%w: %s level %d would go to %d", ErrInvariantViolation, change.Side, change.Price, next)
	default:
		tree.Set(change.Price, next)
	}
	return nil
}

// Reset drops every level. The sequence ID is kept so replay can continue
// across iteration boundaries.
func (ab *AggregatedBook) Reset() {
	ab.ask = treemap.New[int64, int64]()
	ab.bid = treemap.New[int64, int64]()
}

// Depth returns the aggregated quantity at a specific price level for the given side.
// Returns zero if the price level does not exist.
func (ab *AggregatedBook) Depth(side Side, price int64) int64 {
	tree := ab.bid
	if side == Sell {
		tree = ab.ask
	}
	qty, _ := tree.Get(price)
	return qty
}

// BuyOrders returns bid levels sorted by price descending.
func (ab *AggregatedBook) BuyOrders() []DepthItem {
	items := make([]DepthItem, 0, ab.bid.Len())
	for it := ab.bid.Reverse(); it.Valid(); it.Next() {
		items = append(items, DepthItem{Price: it.Key(), Quantity: it.Value()})
	}
	return items
}

// SellOrders returns ask levels sorted by price ascending, quantities negative.
func (ab *AggregatedBook) SellOrders() []DepthItem {
	items := make([]DepthItem, 0, ab.ask.Len())
	for it := ab.ask.Iterator(); it.Valid(); it.Next() {
		items = append(items, DepthItem{Price: it.Key(), Quantity: it.Value()})
	}
	return items
}

// OrderDepth returns a sorted copy of the view that callers may keep.
func (ab *AggregatedBook) OrderDepth() *OrderDepth {
	return &OrderDepth{
		BuyOrders:  ab.BuyOrders(),
		SellOrders: ab.SellOrders(),
	}
}

// BestBid returns the highest bid price in the view.
func (ab *AggregatedBook) BestBid() (int64, bool) {
	it := ab.bid.Reverse()
	if !it.Valid() {
		return 0, false
	}
	return it.Key(), true
}

// BestAsk returns the lowest ask price in the view.
func (ab *AggregatedBook) BestAsk() (int64, bool) {
	it := ab.ask.Iterator()
	if !it.Valid() {
		return 0, false
	}
	return it.Key(), true
}

// Empty reports whether both sides are empty.
func (ab *AggregatedBook) Empty() bool {
	return ab.bid.Len() == 0 && ab.ask.Len() == 0
}
