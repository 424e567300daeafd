package match

import (
	"fmt"
	"sync/atomic"

	"github.com/0x5487/market-backtester/protocol"
)

// OrderBookOption configures an OrderBook.
type OrderBookOption func(*OrderBook)

// WithSequencer shares an order sequence counter between books so that
// sequence numbers are unique across the whole run.
func WithSequencer(seq *atomic.Uint64) OrderBookOption {
	return func(book *OrderBook) {
		book.orderSeq = seq
	}
}

// WithInvariantChecks toggles the consistency checks run after every batch.
func WithInvariantChecks(enabled bool) OrderBookOption {
	return func(book *OrderBook) {
		book.verify = enabled
	}
}

// OrderBookSnapshot contains the full state of a single OrderBook.
type OrderBookSnapshot struct {
	Symbol    string          `json:"symbol"`
	SeqID     uint64          `json:"seq_id"`   // Current BookLog sequence ID
	TradeID   uint64          `json:"trade_id"` // Current Trade sequence ID
	Timestamp int64           `json:"timestamp"`
	Bids      []DetailedOrder `json:"bids"` // Ordered list of bids (best price first)
	Asks      []DetailedOrder `json:"asks"` // Ordered list of asks (best price first)
}

// OrderBook holds the resting orders of one instrument and the aggregated
// depth view derived from them. It is not safe for concurrent use; the
// engine drives it from a single goroutine.
type OrderBook struct {
	symbol     string
	seqID      atomic.Uint64  // BookLog sequence, never reset during a run
	tradeID    atomic.Uint64  // Only incremented for Match events
	orderSeq   *atomic.Uint64 // Order sequence (time priority)
	bidQueue   *queue
	askQueue   *queue
	aggregated *AggregatedBook
	publishLog PublishLog
	verify     bool
}

// NewOrderBook creates a new order book instance.
func NewOrderBook(symbol string, publishLog PublishLog, opts ...OrderBookOption) *OrderBook {
	if publishLog == nil {
		publishLog = NewDiscardPublishLog()
	}

	book := &OrderBook{
		symbol:     symbol,
		orderSeq:   new(atomic.Uint64),
		bidQueue:   NewBuyerQueue(),
		askQueue:   NewSellerQueue(),
		aggregated: NewAggregatedBook(),
		publishLog: publishLog,
		verify:     true,
	}

	for _, opt := range opts {
		opt(book)
	}

	return book
}

// Symbol returns the instrument this book trades.
func (book *OrderBook) Symbol() string {
	return book.symbol
}

// Seed rests a quote at the back of its price level without matching.
// Quantity is signed. Returns false when the quote was not inserted: a
// zero quantity is ignored, while a non-positive price or a quote that would
// cross the opposite side is rejected.
func (book *OrderBook) Seed(price, quantity int64, owner string, ts int64) (bool, error) {
	if quantity == 0 {
		return false, nil
	}

	order := Order{Symbol: book.symbol, Price: price, Quantity: quantity}
	reason := protocol.RejectReasonNone
	switch {
	case price <= 0:
		reason = protocol.RejectReasonInvalidPrice
	case quantity > 0 && book.crossesAsk(price):
		reason = protocol.RejectReasonCrossedQuote
	case quantity < 0 && book.crossesBid(price):
		reason = protocol.RejectReasonCrossedQuote
	}

	var log *BookLog
	if reason != protocol.RejectReasonNone {
		log = NewRejectLog(book.seqID.Add(1), order, owner, reason, ts)
	} else {
		ord := &DetailedOrder{Order: order, Owner: owner, Sequence: book.orderSeq.Add(1)}
		book.queueFor(ord.Side()).insertOrder(ord, false)
		log = NewOpenLog(book.seqID.Add(1), ord, ts)
	}

	err := book.aggregated.Replay(log)
	book.publishLog.Publish(log)
	releaseBookLog(log)

	return reason == protocol.RejectReasonNone && err == nil, err
}

// Reject records orders that were refused before reaching the book.
func (book *OrderBook) Reject(orders []Order, owner string, reason RejectReason, ts int64) error {
	if len(orders) == 0 {
		return nil
	}

	logs := make([]*BookLog, 0, len(orders))
	defer func() {
		book.publishLog.Publish(logs...)
		for _, log := range logs {
			releaseBookLog(log)
		}
	}()

	for _, o := range orders {
		o.Symbol = book.symbol
		log := NewRejectLog(book.seqID.Add(1), o, owner, reason, ts)
		logs = append(logs, log)
		if err := book.aggregated.Replay(log); err != nil {
			return err
		}
	}
	return nil
}

// Match crosses each order against the resting opposite side in turn, best
// price first and oldest sequence first within a price. An unfilled
// remainder rests at the front of its own price level under a fresh
// sequence number, unless its price is not positive, in which case the
// remainder is rejected. Every fill is returned as a Trade with the incoming
// order's owner as the taker.
func (book *OrderBook) Match(orders []Order, owner string, ts int64) ([]Trade, error) {
	logs := make([]*BookLog, 0, 8)
	trades := make([]Trade, 0, len(orders))

	defer func() {
		if len(logs) > 0 {
			book.publishLog.Publish(logs...)
			for _, log := range logs {
				releaseBookLog(log)
			}
		}
	}()

	for _, o := range orders {
		if o.Quantity == 0 {
			continue
		}
		o.Symbol = book.symbol

		var err error
		trades, logs, err = book.matchOrder(o, owner, ts, trades, logs)
		if err != nil {
			return trades, err
		}
	}

	if book.verify {
		if err := book.Verify(); err != nil {
			return trades, err
		}
	}

	return trades, nil
}

func (book *OrderBook) matchOrder(o Order, owner string, ts int64, trades []Trade, logs []*BookLog) ([]Trade, []*BookLog, error) {
	taker := &DetailedOrder{Order: o, Owner: owner, Sequence: book.orderSeq.Add(1)}
	side := taker.Side()

	myQueue := book.queueFor(side)
	targetQueue := book.queueFor(oppositeSide(side))

	var filled int64
	for taker.Quantity != 0 {
		// Peek first to check if matching is possible
		maker := targetQueue.peekHeadOrder()
		if maker == nil {
			break
		}
		if side == Buy && taker.Price < maker.Price ||
			side == Sell && taker.Price > maker.Price {
			break
		}

		fill := minInt64(taker.Size(), maker.Size())

		log := NewMatchLog(book.seqID.Add(1), book.tradeID.Add(1), taker, maker, fill, ts)
		logs = append(logs, log)

		trade := Trade{
			Symbol:    book.symbol,
			Price:     maker.Price,
			Quantity:  fill,
			Timestamp: ts,
		}
		if side == Buy {
			trade.Buyer, trade.Seller = taker.Owner, maker.Owner
			taker.Quantity -= fill
		} else {
			trade.Buyer, trade.Seller = maker.Owner, taker.Owner
			taker.Quantity += fill
		}
		trades = append(trades, trade)

		if fill == maker.Size() {
			targetQueue.popHeadOrder()
		} else {
			// Maker keeps its place at the head of the level.
			targetQueue.updateOrderSize(maker.Sequence, maker.Size()-fill)
		}

		if err := book.aggregated.Replay(log); err != nil {
			return trades, logs, err
		}
		filled += fill
	}

	var rested, dropped int64
	switch {
	case taker.Quantity == 0:
	case taker.Price <= 0:
		// A non-positive price may cross but never rests.
		dropped = taker.Size()
		remainder := Order{Symbol: book.symbol, Price: taker.Price, Quantity: taker.Quantity}
		log := NewRejectLog(book.seqID.Add(1), remainder, owner, protocol.RejectReasonInvalidPrice, ts)
		logs = append(logs, log)
		if err := book.aggregated.Replay(log); err != nil {
			return trades, logs, err
		}
	default:
		rested = taker.Size()
		taker.Sequence = book.orderSeq.Add(1)
		myQueue.insertOrder(taker, true)

		log := NewOpenLog(book.seqID.Add(1), taker, ts)
		logs = append(logs, log)
		if err := book.aggregated.Replay(log); err != nil {
			return trades, logs, err
		}
	}

	if filled+rested+dropped != absInt64(o.Quantity) {
		return trades, logs, fmt.Errorf("%w: %s order %d@%d filled %d rested %d dropped %d",
			ErrInvariantViolation, book.symbol, o.Quantity, o.Price, filled, rested, dropped)
	}

	return trades, logs, nil
}

// Verify checks that the aggregated view matches the queues level by level
// and that the book is not crossed.
func (book *OrderBook) Verify() error {
	if err := compareLevels(book.symbol, Buy, book.bidQueue.depth(0), book.aggregated.BuyOrders()); err != nil {
		return err
	}
	if err := compareLevels(book.symbol, Sell, book.askQueue.depth(0), book.aggregated.SellOrders()); err != nil {
		return err
	}

	bid, hasBid := book.bidQueue.bestPrice()
	ask, hasAsk := book.askQueue.bestPrice()
	if hasBid && hasAsk && bid >= ask {
		return fmt.Errorf("%w: %s book crossed, bid %d ask %d", ErrInvariantViolation, book.symbol, bid, ask)
	}

	return nil
}

func compareLevels(symbol string, side Side, queued, aggregated []DepthItem) error {
	if len(queued) != len(aggregated) {
		return fmt.Errorf("%w: %s %s side has %d levels but view has %d",
			ErrInvariantViolation, symbol, side, len(queued), len(aggregated))
	}
	for i := range queued {
		if queued[i] != aggregated[i] {
			return fmt.Errorf("%w: %s %s level %d holds %d but view has %d@%d",
				ErrInvariantViolation, symbol, side, queued[i].Price, queued[i].Quantity, aggregated[i].Quantity, aggregated[i].Price)
		}
	}
	return nil
}

// Reset discards every resting order and the aggregated view.
// Sequence counters keep running.
func (book *OrderBook) Reset() {
	book.bidQueue.reset()
	book.askQueue.reset()
	book.aggregated.Reset()
}

// Depth returns a sorted copy of the aggregated view.
func (book *OrderBook) Depth() *OrderDepth {
	return book.aggregated.OrderDepth()
}

// BestBid returns the highest resting bid.
func (book *OrderBook) BestBid() (int64, bool) {
	return book.bidQueue.bestPrice()
}

// BestAsk returns the lowest resting ask.
func (book *OrderBook) BestAsk() (int64, bool) {
	return book.askQueue.bestPrice()
}

// HasBidLevel reports whether any bid rests at price.
func (book *OrderBook) HasBidLevel(price int64) bool {
	return book.bidQueue.hasPrice(price)
}

// HasAskLevel reports whether any ask rests at price.
func (book *OrderBook) HasAskLevel(price int64) bool {
	return book.askQueue.hasPrice(price)
}

// Stats returns usage statistics for the order book.
func (book *OrderBook) Stats() *protocol.GetStatsResponse {
	return &protocol.GetStatsResponse{
		AskDepthCount: book.askQueue.depthCount(),
		AskOrderCount: book.askQueue.orderCount(),
		BidDepthCount: book.bidQueue.depthCount(),
		BidOrderCount: book.bidQueue.orderCount(),
	}
}

// Snapshot captures the resting orders in priority order.
func (book *OrderBook) Snapshot(ts int64) *OrderBookSnapshot {
	return &OrderBookSnapshot{
		Symbol:    book.symbol,
		SeqID:     book.seqID.Load(),
		TradeID:   book.tradeID.Load(),
		Timestamp: ts,
		Bids:      book.bidQueue.toSnapshot(),
		Asks:      book.askQueue.toSnapshot(),
	}
}

func (book *OrderBook) queueFor(side Side) *queue {
	if side == Buy {
		return book.bidQueue
	}
	return book.askQueue
}

func (book *OrderBook) crossesAsk(price int64) bool {
	ask, ok := book.askQueue.bestPrice()
	return ok && price >= ask
}

func (book *OrderBook) crossesBid(price int64) bool {
	bid, ok := book.bidQueue.bestPrice()
	return ok && price <= bid
}
