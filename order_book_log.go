package match

import (
	"sync"

	"github.com/0x5487/market-backtester/protocol"
)

type LogType = protocol.LogType

const (
	LogTypeOpen   = protocol.LogTypeOpen
	LogTypeMatch  = protocol.LogTypeMatch
	LogTypeReject = protocol.LogTypeReject
)

type RejectReason = protocol.RejectReason

// BookLog represents an event in an order book.
// SequenceID increases by one for every event produced by the book during a run,
// across iteration resets, so a consumer can rebuild depth by replaying logs in order.
// Open and Match events change the book; Reject events do not.
type BookLog struct {
	SequenceID    uint64       `json:"seq_id"`
	TradeID       uint64       `json:"trade_id,omitempty"` // Only set for Match events
	Type          LogType      `json:"type"`
	Symbol        string       `json:"symbol"`
	Side          Side         `json:"side"` // Taker side for Match events
	Price         int64        `json:"price"`
	Size          int64        `json:"size"` // Always positive
	OrderSeq      uint64       `json:"order_seq"`
	Owner         string       `json:"owner"`
	MakerOrderSeq uint64       `json:"maker_order_seq,omitempty"`
	MakerOwner    string       `json:"maker_owner,omitempty"`
	RejectReason  RejectReason `json:"reject_reason,omitempty"`
	Timestamp     int64        `json:"timestamp"` // Logical clock, not wall time
}

var bookLogPool = sync.Pool{
	New: func() any {
		return new(BookLog)
	},
}

func acquireBookLog() *BookLog {
	return bookLogPool.Get().(*BookLog)
}

func releaseBookLog(log *BookLog) {
	*log = BookLog{}
	bookLogPool.Put(log)
}

func NewOpenLog(seqID uint64, order *DetailedOrder, ts int64) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeOpen
	log.Symbol = order.Symbol
	log.Side = order.Side()
	log.Price = order.Price
	log.Size = order.Size()
	log.OrderSeq = order.Sequence
	log.Owner = order.Owner
	log.Timestamp = ts
	return log
}

func NewMatchLog(seqID, tradeID uint64, taker *DetailedOrder, maker *DetailedOrder, size int64, ts int64) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.TradeID = tradeID
	log.Type = LogTypeMatch
	log.Symbol = taker.Symbol
	log.Side = taker.Side()
	log.Price = maker.Price
	log.Size = size
	log.OrderSeq = taker.Sequence
	log.Owner = taker.Owner
	log.MakerOrderSeq = maker.Sequence
	log.MakerOwner = maker.Owner
	log.Timestamp = ts
	return log
}

func NewRejectLog(seqID uint64, order Order, owner string, reason RejectReason, ts int64) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeReject
	log.Symbol = order.Symbol
	log.Side = order.Side()
	log.Price = order.Price
	log.Size = absInt64(order.Quantity)
	log.Owner = owner
	log.RejectReason = reason
	log.Timestamp = ts
	return log
}
