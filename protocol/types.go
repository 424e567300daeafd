package protocol

// DepthItem is the wire form of one aggregated price level.
type DepthItem struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// GetDepthResponse represents the aggregated depth of one instrument.
type GetDepthResponse struct {
	Symbol    string       `json:"symbol"`
	Timestamp int64        `json:"timestamp"`
	Bids      []*DepthItem `json:"bids"`
	Asks      []*DepthItem `json:"asks"`
}

// GetStatsResponse contains statistics about the order book queues.
type GetStatsResponse struct {
	AskDepthCount int64 `json:"ask_depth_count"`
	AskOrderCount int64 `json:"ask_order_count"`
	BidDepthCount int64 `json:"bid_depth_count"`
	BidOrderCount int64 `json:"bid_order_count"`
}

// Side represents the order side (Buy/Sell).
type Side int8

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// LogType represents the type of event log.
type LogType string

const (
	LogTypeOpen   LogType = "open"
	LogTypeMatch  LogType = "match"
	LogTypeReject LogType = "reject"
)

// RejectReason represents the reason why an order was rejected.
type RejectReason string

const (
	RejectReasonNone          RejectReason = ""
	RejectReasonPositionLimit RejectReason = "position_limit" // Batch side would breach the position limit
	RejectReasonInvalidPrice  RejectReason = "invalid_price"  // Zero or negative limit price
	RejectReasonUnknownSymbol RejectReason = "unknown_symbol" // Instrument is not configured for this run
	RejectReasonCrossedQuote  RejectReason = "crossed_quote"  // Seeded quote would cross the opposite side
)
