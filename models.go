package match

import (
	"github.com/0x5487/market-backtester/protocol"
	"github.com/shopspring/decimal"
)

type Side = protocol.Side

const (
	Buy  Side = protocol.SideBuy
	Sell Side = protocol.SideSell
)

// Order is a desired order as submitted by a strategy or synthesized from a
// replayed trade. Quantity is signed: positive buys, negative sells.
type Order struct {
	Symbol   string `json:"symbol"`
	Price    int64  `json:"price"`    // Max buy price or min sell price
	Quantity int64  `json:"quantity"` // Positive if buy, negative if sell
}

// Side returns Buy for positive quantities and Sell otherwise.
func (o Order) Side() Side {
	if o.Quantity > 0 {
		return Buy
	}
	return Sell
}

// DetailedOrder is an order resting in a price level queue.
// Quantity is mutated in place on partial fills.
type DetailedOrder struct {
	Order
	Owner    string `json:"owner"`
	Sequence uint64 `json:"sequence"` // Time priority within a price level

	// Intrusive linked list pointers (ignored by JSON)
	next *DetailedOrder
	prev *DetailedOrder
}

// Size returns the absolute resting quantity.
func (o *DetailedOrder) Size() int64 {
	if o.Quantity < 0 {
		return -o.Quantity
	}
	return o.Quantity
}

// Trade is one fill between a taker and a resting maker.
type Trade struct {
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Timestamp int64  `json:"timestamp"`
}

// IsAlgo reports whether the strategy is on either side of the trade.
func (t Trade) IsAlgo() bool {
	return t.Buyer == OwnerAlgo || t.Seller == OwnerAlgo
}

// DepthItem is one aggregated price level. Sell quantities are negative.
type DepthItem struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// DepthChange represents a change in the order book depth.
// SizeDiff is expressed as resting size: positive adds liquidity on Side.
type DepthChange struct {
	Side     Side
	Price    int64
	SizeDiff int64
}

// OrderDepth is the aggregated view handed to strategies.
// BuyOrders are sorted by price descending, SellOrders ascending.
type OrderDepth struct {
	BuyOrders  []DepthItem `json:"buy_orders"`
	SellOrders []DepthItem `json:"sell_orders"` // Quantities are negative
}

// BestBid returns the highest bid price.
func (d *OrderDepth) BestBid() (int64, bool) {
	if d == nil || len(d.BuyOrders) == 0 {
		return 0, false
	}
	return d.BuyOrders[0].Price, true
}

// BestAsk returns the lowest ask price.
func (d *OrderDepth) BestAsk() (int64, bool) {
	if d == nil || len(d.SellOrders) == 0 {
		return 0, false
	}
	return d.SellOrders[0].Price, true
}

// ToProtocol converts the depth into its wire representation.
func (d *OrderDepth) ToProtocol(symbol string, timestamp int64) *protocol.GetDepthResponse {
	resp := &protocol.GetDepthResponse{
		Symbol:    symbol,
		Timestamp: timestamp,
		Bids:      make([]*protocol.DepthItem, 0, len(d.BuyOrders)),
		Asks:      make([]*protocol.DepthItem, 0, len(d.SellOrders)),
	}
	for _, item := range d.BuyOrders {
		resp.Bids = append(resp.Bids, &protocol.DepthItem{Price: item.Price, Quantity: item.Quantity})
	}
	for _, item := range d.SellOrders {
		resp.Asks = append(resp.Asks, &protocol.DepthItem{Price: item.Price, Quantity: item.Quantity})
	}
	return resp
}

// Listing describes a tradeable instrument.
type Listing struct {
	Symbol       string `json:"symbol"`
	Product      string `json:"product"`
	Denomination string `json:"denomination"`
}

// ConversionObservation is the external market quote for an instrument.
type ConversionObservation struct {
	BidPrice      decimal.Decimal `json:"bid_price"`
	AskPrice      decimal.Decimal `json:"ask_price"`
	TransportFees decimal.Decimal `json:"transport_fees"`
	ExportTariff  decimal.Decimal `json:"export_tariff"`
	ImportTariff  decimal.Decimal `json:"import_tariff"`
	Sunlight      decimal.Decimal `json:"sunlight"`
	Humidity      decimal.Decimal `json:"humidity"`
}

// Observation bundles the non-book signals available at a timestamp.
type Observation struct {
	PlainValueObservations map[string]int64                 `json:"plain_value_observations"`
	ConversionObservations map[string]ConversionObservation `json:"conversion_observations"`
}

func (o Observation) clone() Observation {
	cpy := Observation{
		PlainValueObservations: make(map[string]int64, len(o.PlainValueObservations)),
		ConversionObservations: make(map[string]ConversionObservation, len(o.ConversionObservations)),
	}
	for k, v := range o.PlainValueObservations {
		cpy.PlainValueObservations[k] = v
	}
	for k, v := range o.ConversionObservations {
		cpy.ConversionObservations[k] = v
	}
	return cpy
}

// TradingState is everything a strategy sees for one iteration.
// It is rebuilt for every call and never aliases engine state.
type TradingState struct {
	TraderData   string                 `json:"trader_data"`
	Timestamp    int64                  `json:"timestamp"`
	Listings     map[string]Listing     `json:"listings"`
	OrderDepths  map[string]*OrderDepth `json:"order_depths"`
	OwnTrades    map[string][]Trade     `json:"own_trades"`   // Strategy trades since the last iteration
	MarketTrades map[string][]Trade     `json:"market_trades"` // Other participants' trades since the last iteration
	Position     map[string]int64       `json:"position"`
	Observations Observation            `json:"observations"`
}
