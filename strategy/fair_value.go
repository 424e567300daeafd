package strategy

import (
	match "github.com/0x5487/market-backtester"
	"github.com/shopspring/decimal"
)

// FairValue trades one instrument around a fixed fair value. It takes the
// touch when it crosses fair and otherwise improves both sides by one tick
// when the spread is at least MinSpread.
type FairValue struct {
	Symbol    string
	Fair      decimal.Decimal
	Limit     int64
	MinSpread int64
}

func NewFairValue(symbol string, fair decimal.Decimal, limit int64) *FairValue {
	return &FairValue{
		Symbol:    symbol,
		Fair:      fair,
		Limit:     limit,
		MinSpread: DefaultMinSpread,
	}
}

func (s *FairValue) Run(state *match.TradingState) (map[string][]match.Order, int, string) {
	depth := state.OrderDepths[s.Symbol]
	bid, hasBid := depth.BestBid()
	ask, hasAsk := depth.BestAsk()
	if !hasBid || !hasAsk {
		return nil, 0, ""
	}

	maxBuy, maxSell := volumes(s.Limit, state.Position[s.Symbol])

	var orders []match.Order
	switch {
	case decimal.NewFromInt(ask).LessThan(s.Fair):
		orders = appendOrder(orders, s.Symbol, ask, maxBuy)
	case decimal.NewFromInt(bid).GreaterThan(s.Fair):
		orders = appendOrder(orders, s.Symbol, bid, maxSell)
	case ask-bid >= s.MinSpread:
		orders = appendOrder(orders, s.Symbol, bid+1, maxBuy)
		orders = appendOrder(orders, s.Symbol, ask-1, maxSell)
	}

	if len(orders) == 0 {
		return nil, 0, ""
	}
	return map[string][]match.Order{s.Symbol: orders}, 0, ""
}
