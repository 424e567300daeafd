package strategy

import (
	"log/slog"

	match "github.com/0x5487/market-backtester"
	"github.com/shopspring/decimal"
)

// DefaultWindow is the number of mid prices averaged by MeanReversion.
const DefaultWindow = 4

type meanReversionState struct {
	Mids []int64 `json:"mids"`
}

// MeanReversion trades one instrument against the moving average of its mid
// price. The window travels in trader data so the strategy keeps no state of
// its own between calls.
type MeanReversion struct {
	Symbol    string
	Window    int
	Limit     int64
	MinSpread int64
}

func NewMeanReversion(symbol string, window int, limit int64) *MeanReversion {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MeanReversion{
		Symbol:    symbol,
		Window:    window,
		Limit:     limit,
		MinSpread: DefaultMinSpread,
	}
}

func (s *MeanReversion) Run(state *match.TradingState) (map[string][]match.Order, int, string) {
	var st meanReversionState
	if state.TraderData != "" {
		if err := serializer.Unmarshal([]byte(state.TraderData), &st); err != nil {
			slog.Warn("discarding unreadable trader data", "symbol", s.Symbol, "error", err)
			st = meanReversionState{}
		}
	}

	depth := state.OrderDepths[s.Symbol]
	bid, hasBid := depth.BestBid()
	ask, hasAsk := depth.BestAsk()
	if !hasBid || !hasAsk {
		return nil, 0, s.encode(st)
	}

	mid := decimal.NewFromInt(bid + ask).Div(decimal.NewFromInt(2)).Round(0).IntPart()
	st.Mids = append(st.Mids, mid)
	if len(st.Mids) > s.Window {
		st.Mids = st.Mids[len(st.Mids)-s.Window:]
	}
	if len(st.Mids) < s.Window {
		return nil, 0, s.encode(st)
	}

	sum := decimal.Zero
	for _, m := range st.Mids {
		sum = sum.Add(decimal.NewFromInt(m))
	}
	average := sum.Div(decimal.NewFromInt(int64(len(st.Mids))))

	maxBuy, maxSell := volumes(s.Limit, state.Position[s.Symbol])

	var orders []match.Order
	switch {
	case decimal.NewFromInt(bid).GreaterThan(average):
		orders = appendOrder(orders, s.Symbol, bid-1, maxSell)
	case decimal.NewFromInt(ask).LessThan(average):
		orders = appendOrder(orders, s.Symbol, ask+1, maxBuy)
	case ask-bid >= s.MinSpread:
		orders = appendOrder(orders, s.Symbol, bid+1, maxBuy)
		orders = appendOrder(orders, s.Symbol, ask-1, maxSell)
	}

	if len(orders) == 0 {
		return nil, 0, s.encode(st)
	}
	return map[string][]match.Order{s.Symbol: orders}, 0, s.encode(st)
}

func (s *MeanReversion) encode(st meanReversionState) string {
	data, err := serializer.Marshal(st)
	if err != nil {
		slog.Warn("failed to encode trader data", "symbol", s.Symbol, "error", err)
		return ""
	}
	return string(data)
}
