// Package strategy holds sample trading strategies for the backtester.
package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	match "github.com/0x5487/market-backtester"
	"github.com/0x5487/market-backtester/protocol"
	"github.com/shopspring/decimal"
)

// Names accepted by New.
const (
	NameFairValue     = "fair_value"
	NameMeanReversion = "mean_reversion"
	NameMulti         = "multi"
)

// DefaultMinSpread is the narrowest spread the strategies still quote inside.
const DefaultMinSpread = 5

var ErrUnknownStrategy = errors.New("unknown strategy")

var serializer protocol.Serializer = &protocol.DefaultJSONSerializer{}

// Options configures the strategies built by New.
type Options struct {
	FairValues           map[string]decimal.Decimal
	MeanReversionSymbols []string
	Window               int
	MinSpread            int64
	Limits               map[string]int64
}

// New builds the strategy called name. Multi runs every configured fair value
// and mean reversion instrument side by side.
func New(name string, opts Options) (match.Strategy, error) {
	if opts.MinSpread <= 0 {
		opts.MinSpread = DefaultMinSpread
	}

	fairValues := func() map[string]match.Strategy {
		result := make(map[string]match.Strategy, len(opts.FairValues))
		for symbol, fair := range opts.FairValues {
			fv := NewFairValue(symbol, fair, opts.Limits[symbol])
			fv.MinSpread = opts.MinSpread
			result[NameFairValue+":"+symbol] = fv
		}
		return result
	}
	meanReversions := func() map[string]match.Strategy {
		result := make(map[string]match.Strategy, len(opts.MeanReversionSymbols))
		for _, symbol := range opts.MeanReversionSymbols {
			mr := NewMeanReversion(symbol, opts.Window, opts.Limits[symbol])
			mr.MinSpread = opts.MinSpread
			result[NameMeanReversion+":"+symbol] = mr
		}
		return result
	}

	var strategies map[string]match.Strategy
	switch name {
	case NameFairValue:
		strategies = fairValues()
	case NameMeanReversion:
		strategies = meanReversions()
	case NameMulti:
		strategies = fairValues()
		for k, v := range meanReversions() {
			strategies[k] = v
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}

	if len(strategies) == 0 {
		return nil, fmt.Errorf("%w: strategy %s has no instruments", match.ErrInvalidParam, name)
	}
	return NewMulti(strategies), nil
}

// volumes returns how much can still be bought (positive) and sold (negative)
// without breaching limit.
func volumes(limit, position int64) (int64, int64) {
	return limit - position, -limit - position
}

func appendOrder(orders []match.Order, symbol string, price, quantity int64) []match.Order {
	if quantity == 0 {
		return orders
	}
	return append(orders, match.Order{Symbol: symbol, Price: price, Quantity: quantity})
}

// Multi runs several strategies and keeps each one's trader data under its
// own key.
type Multi struct {
	names      []string
	strategies map[string]match.Strategy
}

func NewMulti(strategies map[string]match.Strategy) *Multi {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Multi{
		names:      names,
		strategies: strategies,
	}
}

func (m *Multi) Run(state *match.TradingState) (map[string][]match.Order, int, string) {
	data := make(map[string]string, len(m.names))
	if state.TraderData != "" {
		if err := serializer.Unmarshal([]byte(state.TraderData), &data); err != nil {
			slog.Warn("discarding unreadable trader data", "error", err)
			data = make(map[string]string, len(m.names))
		}
	}

	orders := make(map[string][]match.Order)
	conversions := 0
	next := make(map[string]string, len(m.names))

	for _, name := range m.names {
		sub := *state
		sub.TraderData = data[name]

		subOrders, subConversions, subData := m.strategies[name].Run(&sub)
		for symbol, list := range subOrders {
			orders[symbol] = append(orders[symbol], list...)
		}
		conversions += subConversions
		if subData != "" {
			next[name] = subData
		}
	}

	encoded, err := serializer.Marshal(next)
	if err != nil {
		slog.Warn("failed to encode trader data", "error", err)
		return orders, conversions, ""
	}
	return orders, conversions, string(encoded)
}
