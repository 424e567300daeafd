package match

// Strategy decides which orders to send for the current iteration.
//
// Run receives a fresh TradingState that it may keep or modify freely. It
// returns the desired orders per instrument, a conversion request and an
// opaque state string that is handed back as TradingState.TraderData on the
// next call. Orders for instruments that are not configured are dropped.
type Strategy interface {
	Run(state *TradingState) (orders map[string][]Order, conversions int, traderData string)
}

// StrategyFunc adapts an ordinary function to the Strategy interface.
type StrategyFunc func(state *TradingState) (map[string][]Order, int, string)

// Run calls f(state).
func (f StrategyFunc) Run(state *TradingState) (map[string][]Order, int, string) {
	return f(state)
}
