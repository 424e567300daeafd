package match

import "sync"

// PublishTrader receives every fill the engine produces, strategy and
// market alike, in the order they happen.
type PublishTrader interface {
	PublishTrades(...*Trade)
}

// MemoryPublishTrader stores trades in memory, useful for testing.
type MemoryPublishTrader struct {
	mu     sync.RWMutex
	Trades []*Trade
}

func NewMemoryPublishTrader() *MemoryPublishTrader {
	return &MemoryPublishTrader{
		Trades: make([]*Trade, 0),
	}
}

func (m *MemoryPublishTrader) PublishTrades(trades ...*Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, trade := range trades {
		cpy := *trade
		m.Trades = append(m.Trades, &cpy)
	}
}

func (m *MemoryPublishTrader) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Trades)
}

func (m *MemoryPublishTrader) Get(index int) *Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Trades[index]
}

// Symbol returns the stored trades of one instrument.
func (m *MemoryPublishTrader) Symbol(symbol string) []*Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Trade, 0)
	for _, trade := range m.Trades {
		if trade.Symbol == symbol {
			result = append(result, trade)
		}
	}
	return result
}

// Algo returns the stored trades the strategy took part in.
func (m *MemoryPublishTrader) Algo() []*Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Trade, 0)
	for _, trade := range m.Trades {
		if trade.IsAlgo() {
			result = append(result, trade)
		}
	}
	return result
}

type DiscardPublishTrader struct {
}

func NewDiscardPublishTrader() *DiscardPublishTrader {
	return &DiscardPublishTrader{}
}

func (p *DiscardPublishTrader) PublishTrades(trades ...*Trade) {

}
