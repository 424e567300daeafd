package match

import (
	"context"
	"sort"
)

// PriceQuantity is one quoted level. Quantity is always positive here; the
// book stores asks negative.
type PriceQuantity struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// Quote is the best-of-book ladder for one instrument at one timestamp,
// best level first.
type Quote struct {
	Timestamp int64           `json:"timestamp"`
	Symbol    string          `json:"symbol"`
	Bids      []PriceQuantity `json:"bids"`
	Asks      []PriceQuantity `json:"asks"`
}

// MarketTrade is a historical print between two other participants.
type MarketTrade struct {
	Timestamp int64  `json:"timestamp"`
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
}

// Feed supplies market data by exact timestamp.
type Feed interface {
	Quotes(ctx context.Context, ts int64) ([]Quote, error)
	Trades(ctx context.Context, ts int64) ([]MarketTrade, error)
}

// ObservationFeed is implemented by feeds that also carry observations.
type ObservationFeed interface {
	Observations(ctx context.Context, ts int64) (Observation, error)
}

// MemoryFeed is a Feed held in memory and indexed by timestamp.
type MemoryFeed struct {
	quotes       map[int64][]Quote
	trades       map[int64][]MarketTrade
	observations map[int64]Observation
}

// NewMemoryFeed creates an empty MemoryFeed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		quotes:       make(map[int64][]Quote),
		trades:       make(map[int64][]MarketTrade),
		observations: make(map[int64]Observation),
	}
}

// AddQuote appends a quote row.
func (f *MemoryFeed) AddQuote(q Quote) {
	f.quotes[q.Timestamp] = append(f.quotes[q.Timestamp], q)
}

// AddTrade appends a trade row.
func (f *MemoryFeed) AddTrade(t MarketTrade) {
	f.trades[t.Timestamp] = append(f.trades[t.Timestamp], t)
}

// AddPlainObservation records a plain numeric signal.
func (f *MemoryFeed) AddPlainObservation(ts int64, name string, value int64) {
	obs := f.observation(ts)
	obs.PlainValueObservations[name] = value
	f.observations[ts] = obs
}

// AddConversionObservation records the external market quote for symbol.
func (f *MemoryFeed) AddConversionObservation(ts int64, symbol string, conv ConversionObservation) {
	obs := f.observation(ts)
	obs.ConversionObservations[symbol] = conv
	f.observations[ts] = obs
}

func (f *MemoryFeed) observation(ts int64) Observation {
	obs, ok := f.observations[ts]
	if !ok {
		obs = Observation{
			PlainValueObservations: make(map[string]int64),
			ConversionObservations: make(map[string]ConversionObservation),
		}
	}
	return obs
}

func (f *MemoryFeed) Quotes(_ context.Context, ts int64) ([]Quote, error) {
	return f.quotes[ts], nil
}

func (f *MemoryFeed) Trades(_ context.Context, ts int64) ([]MarketTrade, error) {
	return f.trades[ts], nil
}

func (f *MemoryFeed) Observations(_ context.Context, ts int64) (Observation, error) {
	return f.observation(ts).clone(), nil
}

// Timestamps returns every timestamp that has quotes, ascending.
func (f *MemoryFeed) Timestamps() []int64 {
	result := make([]int64, 0, len(f.quotes))
	for ts := range f.quotes {
		result = append(result, ts)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Symbols returns every instrument seen in quotes or trades, sorted.
func (f *MemoryFeed) Symbols() []string {
	seen := make(map[string]struct{})
	for _, rows := range f.quotes {
		for _, q := range rows {
			seen[q.Symbol] = struct{}{}
		}
	}
	for _, rows := range f.trades {
		for _, t := range rows {
			seen[t.Symbol] = struct{}{}
		}
	}

	result := make([]string, 0, len(seen))
	for s := range seen {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}
