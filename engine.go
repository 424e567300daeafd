package match

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/0x5487/market-backtester/protocol"
	"github.com/rs/xid"
)

// Phase is the orchestrator state within one iteration.
type Phase string

const (
	PhaseBuildBook     Phase = "build_book"
	PhaseStrategyMatch Phase = "strategy_match"
	PhaseReplayTrades  Phase = "replay_trades"
	PhaseAccount       Phase = "account"
	PhaseSettled       Phase = "settled"
)

// EngineOption configures a MatchingEngine.
type EngineOption func(*MatchingEngine)

// WithPublishLog sets the sink receiving every book log.
func WithPublishLog(p PublishLog) EngineOption {
	return func(e *MatchingEngine) {
		e.publishLog = p
	}
}

// WithPublishTrader sets the sink receiving every fill.
func WithPublishTrader(p PublishTrader) EngineOption {
	return func(e *MatchingEngine) {
		e.publishTrader = p
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) EngineOption {
	return func(e *MatchingEngine) {
		e.runID = id
	}
}

// SymbolResult is the final outcome for one instrument.
type SymbolResult struct {
	Position         int64 `json:"position"`
	RealizedPnL      int64 `json:"realized_pnl"` // Cash flow from fills only
	SettlementPrice  int64 `json:"settlement_price"`
	Marked           bool  `json:"marked"` // False when no price was available to mark the position
	PnL              int64 `json:"pnl"`    // Realized plus mark-to-market
	OwnTradeCount    int   `json:"own_trade_count"`
	MarketTradeCount int   `json:"market_trade_count"`
}

// Result is the outcome of a finished run.
type Result struct {
	RunID          string                  `json:"run_id"`
	Iterations     int                     `json:"iterations"`
	FinalTimestamp int64                   `json:"final_timestamp"`
	Conversions    int                     `json:"conversions"`
	Symbols        map[string]SymbolResult `json:"symbols"`
	TotalPnL       int64                   `json:"total_pnl"`
}

// MatchingEngine replays market data against one order book per instrument,
// lets a strategy trade against it and keeps the strategy's position and PnL.
// It runs on the caller's goroutine and is not safe for concurrent use.
type MatchingEngine struct {
	runID    string
	cfg      Config
	symbols  []string
	strategy Strategy
	feed     Feed

	books    map[string]*OrderBook
	orderSeq atomic.Uint64

	positions    map[string]int64
	cash         map[string]int64
	ownTrades    map[string][]Trade
	marketTrades map[string][]Trade
	ownCount     map[string]int
	marketCount  map[string]int
	lastBid      map[string]int64
	lastAsk      map[string]int64
	traderData   string
	observations Observation
	conversions  int

	timestamp int64
	iteration int
	phase     Phase
	result    *Result

	publishLog    PublishLog
	publishTrader PublishTrader
}

// NewMatchingEngine creates an engine ready to run cfg.Iterations iterations.
func NewMatchingEngine(cfg Config, strategy Strategy, feed Feed, opts ...EngineOption) (*MatchingEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strategy == nil || feed == nil {
		return nil, fmt.Errorf("%w: strategy and feed are required", ErrInvalidParam)
	}

	cfg = cfg.clone()
	e := &MatchingEngine{
		runID:         xid.New().String(),
		cfg:           cfg,
		symbols:       cfg.Symbols(),
		strategy:      strategy,
		feed:          feed,
		books:         make(map[string]*OrderBook, len(cfg.PositionLimits)),
		positions:     make(map[string]int64, len(cfg.PositionLimits)),
		cash:          make(map[string]int64, len(cfg.PositionLimits)),
		ownCount:      make(map[string]int, len(cfg.PositionLimits)),
		marketCount:   make(map[string]int, len(cfg.PositionLimits)),
		lastBid:       make(map[string]int64, len(cfg.PositionLimits)),
		lastAsk:       make(map[string]int64, len(cfg.PositionLimits)),
		timestamp:     cfg.StartTimestamp,
		phase:         PhaseBuildBook,
		publishLog:    NewDiscardPublishLog(),
		publishTrader: NewDiscardPublishTrader(),
	}

	for _, opt := range opts {
		opt(e)
	}

	for _, symbol := range e.symbols {
		e.books[symbol] = NewOrderBook(symbol, e.publishLog,
			WithSequencer(&e.orderSeq),
			WithInvariantChecks(cfg.VerifyInvariants),
		)
		e.positions[symbol] = 0
		e.cash[symbol] = 0
	}
	e.ownTrades = e.emptyTrades()
	e.marketTrades = e.emptyTrades()
	e.observations = Observation{
		PlainValueObservations: make(map[string]int64),
		ConversionObservations: make(map[string]ConversionObservation),
	}

	return e, nil
}

// Run executes every remaining iteration and returns the settled result.
func (e *MatchingEngine) Run(ctx context.Context) (*Result, error) {
	logger.Info("backtest started",
		"run_id", e.runID,
		"iterations", e.cfg.Iterations,
		"symbols", e.symbols,
		"start_timestamp", e.cfg.StartTimestamp,
	)

	for e.phase != PhaseSettled {
		if err := e.RunIteration(ctx); err != nil {
			logger.Error("backtest aborted", "run_id", e.runID, "timestamp", e.timestamp, "error", err)
			return nil, err
		}
	}

	logger.Info("backtest finished",
		"run_id", e.runID,
		"final_timestamp", e.result.FinalTimestamp,
		"total_pnl", e.result.TotalPnL,
	)

	return e.result, nil
}

// RunIteration processes the current timestamp: seed the books from the
// feed, run the strategy, replay historical trades and account. On the last
// iteration positions are settled; otherwise the books are discarded and the
// clock advances by one tick.
func (e *MatchingEngine) RunIteration(ctx context.Context) error {
	if e.phase == PhaseSettled {
		return ErrRunFinished
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.phase = PhaseBuildBook
	if err := e.buildBook(ctx); err != nil {
		return err
	}

	e.phase = PhaseStrategyMatch
	if err := e.runAlgo(); err != nil {
		return err
	}

	e.phase = PhaseReplayTrades
	if err := e.replayTrades(ctx); err != nil {
		return err
	}

	e.phase = PhaseAccount
	e.updatePnL()

	if e.timestamp >= e.cfg.LastTimestamp() {
		e.settle()
		return nil
	}

	e.advance()
	return nil
}

// buildBook seeds every book with the quoted levels for the current timestamp.
func (e *MatchingEngine) buildBook(ctx context.Context) error {
	quotes, err := e.feed.Quotes(ctx, e.timestamp)
	if err != nil {
		return fmt.Errorf("load quotes at %d: %w", e.timestamp, err)
	}

	for _, q := range quotes {
		book, ok := e.books[q.Symbol]
		if !ok {
			logger.Warn("quote for unknown symbol", "symbol", q.Symbol, "timestamp", e.timestamp,
				"reason", protocol.RejectReasonUnknownSymbol)
			continue
		}

		for i, level := range q.Bids {
			if i >= e.cfg.QuoteLevels {
				break
			}
			if level.Quantity <= 0 {
				continue
			}
			if _, err := book.Seed(level.Price, level.Quantity, OwnerMarket, e.timestamp); err != nil {
				return err
			}
		}

		for i, level := range q.Asks {
			if i >= e.cfg.QuoteLevels {
				break
			}
			if level.Quantity <= 0 {
				continue
			}
			if _, err := book.Seed(level.Price, -level.Quantity, OwnerMarket, e.timestamp); err != nil {
				return err
			}
		}
	}

	if of, ok := e.feed.(ObservationFeed); ok {
		obs, err := of.Observations(ctx, e.timestamp)
		if err != nil {
			return fmt.Errorf("load observations at %d: %w", e.timestamp, err)
		}
		e.observations = obs
	}

	return nil
}

// runAlgo hands the strategy a fresh state, gates its orders by position
// limit and crosses them against the books.
func (e *MatchingEngine) runAlgo() error {
	state := e.tradingState()
	orders, conversions, traderData := e.strategy.Run(state)
	e.traderData = traderData
	e.conversions += conversions

	// The strategy has seen the previous iteration's trades.
	e.ownTrades = e.emptyTrades()
	e.marketTrades = e.emptyTrades()

	for symbol := range orders {
		if _, ok := e.books[symbol]; !ok {
			logger.Warn("strategy ordered unknown symbol", "symbol", symbol, "timestamp", e.timestamp,
				"reason", protocol.RejectReasonUnknownSymbol)
		}
	}

	for _, symbol := range e.symbols {
		batch := orders[symbol]
		if len(batch) == 0 {
			continue
		}
		book := e.books[symbol]

		accepted, rejected := CheckPositionLimit(e.positions[symbol], e.cfg.PositionLimits[symbol], batch)
		if len(rejected) > 0 {
			logger.Debug("orders rejected by position limit",
				"symbol", symbol,
				"timestamp", e.timestamp,
				"position", e.positions[symbol],
				"rejected", len(rejected),
			)
			if err := book.Reject(rejected, OwnerAlgo, protocol.RejectReasonPositionLimit, e.timestamp); err != nil {
				return err
			}
		}

		trades, err := book.Match(accepted, OwnerAlgo, e.timestamp)
		e.recordTrades(trades)
		if err != nil {
			return err
		}
	}

	return nil
}

// replayTrades turns each historical print into aggressor orders. Every
// synthesized order is decided against the book as it stands before any of
// them is matched: a print at a resting bid becomes a sell, one at a resting
// ask becomes a buy, and anything else becomes a sell followed by a buy.
func (e *MatchingEngine) replayTrades(ctx context.Context) error {
	prints, err := e.feed.Trades(ctx, e.timestamp)
	if err != nil {
		return fmt.Errorf("load trades at %d: %w", e.timestamp, err)
	}

	replay := make(map[string][]Order, len(e.symbols))
	for _, symbol := range e.symbols {
		replay[symbol] = make([]Order, 0)
	}

	for _, p := range prints {
		book, ok := e.books[p.Symbol]
		if !ok {
			logger.Warn("trade for unknown symbol", "symbol", p.Symbol, "timestamp", e.timestamp,
				"reason", protocol.RejectReasonUnknownSymbol)
			continue
		}
		if p.Quantity <= 0 || p.Price <= 0 {
			logger.Debug("skipping malformed print", "symbol", p.Symbol, "timestamp", e.timestamp,
				"price", p.Price, "quantity", p.Quantity)
			continue
		}

		buy := Order{Symbol: p.Symbol, Price: p.Price, Quantity: p.Quantity}
		sell := Order{Symbol: p.Symbol, Price: p.Price, Quantity: -p.Quantity}

		switch {
		case book.HasBidLevel(p.Price):
			replay[p.Symbol] = append(replay[p.Symbol], sell)
		case book.HasAskLevel(p.Price):
			replay[p.Symbol] = append(replay[p.Symbol], buy)
		default:
			replay[p.Symbol] = append(replay[p.Symbol], sell, buy)
		}
	}

	for _, symbol := range e.symbols {
		trades, err := e.books[symbol].Match(replay[symbol], OwnerMarket, e.timestamp)
		e.recordTrades(trades)
		if err != nil {
			return err
		}
	}

	return nil
}

// recordTrades applies fills to positions and files them as own or market trades.
func (e *MatchingEngine) recordTrades(trades []Trade) {
	if len(trades) == 0 {
		return
	}

	published := make([]*Trade, 0, len(trades))
	for i := range trades {
		trade := trades[i]
		published = append(published, &trade)

		if !trade.IsAlgo() {
			e.marketTrades[trade.Symbol] = append(e.marketTrades[trade.Symbol], trade)
			e.marketCount[trade.Symbol]++
			continue
		}

		if trade.Buyer == OwnerAlgo {
			e.positions[trade.Symbol] += trade.Quantity
		}
		if trade.Seller == OwnerAlgo {
			e.positions[trade.Symbol] -= trade.Quantity
		}
		e.ownTrades[trade.Symbol] = append(e.ownTrades[trade.Symbol], trade)
		e.ownCount[trade.Symbol]++
	}

	e.publishTrader.PublishTrades(published...)
}

// updatePnL books the cash flow of this iteration's own trades.
func (e *MatchingEngine) updatePnL() {
	for _, symbol := range e.symbols {
		for _, trade := range e.ownTrades[symbol] {
			notional := trade.Price * trade.Quantity
			if trade.Seller == OwnerAlgo {
				e.cash[symbol] += notional
			}
			if trade.Buyer == OwnerAlgo {
				e.cash[symbol] -= notional
			}
		}

		if bid, ok := e.books[symbol].BestBid(); ok {
			e.lastBid[symbol] = bid
		}
		if ask, ok := e.books[symbol].BestAsk(); ok {
			e.lastAsk[symbol] = ask
		}

		logger.Debug("iteration pnl",
			"symbol", symbol,
			"timestamp", e.timestamp,
			"position", e.positions[symbol],
			"realized_pnl", e.cash[symbol],
		)
	}
}

// settle marks every position to the final book: longs at the best bid,
// shorts at the best ask.
func (e *MatchingEngine) settle() {
	result := &Result{
		RunID:          e.runID,
		Iterations:     e.iteration + 1,
		FinalTimestamp: e.timestamp,
		Conversions:    e.conversions,
		Symbols:        make(map[string]SymbolResult, len(e.symbols)),
	}

	for _, symbol := range e.symbols {
		book := e.books[symbol]
		position := e.positions[symbol]

		var price int64
		var ok bool
		if position >= 0 {
			price, ok = book.BestBid()
			if !ok {
				price, ok = e.lastBid[symbol]
			}
		} else {
			price, ok = book.BestAsk()
			if !ok {
				price, ok = e.lastAsk[symbol]
			}
		}

		sr := SymbolResult{
			Position:         position,
			RealizedPnL:      e.cash[symbol],
			PnL:              e.cash[symbol],
			OwnTradeCount:    e.ownCount[symbol],
			MarketTradeCount: e.marketCount[symbol],
		}
		if ok {
			sr.SettlementPrice = price
			sr.Marked = true
			sr.PnL += position * price
		} else if position != 0 {
			logger.Warn("no price to settle position", "symbol", symbol, "position", position)
		}

		e.cash[symbol] = sr.PnL
		result.Symbols[symbol] = sr
		result.TotalPnL += sr.PnL
	}

	e.result = result
	e.phase = PhaseSettled
}

// advance discards all resting liquidity and moves the clock forward.
func (e *MatchingEngine) advance() {
	for _, book := range e.books {
		book.Reset()
	}
	e.timestamp += e.cfg.TickSize
	e.iteration++
	e.phase = PhaseBuildBook
}

// tradingState builds the strategy's view. Nothing in it aliases engine state.
func (e *MatchingEngine) tradingState() *TradingState {
	state := &TradingState{
		TraderData:   e.traderData,
		Timestamp:    e.timestamp,
		Listings:     make(map[string]Listing, len(e.symbols)),
		OrderDepths:  make(map[string]*OrderDepth, len(e.symbols)),
		OwnTrades:    make(map[string][]Trade, len(e.symbols)),
		MarketTrades: make(map[string][]Trade, len(e.symbols)),
		Position:     make(map[string]int64, len(e.symbols)),
		Observations: e.observations.clone(),
	}

	for _, symbol := range e.symbols {
		state.Listings[symbol] = Listing{Symbol: symbol, Product: symbol, Denomination: e.cfg.Denomination}
		state.OrderDepths[symbol] = e.books[symbol].Depth()
		state.OwnTrades[symbol] = append([]Trade(nil), e.ownTrades[symbol]...)
		state.MarketTrades[symbol] = append([]Trade(nil), e.marketTrades[symbol]...)
		state.Position[symbol] = e.positions[symbol]
	}

	return state
}

func (e *MatchingEngine) emptyTrades() map[string][]Trade {
	trades := make(map[string][]Trade, len(e.symbols))
	for _, symbol := range e.symbols {
		trades[symbol] = make([]Trade, 0)
	}
	return trades
}

// RunID returns the run identifier.
func (e *MatchingEngine) RunID() string {
	return e.runID
}

// Result returns the settled outcome, or ErrRunNotFinished before the final iteration.
func (e *MatchingEngine) Result() (*Result, error) {
	if e.result == nil {
		return nil, ErrRunNotFinished
	}
	return e.result, nil
}

// OrderBook returns the book for symbol, or nil when it is not configured.
func (e *MatchingEngine) OrderBook(symbol string) *OrderBook {
	return e.books[symbol]
}

// Depth returns the aggregated depth for symbol.
func (e *MatchingEngine) Depth(symbol string) (*OrderDepth, error) {
	book, ok := e.books[symbol]
	if !ok {
		return nil, ErrNotFound
	}
	return book.Depth(), nil
}

// Position returns the strategy's current position in symbol.
func (e *MatchingEngine) Position(symbol string) int64 {
	return e.positions[symbol]
}

// PnL returns the realized PnL for symbol, including the mark once settled.
func (e *MatchingEngine) PnL(symbol string) int64 {
	return e.cash[symbol]
}

// Timestamp returns the logical time of the current iteration.
func (e *MatchingEngine) Timestamp() int64 {
	return e.timestamp
}

// Iteration returns the zero-based index of the current iteration.
func (e *MatchingEngine) Iteration() int {
	return e.iteration
}

// Phase returns the orchestrator state.
func (e *MatchingEngine) Phase() Phase {
	return e.phase
}

// TraderData returns the opaque state the strategy returned last.
func (e *MatchingEngine) TraderData() string {
	return e.traderData
}
