// Package store keeps market data and run output in a SQLite database.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	match "github.com/0x5487/market-backtester"
	"github.com/0x5487/market-backtester/feed"
	"github.com/0x5487/market-backtester/protocol"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const batchSize = 500

const (
	sideBid = "bid"
	sideAsk = "ask"
)

// Store is a SQLite-backed match.Feed and run recorder.
type Store struct {
	db *gorm.DB
}

// Open connects to the database at path, creating it when needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&QuoteRow{}, &TradeRow{}, &ObservationRow{}, &PlainObservationRow{},
		&FillRow{}, &BookLogRow{}, &RunRow{}, &ResultRow{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Market data
// ======================================================================================

// ImportQuotes stores quotes, one row per level.
func (s *Store) ImportQuotes(ctx context.Context, quotes []match.Quote) error {
	rows := make([]QuoteRow, 0, len(quotes)*2*feed.Levels)
	for _, q := range quotes {
		for i, level := range q.Bids {
			rows = append(rows, QuoteRow{Timestamp: q.Timestamp, Symbol: q.Symbol, Side: sideBid, Level: i + 1, Price: level.Price, Quantity: level.Quantity})
		}
		for i, level := range q.Asks {
			rows = append(rows, QuoteRow{Timestamp: q.Timestamp, Symbol: q.Symbol, Side: sideAsk, Level: i + 1, Price: level.Price, Quantity: level.Quantity})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error
}

// ImportTrades stores historical prints.
func (s *Store) ImportTrades(ctx context.Context, trades []match.MarketTrade) error {
	rows := make([]TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, TradeRow{
			Timestamp: t.Timestamp,
			Symbol:    t.Symbol,
			Price:     t.Price,
			Quantity:  t.Quantity,
			Buyer:     t.Buyer,
			Seller:    t.Seller,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error
}

// ImportObservations stores conversion observations.
func (s *Store) ImportObservations(ctx context.Context, observations []feed.ObservationRow) error {
	rows := make([]ObservationRow, 0, len(observations))
	for _, o := range observations {
		rows = append(rows, ObservationRow{
			Timestamp:     o.Timestamp,
			Symbol:        o.Symbol,
			BidPrice:      o.Conversion.BidPrice,
			AskPrice:      o.Conversion.AskPrice,
			TransportFees: o.Conversion.TransportFees,
			ExportTariff:  o.Conversion.ExportTariff,
			ImportTariff:  o.Conversion.ImportTariff,
			Sunlight:      o.Conversion.Sunlight,
			Humidity:      o.Conversion.Humidity,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error
}

// ImportPlainObservations stores the named signals observed at ts.
func (s *Store) ImportPlainObservations(ctx context.Context, ts int64, values map[string]int64) error {
	if len(values) == 0 {
		return nil
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]PlainObservationRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, PlainObservationRow{Timestamp: ts, Name: name, Value: values[name]})
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error
}

// Quotes returns the quotes at ts, one per instrument, levels best first.
func (s *Store) Quotes(ctx context.Context, ts int64) ([]match.Quote, error) {
	var rows []QuoteRow
	err := s.db.WithContext(ctx).
		Where("timestamp = ?", ts).
		Order("symbol, side, level").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]*match.Quote)
	symbols := make([]string, 0)
	for _, row := range rows {
		q, ok := bySymbol[row.Symbol]
		if !ok {
			q = &match.Quote{Timestamp: ts, Symbol: row.Symbol}
			bySymbol[row.Symbol] = q
			symbols = append(symbols, row.Symbol)
		}
		level := match.PriceQuantity{Price: row.Price, Quantity: row.Quantity}
		if row.Side == sideBid {
			q.Bids = append(q.Bids, level)
		} else {
			q.Asks = append(q.Asks, level)
		}
	}

	quotes := make([]match.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		quotes = append(quotes, *bySymbol[symbol])
	}
	return quotes, nil
}

// Trades returns the prints at ts in import order.
func (s *Store) Trades(ctx context.Context, ts int64) ([]match.MarketTrade, error) {
	var rows []TradeRow
	if err := s.db.WithContext(ctx).Where("timestamp = ?", ts).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	trades := make([]match.MarketTrade, 0, len(rows))
	for _, row := range rows {
		trades = append(trades, match.MarketTrade{
			Timestamp: row.Timestamp,
			Symbol:    row.Symbol,
			Price:     row.Price,
			Quantity:  row.Quantity,
			Buyer:     row.Buyer,
			Seller:    row.Seller,
		})
	}
	return trades, nil
}

// Observations returns the observation bundle at ts.
func (s *Store) Observations(ctx context.Context, ts int64) (match.Observation, error) {
	obs := match.Observation{
		PlainValueObservations: make(map[string]int64),
		ConversionObservations: make(map[string]match.ConversionObservation),
	}

	var plain []PlainObservationRow
	if err := s.db.WithContext(ctx).Where("timestamp = ?", ts).Order("id").Find(&plain).Error; err != nil {
		return obs, err
	}
	for _, row := range plain {
		obs.PlainValueObservations[row.Name] = row.Value
	}

	var rows []ObservationRow
	if err := s.db.WithContext(ctx).Where("timestamp = ?", ts).Order("id").Find(&rows).Error; err != nil {
		return obs, err
	}

	for _, row := range rows {
		obs.ConversionObservations[row.Symbol] = match.ConversionObservation{
			BidPrice:      row.BidPrice,
			AskPrice:      row.AskPrice,
			TransportFees: row.TransportFees,
			ExportTariff:  row.ExportTariff,
			ImportTariff:  row.ImportTariff,
			Sunlight:      row.Sunlight,
			Humidity:      row.Humidity,
		}
	}
	return obs, nil
}

// Timestamps returns every quoted timestamp, ascending.
func (s *Store) Timestamps(ctx context.Context) ([]int64, error) {
	var result []int64
	err := s.db.WithContext(ctx).Model(&QuoteRow{}).Distinct("timestamp").Order("timestamp").Pluck("timestamp", &result).Error
	return result, err
}

// ======================================================================================
// Run output
// ======================================================================================

// Recorder persists the fills and book logs of one run. It implements both
// match.PublishTrader and match.PublishLog. Writes happen before Publish
// returns; the first failure is kept and reported by Err.
type Recorder struct {
	db    *gorm.DB
	runID string

	mu  sync.Mutex
	err error
}

// Recorder returns a recorder tagging every row with runID.
func (s *Store) Recorder(runID string) *Recorder {
	return &Recorder{db: s.db, runID: runID}
}

func (r *Recorder) PublishTrades(trades ...*match.Trade) {
	if len(trades) == 0 {
		return
	}

	rows := make([]FillRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, FillRow{
			RunID:     r.runID,
			Timestamp: t.Timestamp,
			Symbol:    t.Symbol,
			Price:     t.Price,
			Quantity:  t.Quantity,
			Buyer:     t.Buyer,
			Seller:    t.Seller,
		})
	}
	r.setErr(r.db.CreateInBatches(rows, batchSize).Error)
}

func (r *Recorder) Publish(logs ...*match.BookLog) {
	if len(logs) == 0 {
		return
	}

	rows := make([]BookLogRow, 0, len(logs))
	for _, log := range logs {
		rows = append(rows, BookLogRow{
			RunID:         r.runID,
			SequenceID:    log.SequenceID,
			TradeID:       log.TradeID,
			Type:          string(log.Type),
			Symbol:        log.Symbol,
			Side:          int8(log.Side),
			Price:         log.Price,
			Size:          log.Size,
			OrderSeq:      log.OrderSeq,
			Owner:         log.Owner,
			MakerOrderSeq: log.MakerOrderSeq,
			MakerOwner:    log.MakerOwner,
			RejectReason:  string(log.RejectReason),
			Timestamp:     log.Timestamp,
		})
	}
	r.setErr(r.db.CreateInBatches(rows, batchSize).Error)
}

func (r *Recorder) setErr(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Err returns the first write failure.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// SaveResult stores a settled run.
func (s *Store) SaveResult(ctx context.Context, result *match.Result) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run := RunRow{
			RunID:          result.RunID,
			Iterations:     result.Iterations,
			FinalTimestamp: result.FinalTimestamp,
			Conversions:    result.Conversions,
			TotalPnL:       result.TotalPnL,
		}
		if err := tx.Save(&run).Error; err != nil {
			return err
		}

		if err := tx.Where("run_id = ?", result.RunID).Delete(&ResultRow{}).Error; err != nil {
			return err
		}

		symbols := make([]string, 0, len(result.Symbols))
		for symbol := range result.Symbols {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)

		rows := make([]ResultRow, 0, len(symbols))
		for _, symbol := range symbols {
			sr := result.Symbols[symbol]
			rows = append(rows, ResultRow{
				RunID:            result.RunID,
				Symbol:           symbol,
				Position:         sr.Position,
				RealizedPnL:      sr.RealizedPnL,
				SettlementPrice:  sr.SettlementPrice,
				Marked:           sr.Marked,
				PnL:              sr.PnL,
				OwnTradeCount:    sr.OwnTradeCount,
				MarketTradeCount: sr.MarketTradeCount,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// LoadResult reads a stored run back. Returns match.ErrNotFound for an unknown run.
func (s *Store) LoadResult(ctx context.Context, runID string) (*match.Result, error) {
	var run RunRow
	err := s.db.WithContext(ctx).First(&run, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, match.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rows []ResultRow
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Find(&rows).Error; err != nil {
		return nil, err
	}

	result := &match.Result{
		RunID:          run.RunID,
		Iterations:     run.Iterations,
		FinalTimestamp: run.FinalTimestamp,
		Conversions:    run.Conversions,
		TotalPnL:       run.TotalPnL,
		Symbols:        make(map[string]match.SymbolResult, len(rows)),
	}
	for _, row := range rows {
		result.Symbols[row.Symbol] = match.SymbolResult{
			Position:         row.Position,
			RealizedPnL:      row.RealizedPnL,
			SettlementPrice:  row.SettlementPrice,
			Marked:           row.Marked,
			PnL:              row.PnL,
			OwnTradeCount:    row.OwnTradeCount,
			MarketTradeCount: row.MarketTradeCount,
		}
	}
	return result, nil
}

// Fills returns the recorded fills of a run in the order they happened.
func (s *Store) Fills(ctx context.Context, runID string) ([]match.Trade, error) {
	var rows []FillRow
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	trades := make([]match.Trade, 0, len(rows))
	for _, row := range rows {
		trades = append(trades, match.Trade{
			Symbol:    row.Symbol,
			Price:     row.Price,
			Quantity:  row.Quantity,
			Buyer:     row.Buyer,
			Seller:    row.Seller,
			Timestamp: row.Timestamp,
		})
	}
	return trades, nil
}

// CountLogs returns how many book logs of logType a run produced.
func (s *Store) CountLogs(ctx context.Context, runID string, logType protocol.LogType) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&BookLogRow{}).
		Where("run_id = ? AND type = ?", runID, string(logType)).
		Count(&count).Error
	return count, err
}
