package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	match "github.com/0x5487/market-backtester"
	"github.com/0x5487/market-backtester/config"
	"github.com/0x5487/market-backtester/feed"
	"github.com/0x5487/market-backtester/protocol"
	"github.com/0x5487/market-backtester/store"
	"github.com/0x5487/market-backtester/strategy"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

func main() {
	configPath := flag.String("config", "backtest.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath, os.Stdout); err != nil {
		slog.Error("backtest failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)
	match.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *store.Store
	if cfg.Store.Path != "" {
		db, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		if cfg.Store.Import {
			if err := importData(ctx, db, cfg); err != nil {
				return err
			}
		}
	}

	var source match.Feed
	if db != nil && (cfg.Store.Import || cfg.Data.Prices == "") {
		source = db
	} else {
		source, err = feed.LoadFiles(cfg.Data.Prices, cfg.Data.Trades, cfg.Data.Observations)
		if err != nil {
			return fmt.Errorf("load market data: %w", err)
		}
	}

	strat, err := strategy.New(cfg.Strategy.Name, strategy.Options{
		FairValues:           cfg.Strategy.FairValues,
		MeanReversionSymbols: cfg.Strategy.MeanReversion,
		Window:               cfg.Strategy.Window,
		MinSpread:            cfg.Strategy.MinSpread,
		Limits:               cfg.Engine.PositionLimits,
	})
	if err != nil {
		return err
	}

	runID := xid.New().String()
	opts := []match.EngineOption{match.WithRunID(runID)}

	var recorder *store.Recorder
	if db != nil && cfg.Store.SaveResults {
		recorder = db.Recorder(runID)
		opts = append(opts, match.WithPublishLog(recorder), match.WithPublishTrader(recorder))
	}

	engine, err := match.NewMatchingEngine(cfg.Engine, strat, source, opts...)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.Snapshot.Dir != "" {
		meta, err := engine.TakeSnapshot(cfg.Snapshot.Dir)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		slog.Info("snapshot written", slog.String("dir", cfg.Snapshot.Dir), slog.Any("checksum", meta.SnapshotChecksum))
	}

	if recorder != nil {
		if err := recorder.Err(); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		if err := db.SaveResult(ctx, result); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
	}

	if err := printResult(out, result); err != nil {
		return err
	}

	depths := make([]*protocol.GetDepthResponse, 0, len(result.Symbols))
	for _, symbol := range cfg.Engine.Symbols() {
		depth, err := engine.Depth(symbol)
		if err != nil {
			return err
		}
		depths = append(depths, depth.ToProtocol(symbol, engine.Timestamp()))
	}
	return printDepth(out, depths)
}

func importData(ctx context.Context, db *store.Store, cfg *config.Config) error {
	quotes, err := readFile(cfg.Data.Prices, feed.ReadQuotes)
	if err != nil {
		return fmt.Errorf("prices: %w", err)
	}
	if err := db.ImportQuotes(ctx, quotes); err != nil {
		return fmt.Errorf("import prices: %w", err)
	}

	trades, err := readFile(cfg.Data.Trades, feed.ReadTrades)
	if err != nil {
		return fmt.Errorf("trades: %w", err)
	}
	if err := db.ImportTrades(ctx, trades); err != nil {
		return fmt.Errorf("import trades: %w", err)
	}

	observations, err := readFile(cfg.Data.Observations, feed.ReadObservations)
	if err != nil {
		return fmt.Errorf("observations: %w", err)
	}
	if err := db.ImportObservations(ctx, observations); err != nil {
		return fmt.Errorf("import observations: %w", err)
	}

	slog.Info("market data imported",
		slog.String("store", cfg.Store.Path),
		slog.Int("quotes", len(quotes)),
		slog.Int("trades", len(trades)),
		slog.Int("observations", len(observations)),
	)
	return nil
}

// readFile parses the file at path. An empty path yields no rows.
func readFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return read(f)
}

func printResult(out io.Writer, result *match.Result) error {
	symbols := make([]string, 0, len(result.Symbols))
	for symbol := range result.Symbols {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "symbol\tposition\tbreak_even\tsettle\tpnl\town_trades\tmarket_trades\t\n")
	for _, symbol := range symbols {
		sr := result.Symbols[symbol]

		settle := "-"
		if sr.Marked {
			settle = fmt.Sprintf("%d", sr.SettlementPrice)
		}

		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%d\t\n",
			symbol, sr.Position, breakEven(sr), settle, sr.PnL, sr.OwnTradeCount, sr.MarketTradeCount)
	}
	fmt.Fprintf(w, "total\t\t\t\t%d\t\t\t\n", result.TotalPnL)
	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "run %s: %d iterations, final timestamp %d, %d conversions\n",
		result.RunID, result.Iterations, result.FinalTimestamp, result.Conversions)
	return err
}

// printDepth writes the final book of each instrument, best levels first.
// Ask sizes are shown as positive quantities.
func printDepth(out io.Writer, depths []*protocol.GetDepthResponse) error {
	for _, d := range depths {
		line := fmt.Sprintf("%s depth at %d: bids", d.Symbol, d.Timestamp)
		for _, item := range d.Bids {
			line += fmt.Sprintf(" %dx%d", item.Price, item.Quantity)
		}
		line += " | asks"
		for _, item := range d.Asks {
			line += fmt.Sprintf(" %dx%d", item.Price, -item.Quantity)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

// breakEven is the price at which closing the position leaves PnL at zero.
func breakEven(sr match.SymbolResult) string {
	if sr.Position == 0 {
		return "-"
	}
	return decimal.NewFromInt(-sr.RealizedPnL).
		Div(decimal.NewFromInt(sr.Position)).
		StringFixed(2)
}
