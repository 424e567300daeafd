// Package feed loads historical market data files into a match.Feed.
//
// Files are semicolon separated with a header row. Columns are located by
// header name so extra columns and any column order are accepted.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	match "github.com/0x5487/market-backtester"
	"github.com/shopspring/decimal"
)

// Levels is the number of quoted levels per side in a price file.
const Levels = 3

var ErrMissingColumn = errors.New("missing column")

// ObservationRow is one line of an observation file.
type ObservationRow struct {
	Timestamp  int64
	Symbol     string
	Conversion match.ConversionObservation
}

type table struct {
	columns map[string]int
	reader  *csv.Reader
	line    int
}

func newTable(r io.Reader, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	return &table{columns: columns, reader: reader, line: 1}, nil
}

// next returns the next record or io.EOF.
func (t *table) next() ([]string, error) {
	record, err := t.reader.Read()
	t.line++
	return record, err
}

func (t *table) field(record []string, name string) string {
	idx, ok := t.columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseInteger accepts integral values written either way ("10" or "10.0").
func parseInteger(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return 0, false
	}
	return d.IntPart(), true
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ReadQuotes parses a price file
// (day;timestamp;product;bid_price_1;bid_volume_1;...;ask_volume_3;mid_price;profit_and_loss).
// A level with a missing or non-integral price or volume is left out.
func ReadQuotes(r io.Reader) ([]match.Quote, error) {
	t, err := newTable(r, "timestamp", "product")
	if err != nil {
		return nil, err
	}

	quotes := make([]match.Quote, 0, 1024)
	for {
		record, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}

		ts, ok := parseInteger(t.field(record, "timestamp"))
		symbol := t.field(record, "product")
		if !ok || symbol == "" {
			slog.Debug("skipping price row", "line", t.line)
			continue
		}

		q := match.Quote{
			Timestamp: ts,
			Symbol:    symbol,
			Bids:      make([]match.PriceQuantity, 0, Levels),
			Asks:      make([]match.PriceQuantity, 0, Levels),
		}
		for i := 1; i <= Levels; i++ {
			if level, ok := t.level(record, "bid", i); ok {
				q.Bids = append(q.Bids, level)
			}
			if level, ok := t.level(record, "ask", i); ok {
				q.Asks = append(q.Asks, level)
			}
		}
		quotes = append(quotes, q)
	}

	return quotes, nil
}

func (t *table) level(record []string, side string, n int) (match.PriceQuantity, bool) {
	price, ok := parseInteger(t.field(record, fmt.Sprintf("%s_price_%d", side, n)))
	if !ok || price <= 0 {
		return match.PriceQuantity{}, false
	}
	qty, ok := parseInteger(t.field(record, fmt.Sprintf("%s_volume_%d", side, n)))
	if !ok || qty <= 0 {
		return match.PriceQuantity{}, false
	}
	return match.PriceQuantity{Price: price, Quantity: qty}, true
}

// ReadTrades parses a trade file (timestamp;buyer;seller;symbol;currency;price;quantity).
func ReadTrades(r io.Reader) ([]match.MarketTrade, error) {
	t, err := newTable(r, "timestamp", "symbol", "price", "quantity")
	if err != nil {
		return nil, err
	}

	trades := make([]match.MarketTrade, 0, 1024)
	for {
		record, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}

		ts, okTS := parseInteger(t.field(record, "timestamp"))
		price, okPrice := parseInteger(t.field(record, "price"))
		qty, okQty := parseInteger(t.field(record, "quantity"))
		symbol := t.field(record, "symbol")
		if !okTS || !okPrice || !okQty || symbol == "" || price <= 0 || qty <= 0 {
			slog.Debug("skipping trade row", "line", t.line)
			continue
		}

		trades = append(trades, match.MarketTrade{
			Timestamp: ts,
			Symbol:    symbol,
			Price:     price,
			Quantity:  qty,
			Buyer:     t.field(record, "buyer"),
			Seller:    t.field(record, "seller"),
		})
	}

	return trades, nil
}

// ReadObservations parses an observation file
// (timestamp;product;bidPrice;askPrice;transportFees;exportTariff;importTariff;sunlight;humidity).
func ReadObservations(r io.Reader) ([]ObservationRow, error) {
	t, err := newTable(r, "timestamp", "product")
	if err != nil {
		return nil, err
	}

	rows := make([]ObservationRow, 0, 1024)
	for {
		record, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}

		ts, ok := parseInteger(t.field(record, "timestamp"))
		symbol := t.field(record, "product")
		if !ok || symbol == "" {
			slog.Debug("skipping observation row", "line", t.line)
			continue
		}

		rows = append(rows, ObservationRow{
			Timestamp: ts,
			Symbol:    symbol,
			Conversion: match.ConversionObservation{
				BidPrice:      parseDecimal(t.field(record, "bidPrice")),
				AskPrice:      parseDecimal(t.field(record, "askPrice")),
				TransportFees: parseDecimal(t.field(record, "transportFees")),
				ExportTariff:  parseDecimal(t.field(record, "exportTariff")),
				ImportTariff:  parseDecimal(t.field(record, "importTariff")),
				Sunlight:      parseDecimal(t.field(record, "sunlight")),
				Humidity:      parseDecimal(t.field(record, "humidity")),
			},
		})
	}

	return rows, nil
}

// Load fills a MemoryFeed from readers. observations may be nil.
func Load(prices, trades, observations io.Reader) (*match.MemoryFeed, error) {
	feed := match.NewMemoryFeed()

	quotes, err := ReadQuotes(prices)
	if err != nil {
		return nil, fmt.Errorf("prices: %w", err)
	}
	for _, q := range quotes {
		feed.AddQuote(q)
	}

	if trades != nil {
		rows, err := ReadTrades(trades)
		if err != nil {
			return nil, fmt.Errorf("trades: %w", err)
		}
		for _, t := range rows {
			feed.AddTrade(t)
		}
	}

	if observations != nil {
		rows, err := ReadObservations(observations)
		if err != nil {
			return nil, fmt.Errorf("observations: %w", err)
		}
		for _, row := range rows {
			feed.AddConversionObservation(row.Timestamp, row.Symbol, row.Conversion)
		}
	}

	return feed, nil
}

// LoadFiles is Load over file paths. An empty path skips that file.
func LoadFiles(pricesPath, tradesPath, observationsPath string) (*match.MemoryFeed, error) {
	prices, err := os.Open(pricesPath)
	if err != nil {
		return nil, err
	}
	defer prices.Close()

	var trades, observations io.Reader
	if tradesPath != "" {
		f, err := os.Open(tradesPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		trades = f
	}
	if observationsPath != "" {
		f, err := os.Open(observationsPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		observations = f
	}

	return Load(prices, trades, observations)
}
