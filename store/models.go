package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteRow is one quoted level of one instrument at one timestamp.
type QuoteRow struct {
	ID        uint   `gorm:"primaryKey"`
	Timestamp int64  `gorm:"index:idx_quote_ts_symbol"`
	Symbol    string `gorm:"index:idx_quote_ts_symbol"`
	Side      string // "bid" or "ask"
	Level     int    // 1 is the best level
	Price     int64
	Quantity  int64
}

// TradeRow is a historical print.
type TradeRow struct {
	ID        uint  `gorm:"primaryKey"`
	Timestamp int64 `gorm:"index"`
	Symbol    string
	Price     int64
	Quantity  int64
	Buyer     string
	Seller    string
}

// ObservationRow is the external market quote of one instrument.
type ObservationRow struct {
	ID            uint            `gorm:"primaryKey"`
	Timestamp     int64           `gorm:"index"`
	Symbol        string
	BidPrice      decimal.Decimal `gorm:"type:text"`
	AskPrice      decimal.Decimal `gorm:"type:text"`
	TransportFees decimal.Decimal `gorm:"type:text"`
	ExportTariff  decimal.Decimal `gorm:"type:text"`
	ImportTariff  decimal.Decimal `gorm:"type:text"`
	Sunlight      decimal.Decimal `gorm:"type:text"`
	Humidity      decimal.Decimal `gorm:"type:text"`
}

// PlainObservationRow is a named numeric signal.
type PlainObservationRow struct {
	ID        uint  `gorm:"primaryKey"`
	Timestamp int64 `gorm:"index"`
	Name      string
	Value     int64
}

// FillRow is a fill produced by a run.
type FillRow struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"index"`
	Timestamp int64
	Symbol    string
	Price     int64
	Quantity  int64
	Buyer     string
	Seller    string
}

// BookLogRow is a book event produced by a run.
type BookLogRow struct {
	ID            uint   `gorm:"primaryKey"`
	RunID         string `gorm:"index"`
	SequenceID    uint64
	TradeID       uint64
	Type          string
	Symbol        string
	Side          int8
	Price         int64
	Size          int64
	OrderSeq      uint64
	Owner         string
	MakerOrderSeq uint64
	MakerOwner    string
	RejectReason  string
	Timestamp     int64
}

// RunRow summarises a finished run.
type RunRow struct {
	RunID          string `gorm:"primaryKey"`
	Iterations     int
	FinalTimestamp int64
	Conversions    int
	TotalPnL       int64
	CreatedAt      time.Time
}

// ResultRow is the outcome of one instrument in a run.
type ResultRow struct {
	ID               uint   `gorm:"primaryKey"`
	RunID            string `gorm:"index"`
	Symbol           string
	Position         int64
	RealizedPnL      int64
	SettlementPrice  int64
	Marked           bool
	PnL              int64
	OwnTradeCount    int
	MarketTradeCount int
}
