package ports

import (
	"context"
	"time"

	"cryptoLedger/internal/domain"
)

// TradeLog is the append-only record of trades as entered.
type TradeLog interface {
	// AppendTrade stores a new raw trade and returns its assigned storage ID.
	AppendTrade(ctx context.Context, trade *domain.RawTrade) (int64, error)
	// ListTrades returns every raw trade in entry order.
	ListTrades(ctx context.Context) ([]domain.RawTrade, error)
}

// PriceStore holds periodic price snapshots.
type PriceStore interface {
	// SaveSnapshot stores one snapshot row.
	SaveSnapshot(ctx context.Context, snap domain.PriceSnapshot) error
	// LatestPrices returns the prices of the single most recent snapshot.
	// An empty book is returned when no snapshot exists.
	LatestPrices(ctx context.Context) (domain.PriceBook, error)
}

// LedgerSink persists the output of a ledger rebuild.
type LedgerSink interface {
	// ReplaceLedger atomically replaces all ledger rows and summary rows.
	ReplaceLedger(ctx context.Context, rows []domain.LedgerRow, summary []domain.SummaryRow) error
}

// LedgerSession is the view of the store a ledger rebuild reads from and writes to.
type LedgerSession interface {
	ListTrades(ctx context.Context) ([]domain.RawTrade, error)
	LatestPrices(ctx context.Context) (domain.PriceBook, error)
	ReplaceLedger(ctx context.Context, rows []domain.LedgerRow, summary []domain.SummaryRow) error
}

// LedgerLocker serializes ledger rebuilds across every process sharing the store.
type LedgerLocker interface {
	// WithLedgerLock runs fn while holding the store-wide rebuild lock. Reads and the
	// write made through s form one critical section and are committed together when
	// fn returns nil.
	WithLedgerLock(ctx context.Context, fn func(ctx context.Context, s LedgerSession) error) error
}

// LedgerReader reads back the persisted ledger for display and export.
type LedgerReader interface {
	LedgerRows(ctx context.Context) ([]domain.LedgerRow, error)
	SummaryRows(ctx context.Context) ([]domain.SummaryRow, error)
}

// CandleStore holds fetched candles and the rolling summary derived from them.
type CandleStore interface {
	// UpsertCandles inserts or replaces candles keyed by symbol, interval and open time.
	UpsertCandles(ctx context.Context, candles []*domain.Candle) error
	// CandlesBetween returns stored candles with open time in [start, end], ordered by open time.
	CandlesBetween(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error)
	// ReplaceRollingSummaries atomically replaces the rolling summary table.
	ReplaceRollingSummaries(ctx context.Context, summaries []domain.RollingSummary) error
	// RollingSummaries returns the current rolling summary table ordered by symbol.
	RollingSummaries(ctx context.Context) ([]domain.RollingSummary, error)
}

// Store is the full persistence surface implemented by the database adapters.
type Store interface {
	TradeLog
	PriceStore
	LedgerSink
	LedgerReader
	LedgerLocker
	CandleStore
	Close() error
}
