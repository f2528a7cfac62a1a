package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents a single OHLCV bucket.
type Candle struct {
	Symbol    string    // Asset symbol (e.g., "BTC")
	Interval  string    // Candle interval (e.g., "1m", "1h")
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// RollingSummary aggregates the stored candles of one symbol over a trailing window.
type RollingSummary struct {
	Symbol      string
	WindowStart time.Time
	WindowEnd   time.Time
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	ChangePct   decimal.Decimal
	SMA         decimal.NullDecimal
	EMA         decimal.NullDecimal
	ATR         decimal.NullDecimal
	CandleCount int
}
