package ports

import (
	"context"
	"time"

	"cryptoLedger/internal/domain"

	"github.com/shopspring/decimal"
)

// SpotSource supplies the current spot price of an asset.
type SpotSource interface {
	// GetSpotPrice returns the latest spot price for an asset symbol (e.g., "BTC").
	// Returns an error wrapping ErrPriceUnavailable when no price can be obtained.
	GetSpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// CandleSource supplies historical OHLCV candles.
type CandleSource interface {
	// GetCandles returns the candles for symbol at the given interval whose open time
	// falls in [start, end], ordered by open time.
	GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error)
}

// PriceFeed is an exchange that can serve both spot prices and candles.
type PriceFeed interface {
	SpotSource
	CandleSource
}
