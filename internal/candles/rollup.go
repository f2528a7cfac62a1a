// Package candles derives the rolling summary table from stored candles.
package candles

import (
	"time"

	"cryptoLedger/internal/domain"

	"github.com/shopspring/decimal"
)

// Periods configures the indicator lookbacks used by Summarize.
type Periods struct {
	SMA int
	EMA int
	ATR int
}

// DefaultPeriods are the lookbacks used when none are configured.
func DefaultPeriods() Periods {
	return Periods{SMA: 20, EMA: 20, ATR: 14}
}

// Summarize aggregates candles ordered by open time into one RollingSummary.
// It reports false when there are no candles. Indicators lacking data are left invalid.
func Summarize(symbol string, candles []*domain.Candle, windowStart, windowEnd time.Time, p Periods) (domain.RollingSummary, bool) {
	if len(candles) == 0 {
		return domain.RollingSummary{}, false
	}

	first, last := candles[0], candles[len(candles)-1]
	s := domain.RollingSummary{
		Symbol:      domain.NormalizeSymbol(symbol),
		WindowStart: windowStart.UTC(),
		WindowEnd:   windowEnd.UTC(),
		Open:        first.Open,
		High:        first.High,
		Low:         first.Low,
		Close:       last.Close,
		Volume:      decimal.Zero,
		ChangePct:   decimal.Zero,
		CandleCount: len(candles),
	}
	for _, c := range candles {
		s.High = decimal.Max(s.High, c.High)
		s.Low = decimal.Min(s.Low, c.Low)
		s.Volume = s.Volume.Add(c.Volume)
	}
	if !s.Open.IsZero() {
		s.ChangePct = s.Close.Sub(s.Open).Div(s.Open).Mul(decimal.NewFromInt(100)).Round(4)
	}

	s.SMA = optional(MovingAverage(SimpleMovingAverage, p.SMA, candles))
	s.EMA = optional(MovingAverage(ExponentialMovingAverage, p.EMA, candles))
	s.ATR = optional(ATR(p.ATR, candles))
	return s, true
}

func optional(v decimal.Decimal, err error) decimal.NullDecimal {
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v)
}
