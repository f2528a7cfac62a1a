package candles

import (
	"errors"
	"fmt"

	"cryptoLedger/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrInsufficientData is returned when fewer candles exist than an indicator's period needs.
var ErrInsufficientData = errors.New("not enough candles for indicator")

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverage computes SMA or EMA over candle closes.
func MovingAverage(kind MovingAverageType, period int, candles []*domain.Candle) (decimal.Decimal, error) {
	switch kind {
	case SimpleMovingAverage:
		return sma(period, candles)
	case ExponentialMovingAverage:
		return ema(period, candles)
	default:
		return decimal.Zero, fmt.Errorf("unsupported moving average type: %s", kind)
	}
}

func sma(period int, candles []*domain.Candle) (decimal.Decimal, error) {
	if period <= 0 || len(candles) < period {
		return decimal.Zero, fmt.Errorf("%w: have %d, SMA period %d", ErrInsufficientData, len(candles), period)
	}
	total := decimal.Zero
	for _, c := range candles[len(candles)-period:] {
		total = total.Add(c.Close)
	}
	return total.Div(decimal.NewFromInt(int64(period))), nil
}

// ema seeds with the SMA of the first period closes, then smooths the rest.
func ema(period int, candles []*domain.Candle) (decimal.Decimal, error) {
	if period <= 0 || len(candles) < period {
		return decimal.Zero, fmt.Errorf("%w: have %d, EMA period %d", ErrInsufficientData, len(candles), period)
	}
	multiplier := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))

	value, err := sma(period, candles[:period])
	if err != nil {
		return decimal.Zero, err
	}
	for _, c := range candles[period:] {
		value = c.Close.Sub(value).Mul(multiplier).Add(value)
	}
	return value, nil
}

// ATR computes the Average True Range with Wilder smoothing. It needs period+1 candles.
func ATR(period int, candles []*domain.Candle) (decimal.Decimal, error) {
	if period <= 0 || len(candles) < period+1 {
		return decimal.Zero, fmt.Errorf("%w: have %d, ATR needs %d", ErrInsufficientData, len(candles), period+1)
	}

	trueRanges := make([]decimal.Decimal, len(candles))
	trueRanges[0] = candles[0].High.Sub(candles[0].Low)
	for i := 1; i < len(candles); i++ {
		high, low, prevClose := candles[i].High, candles[i].Low, candles[i-1].Close
		trueRanges[i] = decimal.Max(
			high.Sub(low),
			high.Sub(prevClose).Abs(),
			low.Sub(prevClose).Abs(),
		)
	}

	p := decimal.NewFromInt(int64(period))
	atr := decimal.Zero
	for _, tr := range trueRanges[:period] {
		atr = atr.Add(tr)
	}
	atr = atr.Div(p)

	pMinus1 := decimal.NewFromInt(int64(period - 1))
	for _, tr := range trueRanges[period:] {
		atr = atr.Mul(pMinus1).Add(tr).Div(p)
	}
	return atr, nil
}
