package ledger

import (
	"testing"
	"time"

	"cryptoLedger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze(t *testing.T) {
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	trades := []domain.RawTrade{
		{Symbol: "BTC", Side: "BUY", Quantity: "2", Price: "100", Time: jan},
		{Symbol: "BTC", Side: "SELL", Quantity: "1", Price: "150", Time: jan},
		{Symbol: "BTC", Side: "SELL", Quantity: "1", Price: "80", Time: feb},
		{Symbol: "ETH", Side: "BUY", Quantity: "1", Price: "10", Time: feb},
		{Symbol: "ETH", Side: "BUY", Quantity: "bad", Price: "10", Time: feb},
		{Symbol: "SOL", Side: "SELL", Quantity: "1", Price: "20", Time: feb},
	}
	res := Rebuild(trades, domain.PriceBook{"ETH": d("12"), "BTC": d("90")})

	st := Analyze(res)
	assert.Equal(t, 2, st.ClosingTrades)
	assert.Equal(t, 1, st.WinningTrades)
	assert.Equal(t, 1, st.LosingTrades)
	assert.InDelta(t, 0.5, st.WinRate, 1e-9)
	assertDecimal(t, "30", st.TotalRealizedPnL)
	assertDecimal(t, "50", st.AverageWin)
	assertDecimal(t, "-20", st.AverageLoss)
	require.True(t, st.ProfitFactor.Valid)
	assertDecimal(t, "2.5", st.ProfitFactor.Decimal)
	assert.Equal(t, 1, st.MaxConsecutiveWins)
	assert.Equal(t, 1, st.MaxConsecutiveLosses)
	assert.Equal(t, 1, st.SkippedTrades)

	// BTC flat at 90 -> 0, ETH (12-10)*1 -> 2, SOL unpriced.
	assertDecimal(t, "2", st.TotalFloatingPnL)
	assert.Equal(t, []string{"SOL"}, st.UnpricedSymbols)

	months := st.Months()
	require.Len(t, months, 2)
	assertDecimal(t, "50", months[0].Realized)
	assertDecimal(t, "-20", months[1].Realized)
}

func TestAnalyze_NoClosingTrades(t *testing.T) {
	st := Analyze(Rebuild([]domain.RawTrade{trade("BTC", "BUY", "1", "1")}, nil))
	assert.Zero(t, st.ClosingTrades)
	assert.Zero(t, st.WinRate)
	assert.False(t, st.ProfitFactor.Valid)
	assert.Equal(t, []string{"BTC"}, st.UnpricedSymbols)
}
