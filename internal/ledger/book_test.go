package ledger

import (
	"testing"

	"cryptoLedger/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestFIFO_MatchesOldestLotsFirst(t *testing.T) {
	e, err := New(domain.FIFO)
	require.NoError(t, err)

	res := e.Rebuild([]domain.RawTrade{
		trade("BTC", "BUY", "1", "100"),
		trade("BTC", "BUY", "1", "200"),
		trade("BTC", "SELL", "1", "300"),
	}, domain.PriceBook{"BTC": d("300")})

	require.Len(t, res.Rows, 3)
	last := res.Rows[2]
	assertDecimal(t, "1", last.RunningPosition)
	// The 100 lot is consumed; the remaining lot cost 200.
	assertDecimal(t, "200", last.AverageCost)
	assertDecimal(t, "200", last.RealizedPnL)
	assertDecimal(t, "1", last.ClosedQuantity)
	assertFloating(t, "100", last.FloatingPnL)
}

func TestFIFO_Transitions(t *testing.T) {
	tests := []struct {
		name         string
		trades       []domain.RawTrade
		wantPos      string
		wantAvg      string
		wantRealized string
	}{
		{
			name:         "partial lot consumption",
			trades:       []domain.RawTrade{trade("ETH", "BUY", "2", "10"), trade("ETH", "BUY", "2", "20"), trade("ETH", "SELL", "3", "30")},
			wantPos:      "1",
			wantAvg:      "20",
			wantRealized: "50",
		},
		{
			name:         "close to flat",
			trades:       []domain.RawTrade{trade("ETH", "BUY", "2", "10"), trade("ETH", "SELL", "2", "15")},
			wantPos:      "0",
			wantAvg:      "0",
			wantRealized: "10",
		},
		{
			name:         "flip opens new lot at trade price",
			trades:       []domain.RawTrade{trade("ETH", "BUY", "1", "10"), trade("ETH", "SELL", "3", "12")},
			wantPos:      "-2",
			wantAvg:      "12",
			wantRealized: "2",
		},
		{
			name:         "short covered by buys",
			trades:       []domain.RawTrade{trade("ETH", "SELL", "1", "50"), trade("ETH", "SELL", "1", "40"), trade("ETH", "BUY", "1", "30")},
			wantPos:      "-1",
			wantAvg:      "40",
			wantRealized: "20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(domain.FIFO)
			require.NoError(t, err)
			res := e.Rebuild(tt.trades, nil)
			require.Len(t, res.Summary, 1)
			s := res.Summary[0]
			assertDecimal(t, tt.wantPos, s.Position)
			assertDecimal(t, tt.wantAvg, s.AverageCost)
			assertDecimal(t, tt.wantRealized, s.RealizedPnL)
		})
	}
}

func TestPolicies_AgreeWithoutReductions(t *testing.T) {
	trades := []domain.RawTrade{
		trade("BTC", "BUY", "1", "100"),
		trade("BTC", "BUY", "3", "120"),
		trade("BTC", "SELL", "4", "90"),
		trade("BTC", "SELL", "2", "80"),
	}
	wac := Rebuild(trades, nil)
	fifo, err := New(domain.FIFO)
	require.NoError(t, err)
	other := fifo.Rebuild(trades, nil)

	require.Len(t, other.Rows, len(wac.Rows))
	for i := range wac.Rows {
		assertDecimal(t, wac.Rows[i].RunningPosition.String(), other.Rows[i].RunningPosition)
		assertDecimal(t, wac.Rows[i].AverageCost.String(), other.Rows[i].AverageCost)
	}
	assertDecimal(t, wac.Summary[0].RealizedPnL.String(), other.Summary[0].RealizedPnL)
}
