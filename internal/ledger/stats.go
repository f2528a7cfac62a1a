package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Stats summarises realized and floating results of a rebuilt ledger.
type Stats struct {
	// Closing trades are rows that matched quantity against an existing position.
	ClosingTrades int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	TotalRealizedPnL decimal.Decimal
	AverageWin       decimal.Decimal
	AverageLoss      decimal.Decimal
	ProfitFactor     decimal.NullDecimal // gross wins / gross losses; invalid without losses

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	// TotalFloatingPnL sums the symbols that have a latest price.
	TotalFloatingPnL decimal.Decimal
	UnpricedSymbols  []string

	MonthlyRealized map[string]decimal.Decimal // keyed by "2006-01" of the trade time
	SkippedTrades   int
}

// Analyze computes Stats from a rebuild result.
func Analyze(res Result) Stats {
	st := Stats{
		TotalRealizedPnL: decimal.Zero,
		TotalFloatingPnL: decimal.Zero,
		MonthlyRealized:  make(map[string]decimal.Decimal),
		SkippedTrades:    len(res.Skipped),
	}

	grossWin, grossLoss := decimal.Zero, decimal.Zero
	var wins, losses int

	for _, row := range res.Rows {
		if !row.ClosedQuantity.IsPositive() {
			continue
		}
		st.ClosingTrades++
		st.TotalRealizedPnL = st.TotalRealizedPnL.Add(row.RealizedPnL)
		if !row.Time.IsZero() {
			key := row.Time.UTC().Format("2006-01")
			st.MonthlyRealized[key] = st.MonthlyRealized[key].Add(row.RealizedPnL)
		}

		switch row.RealizedPnL.Sign() {
		case 1:
			st.WinningTrades++
			grossWin = grossWin.Add(row.RealizedPnL)
			wins++
			losses = 0
		case -1:
			st.LosingTrades++
			grossLoss = grossLoss.Add(row.RealizedPnL.Neg())
			losses++
			wins = 0
		default:
			wins, losses = 0, 0
		}
		st.MaxConsecutiveWins = max(st.MaxConsecutiveWins, wins)
		st.MaxConsecutiveLosses = max(st.MaxConsecutiveLosses, losses)
	}

	if st.ClosingTrades > 0 {
		st.WinRate = float64(st.WinningTrades) / float64(st.ClosingTrades)
	}
	if st.WinningTrades > 0 {
		st.AverageWin = grossWin.Div(decimal.NewFromInt(int64(st.WinningTrades)))
	}
	if st.LosingTrades > 0 {
		st.AverageLoss = grossLoss.Neg().Div(decimal.NewFromInt(int64(st.LosingTrades)))
		st.ProfitFactor = decimal.NewNullDecimal(grossWin.Div(grossLoss))
	}

	for _, s := range res.Summary {
		if s.FloatingPnL.Valid {
			st.TotalFloatingPnL = st.TotalFloatingPnL.Add(s.FloatingPnL.Decimal)
		} else {
			st.UnpricedSymbols = append(st.UnpricedSymbols, s.Symbol)
		}
	}
	return st
}

// MonthlyReturn is realized P&L for one calendar month.
type MonthlyReturn struct {
	Month    time.Time
	Realized decimal.Decimal
}

// Months returns MonthlyRealized as a slice sorted by month.
func (s Stats) Months() []MonthlyReturn {
	out := make([]MonthlyReturn, 0, len(s.MonthlyRealized))
	for month, pnl := range s.MonthlyRealized {
		date, _ := time.Parse("2006-01", month)
		out = append(out, MonthlyReturn{Month: date, Realized: pnl})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Month.Before(out[j].Month)
	})
	return out
}
