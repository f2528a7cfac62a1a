// Package ledger recomputes the trade ledger from the raw trade log.
//
// Rebuild is a pure fold: it reads nothing but its arguments, keeps no state between
// calls and always produces the same rows for the same input. Persisting the output
// and serializing concurrent rebuilds is the caller's job.
package ledger

import (
	"fmt"

	"cryptoLedger/internal/domain"

	"github.com/shopspring/decimal"
)

// Result is the output of one ledger rebuild.
type Result struct {
	Rows    []domain.LedgerRow
	Summary []domain.SummaryRow
	Skipped []Skipped
}

// Engine rebuilds the ledger under a fixed accounting policy.
type Engine struct {
	policy domain.AccountingPolicy
}

// New creates an Engine. An empty policy selects weighted-average cost.
func New(policy domain.AccountingPolicy) (*Engine, error) {
	switch policy {
	case "":
		policy = domain.WeightedAverage
	case domain.WeightedAverage, domain.FIFO:
	default:
		return nil, fmt.Errorf("unsupported accounting policy %q", policy)
	}
	return &Engine{policy: policy}, nil
}

// Policy returns the engine's accounting policy.
func (e *Engine) Policy() domain.AccountingPolicy {
	return e.policy
}

// Rebuild folds trades, in the order given, into ledger rows and a per-symbol summary.
// Invalid trades are skipped and do not consume a ledger id.
func (e *Engine) Rebuild(trades []domain.RawTrade, latest domain.PriceBook) Result {
	var res Result
	books := make(map[string]book)
	counts := make(map[string]int)
	var order []string

	for i, raw := range trades {
		rec, reason := Validate(raw)
		if reason != "" {
			res.Skipped = append(res.Skipped, Skipped{Index: i, Trade: raw, Reason: reason})
			continue
		}
		rec.ID = int64(len(res.Rows) + 1)

		b, ok := books[rec.Symbol]
		if !ok {
			b = newBook(e.policy)
			books[rec.Symbol] = b
			order = append(order, rec.Symbol)
		}
		realized, closed := b.apply(rec.Price, rec.SignedQuantity())
		st := b.state()
		counts[rec.Symbol]++

		res.Rows = append(res.Rows, domain.LedgerRow{
			TradeRecord:           rec,
			TradeAmount:           rec.Notional(),
			RunningPosition:       st.Position,
			AverageCost:           st.AverageCost,
			FloatingPnL:           floating(st, latest, rec.Symbol),
			ClosedQuantity:        closed,
			RealizedPnL:           realized,
			CumulativeRealizedPnL: st.RealizedPnL,
		})
	}

	for _, sym := range order {
		st := books[sym].state()
		row := domain.SummaryRow{
			Symbol:      sym,
			Position:    st.Position,
			AverageCost: st.AverageCost,
			FloatingPnL: floating(st, latest, sym),
			RealizedPnL: st.RealizedPnL,
			TradeCount:  counts[sym],
		}
		if p, ok := latest.Price(sym); ok {
			row.LatestPrice = decimal.NewNullDecimal(p)
		}
		res.Summary = append(res.Summary, row)
	}
	return res
}

// Rebuild runs a weighted-average rebuild.
func Rebuild(trades []domain.RawTrade, latest domain.PriceBook) Result {
	return (&Engine{policy: domain.WeightedAverage}).Rebuild(trades, latest)
}

func floating(st domain.PositionState, latest domain.PriceBook, symbol string) decimal.NullDecimal {
	p, ok := latest.Price(symbol)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(st.FloatingPnL(p))
}
