package domain

import "github.com/shopspring/decimal"

// LedgerRow is one computed ledger line, emitted per valid trade in trade order.
type LedgerRow struct {
	TradeRecord
	TradeAmount           decimal.Decimal     // price * quantity * sign
	RunningPosition       decimal.Decimal     // position after this trade
	AverageCost           decimal.Decimal     // average cost after this trade
	FloatingPnL           decimal.NullDecimal // invalid when no latest price exists for the symbol
	ClosedQuantity        decimal.Decimal     // quantity matched against the prior position
	RealizedPnL           decimal.Decimal     // P&L realized by this trade
	CumulativeRealizedPnL decimal.Decimal     // realized P&L for the symbol so far
}

// SummaryRow is the final state of one symbol after a ledger rebuild.
type SummaryRow struct {
	Symbol      string
	Position    decimal.Decimal
	AverageCost decimal.Decimal
	LatestPrice decimal.NullDecimal
	FloatingPnL decimal.NullDecimal
	RealizedPnL decimal.Decimal
	TradeCount  int
}
