package domain

import "github.com/shopspring/decimal"

// PositionState is the running position for one symbol.
// It is derived from the trade history and never persisted on its own.
type PositionState struct {
	Position    decimal.Decimal // Signed quantity (positive = net long)
	AverageCost decimal.Decimal // Cost basis per unit; zero when flat
	RealizedPnL decimal.Decimal // Cumulative realized P&L
}

// IsFlat reports whether the position is zero.
func (p PositionState) IsFlat() bool {
	return p.Position.IsZero()
}

// FloatingPnL returns (latest - averageCost) * position.
func (p PositionState) FloatingPnL(latest decimal.Decimal) decimal.Decimal {
	return latest.Sub(p.AverageCost).Mul(p.Position)
}
