package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTrade is a trade exactly as it was entered into the trade log.
// Price and Quantity stay textual so malformed input reaches the ledger and is skipped there.
type RawTrade struct {
	ID       int64     // Storage row id (entry order)
	Ref      string    // External reference (ULID)
	Time     time.Time // Execution time; zero when absent
	Symbol   string    // Asset symbol (e.g., "BTC")
	Side     string    // "BUY" / "SELL" as entered
	Price    string    // Quote currency per unit
	Quantity string    // Units of asset
	Note     string    // Free text, not used in computation
}

// TradeRecord is a validated trade with its dense ledger id.
type TradeRecord struct {
	ID       int64
	Ref      string
	Time     time.Time
	Symbol   string
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Note     string
}

// SignedQuantity returns Quantity with the sign of the trade side.
func (t TradeRecord) SignedQuantity() decimal.Decimal {
	if t.Side == Sell {
		return t.Quantity.Neg()
	}
	return t.Quantity
}

// Notional returns price * quantity * sign(side).
func (t TradeRecord) Notional() decimal.Decimal {
	return t.Price.Mul(t.SignedQuantity())
}
