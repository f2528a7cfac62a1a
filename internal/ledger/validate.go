package ledger

import (
	"strings"

	"cryptoLedger/internal/domain"

	"github.com/shopspring/decimal"
)

// SkipReason explains why a raw trade was left out of the ledger.
type SkipReason string

const (
	SkipMissingSymbol   SkipReason = "missing symbol"
	SkipInvalidSide     SkipReason = "invalid side"
	SkipInvalidPrice    SkipReason = "invalid price"
	SkipInvalidQuantity SkipReason = "invalid quantity"
)

// Skipped records a raw trade excluded from the ledger.
type Skipped struct {
	Index  int // position in the input sequence
	Trade  domain.RawTrade
	Reason SkipReason
}

// Validate converts a raw trade into a TradeRecord.
// A non-empty SkipReason means the trade must be excluded. The returned record has no ID.
func Validate(raw domain.RawTrade) (domain.TradeRecord, SkipReason) {
	symbol := domain.NormalizeSymbol(raw.Symbol)
	if symbol == "" {
		return domain.TradeRecord{}, SkipMissingSymbol
	}
	side, ok := domain.ParseSide(raw.Side)
	if !ok {
		return domain.TradeRecord{}, SkipInvalidSide
	}
	price, ok := parsePositive(raw.Price)
	if !ok {
		return domain.TradeRecord{}, SkipInvalidPrice
	}
	qty, ok := parsePositive(raw.Quantity)
	if !ok {
		return domain.TradeRecord{}, SkipInvalidQuantity
	}
	return domain.TradeRecord{
		Ref:      raw.Ref,
		Time:     raw.Time,
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Quantity: qty,
		Note:     raw.Note,
	}, ""
}

// parsePositive parses a finite decimal greater than zero.
// decimal rejects NaN and Inf, so any parse success is finite.
func parsePositive(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
