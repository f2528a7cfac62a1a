package domain

import "strings"

// Side represents the side of a trade (BUY or SELL).
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Sign returns +1 for Buy and -1 for Sell.
func (s Side) Sign() int64 {
	if s == Sell {
		return -1
	}
	return 1
}

// ParseSide converts free-text side input into a Side.
// Returns false for empty or unrecognised input.
func ParseSide(raw string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "B", "LONG":
		return Buy, true
	case "SELL", "S", "SHORT":
		return Sell, true
	default:
		return "", false
	}
}

// AccountingPolicy selects how cost basis is carried across trades.
type AccountingPolicy string

const (
	WeightedAverage AccountingPolicy = "wac"
	FIFO            AccountingPolicy = "fifo"
)

// ParsePolicy converts a config string to an AccountingPolicy.
func ParsePolicy(raw string) (AccountingPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "wac", "weighted", "weighted_average":
		return WeightedAverage, true
	case "fifo":
		return FIFO, true
	default:
		return "", false
	}
}

// NormalizeSymbol upper-cases and trims an asset symbol.
func NormalizeSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
