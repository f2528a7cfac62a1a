package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is one row of the price store: the prices fetched at a single point in time.
type PriceSnapshot struct {
	TakenAt time.Time
	Prices  map[string]decimal.Decimal
}

// Symbols returns the snapshot's symbols in sorted order.
func (s PriceSnapshot) Symbols() []string {
	out := make([]string, 0, len(s.Prices))
	for sym := range s.Prices {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// PriceBook maps symbol to latest known price. A missing entry means the price is unavailable.
type PriceBook map[string]decimal.Decimal

// Price returns the latest price for a symbol and whether one is known.
func (b PriceBook) Price(symbol string) (decimal.Decimal, bool) {
	if b == nil {
		return decimal.Zero, false
	}
	p, ok := b[NormalizeSymbol(symbol)]
	return p, ok
}

// Book converts a snapshot into a PriceBook.
func (s PriceSnapshot) Book() PriceBook {
	book := make(PriceBook, len(s.Prices))
	for sym, p := range s.Prices {
		book[NormalizeSymbol(sym)] = p
	}
	return book
}
