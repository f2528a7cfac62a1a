package ledger

import (
	"cryptoLedger/internal/domain"

	"github.com/shopspring/decimal"
)

// book tracks the position of a single symbol under one accounting policy.
type book interface {
	// apply folds a trade (signed quantity at price) into the book and returns
	// the realized P&L and the quantity closed against the prior position.
	apply(price, qty decimal.Decimal) (realized, closed decimal.Decimal)
	state() domain.PositionState
}

func newBook(policy domain.AccountingPolicy) book {
	if policy == domain.FIFO {
		return &fifoBook{}
	}
	return &averageCostBook{}
}

// averageCostBook carries a single weighted-average cost for the whole position.
type averageCostBook struct {
	position decimal.Decimal
	avgCost  decimal.Decimal
	realized decimal.Decimal
}

func (b *averageCostBook) apply(price, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	newPos := b.position.Add(qty)
	realized, closed := decimal.Zero, decimal.Zero

	switch {
	case b.position.IsZero() || b.position.Sign() == qty.Sign():
		// Opening or increasing: blend prior cost with the trade price.
		b.avgCost = b.avgCost.Mul(b.position.Abs()).
			Add(price.Mul(qty.Abs())).
			Div(newPos.Abs())
	case newPos.IsZero():
		closed = b.position.Abs()
		realized = price.Sub(b.avgCost).Mul(b.position)
		b.avgCost = decimal.Zero
	case newPos.Sign() == b.position.Sign():
		// Reducing: basis unchanged.
		closed = qty.Abs()
		realized = price.Sub(b.avgCost).Mul(qty.Neg())
	default:
		// Flipping through zero: the remainder opens at the trade price.
		closed = b.position.Abs()
		realized = price.Sub(b.avgCost).Mul(b.position)
		b.avgCost = price
	}

	b.position = newPos
	b.realized = b.realized.Add(realized)
	return realized, closed
}

func (b *averageCostBook) state() domain.PositionState {
	return domain.PositionState{
		Position:    b.position,
		AverageCost: b.avgCost,
		RealizedPnL: b.realized,
	}
}

// lot is an open slice of a position. All lots in a fifoBook share one sign.
type lot struct {
	qty   decimal.Decimal // signed
	price decimal.Decimal
}

// fifoBook matches closing quantity against the oldest open lots first.
type fifoBook struct {
	lots     []lot
	realized decimal.Decimal
}

func (b *fifoBook) apply(price, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	remaining := qty
	realized, closed := decimal.Zero, decimal.Zero

	for len(b.lots) > 0 && !remaining.IsZero() && b.lots[0].qty.Sign() != remaining.Sign() {
		head := &b.lots[0]
		matched := decimal.Min(head.qty.Abs(), remaining.Abs())
		lotSign := decimal.NewFromInt(int64(head.qty.Sign()))

		realized = realized.Add(price.Sub(head.price).Mul(matched).Mul(lotSign))
		closed = closed.Add(matched)

		head.qty = head.qty.Sub(matched.Mul(lotSign))
		remaining = remaining.Add(matched.Mul(lotSign))
		if head.qty.IsZero() {
			b.lots = b.lots[1:]
		}
	}
	if !remaining.IsZero() {
		b.lots = append(b.lots, lot{qty: remaining, price: price})
	}

	b.realized = b.realized.Add(realized)
	return realized, closed
}

func (b *fifoBook) state() domain.PositionState {
	position, cost := decimal.Zero, decimal.Zero
	for _, l := range b.lots {
		position = position.Add(l.qty)
		cost = cost.Add(l.qty.Abs().Mul(l.price))
	}
	avg := decimal.Zero
	if !position.IsZero() {
		avg = cost.Div(position.Abs())
	}
	return domain.PositionState{
		Position:    position,
		AverageCost: avg,
		RealizedPnL: b.realized,
	}
}
