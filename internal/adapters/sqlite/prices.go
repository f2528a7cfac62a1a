package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"

	"github.com/shopspring/decimal"
)

// SaveSnapshot stores every price of the snapshot under its timestamp.
func (r *Repository) SaveSnapshot(ctx context.Context, snap domain.PriceSnapshot) error {
	if len(snap.Prices) == 0 {
		return fmt.Errorf("snapshot at %s has no prices: %w", snap.TakenAt, ports.ErrInvalidRequest)
	}
	takenAt := snap.TakenAt.UnixMilli()

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_snapshots (taken_at, symbol, price) VALUES (?, ?, ?)
		ON CONFLICT (taken_at, symbol) DO UPDATE SET price = excluded.price`)
		if err != nil {
			return fmt.Errorf("prepare snapshot insert: %w: %w", ports.ErrUpdateFailed, err)
		}
		defer stmt.Close()

		for _, sym := range snap.Symbols() {
			if _, err := stmt.ExecContext(ctx, takenAt, domain.NormalizeSymbol(sym), snap.Prices[sym]); err != nil {
				return fmt.Errorf("insert snapshot price for %s: %w: %w", sym, ports.ErrUpdateFailed, err)
			}
		}
		r.logger.Debug(ctx, "Price snapshot saved", map[string]interface{}{"takenAt": takenAt, "symbols": len(snap.Prices)})
		return nil
	})
}

// LatestPrices returns the prices of the most recent snapshot.
func (r *Repository) LatestPrices(ctx context.Context) (domain.PriceBook, error) {
	return latestPrices(ctx, r.db)
}

func latestPrices(ctx context.Context, q querier) (domain.PriceBook, error) {
	const query = `
	SELECT symbol, price FROM price_snapshots
	WHERE taken_at = (SELECT MAX(taken_at) FROM price_snapshots)`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest prices: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	book := make(domain.PriceBook)
	for rows.Next() {
		var sym string
		var price decimal.Decimal
		if err := rows.Scan(&sym, &price); err != nil {
			return nil, fmt.Errorf("failed to scan latest price: %w: %w", ports.ErrQueryFailed, err)
		}
		book[sym] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating latest prices: %w: %w", ports.ErrQueryFailed, err)
	}
	return book, nil
}
