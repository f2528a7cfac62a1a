package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

// AppendTrade stores a raw trade as entered and returns its row ID.
func (r *Repository) AppendTrade(ctx context.Context, trade *domain.RawTrade) (int64, error) {
	const query = `
	INSERT INTO trades (ref, executed_at, symbol, side, price, quantity, note)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Ref, nullTime(trade.Time), trade.Symbol, trade.Side, trade.Price, trade.Quantity, trade.Note)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w: %w", trade.Symbol, ports.ErrUpdateFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w: %w", trade.Symbol, ports.ErrQueryFailed, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade appended", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "ref": trade.Ref})
	return id, nil
}

// ListTrades returns every stored trade in entry order.
func (r *Repository) ListTrades(ctx context.Context) ([]domain.RawTrade, error) {
	return listTrades(ctx, r.db)
}

func listTrades(ctx context.Context, q querier) ([]domain.RawTrade, error) {
	const query = `
	SELECT id, ref, executed_at, symbol, side, price, quantity, note
	FROM trades
	ORDER BY id ASC`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]domain.RawTrade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during ListTrades: %w: %w", ports.ErrQueryFailed, err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

func scanTrade(s scanner) (domain.RawTrade, error) {
	var t domain.RawTrade
	var ts sql.NullTime
	err := s.Scan(&t.ID, &t.Ref, &ts, &t.Symbol, &t.Side, &t.Price, &t.Quantity, &t.Note)
	if err != nil {
		return domain.RawTrade{}, err
	}
	t.Time = fromNullTime(ts)
	return t, nil
}
