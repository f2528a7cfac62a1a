package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

// ReplaceLedger swaps the stored ledger and summary for a freshly computed one in one transaction.
func (r *Repository) ReplaceLedger(ctx context.Context, rows []domain.LedgerRow, summary []domain.SummaryRow) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		return replaceLedger(ctx, tx, rows, summary)
	})
	if err != nil {
		return err
	}
	r.logger.Debug(ctx, "Ledger replaced", map[string]interface{}{"rows": len(rows), "symbols": len(summary)})
	return nil
}

// WithLedgerLock runs fn inside one BEGIN IMMEDIATE transaction. SQLite grants the write
// lock at BEGIN, so rebuilds from other connections or processes wait (up to the busy
// timeout) until fn's reads and write are committed.
func (r *Repository) WithLedgerLock(ctx context.Context, fn func(ctx context.Context, s ports.LedgerSession) error) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &ledgerSession{tx: tx, logger: r.logger})
	})
}

// ledgerSession serves a rebuild from inside the lock transaction.
type ledgerSession struct {
	tx     *sql.Tx
	logger ports.Logger
}

func (s *ledgerSession) ListTrades(ctx context.Context) ([]domain.RawTrade, error) {
	return listTrades(ctx, s.tx)
}

func (s *ledgerSession) LatestPrices(ctx context.Context) (domain.PriceBook, error) {
	return latestPrices(ctx, s.tx)
}

func (s *ledgerSession) ReplaceLedger(ctx context.Context, rows []domain.LedgerRow, summary []domain.SummaryRow) error {
	if err := replaceLedger(ctx, s.tx, rows, summary); err != nil {
		return err
	}
	s.logger.Debug(ctx, "Ledger replaced", map[string]interface{}{"rows": len(rows), "symbols": len(summary)})
	return nil
}

func replaceLedger(ctx context.Context, tx *sql.Tx, rows []domain.LedgerRow, summary []domain.SummaryRow) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_rows`); err != nil {
		return fmt.Errorf("clear ledger rows: %w: %w", ports.ErrUpdateFailed, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_summary`); err != nil {
		return fmt.Errorf("clear ledger summary: %w: %w", ports.ErrUpdateFailed, err)
	}

	rowStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO ledger_rows (id, ref, executed_at, symbol, side, price, quantity, note,
	                         trade_amount, running_position, average_cost, floating_pnl,
	                         closed_quantity, realized_pnl, cumulative_realized_pnl)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare ledger row insert: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer rowStmt.Close()

	for _, row := range rows {
		_, err := rowStmt.ExecContext(ctx,
			row.ID, row.Ref, nullTime(row.Time), row.Symbol, string(row.Side), row.Price, row.Quantity, row.Note,
			row.TradeAmount, row.RunningPosition, row.AverageCost, row.FloatingPnL,
			row.ClosedQuantity, row.RealizedPnL, row.CumulativeRealizedPnL)
		if err != nil {
			return fmt.Errorf("insert ledger row %d: %w: %w", row.ID, ports.ErrUpdateFailed, err)
		}
	}

	sumStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO ledger_summary (ord, symbol, position, average_cost, latest_price, floating_pnl, realized_pnl, trade_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare summary insert: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer sumStmt.Close()

	for i, s := range summary {
		_, err := sumStmt.ExecContext(ctx,
			i+1, s.Symbol, s.Position, s.AverageCost, s.LatestPrice, s.FloatingPnL, s.RealizedPnL, s.TradeCount)
		if err != nil {
			return fmt.Errorf("insert summary row %s: %w: %w", s.Symbol, ports.ErrUpdateFailed, err)
		}
	}
	return nil
}

// LedgerRows returns the stored ledger in id order.
func (r *Repository) LedgerRows(ctx context.Context) ([]domain.LedgerRow, error) {
	const query = `
	SELECT id, ref, executed_at, symbol, side, price, quantity, note,
	       trade_amount, running_position, average_cost, floating_pnl,
	       closed_quantity, realized_pnl, cumulative_realized_pnl
	FROM ledger_rows
	ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger rows: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	out := make([]domain.LedgerRow, 0)
	for rows.Next() {
		row, err := scanLedgerRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w: %w", ports.ErrQueryFailed, err)
		}
		out = append(out, row)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

// SummaryRows returns the stored summary in the order it was written.
func (r *Repository) SummaryRows(ctx context.Context) ([]domain.SummaryRow, error) {
	const query = `
	SELECT symbol, position, average_cost, latest_price, floating_pnl, realized_pnl, trade_count
	FROM ledger_summary
	ORDER BY ord ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger summary: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	out := make([]domain.SummaryRow, 0)
	for rows.Next() {
		var s domain.SummaryRow
		err := rows.Scan(&s.Symbol, &s.Position, &s.AverageCost, &s.LatestPrice, &s.FloatingPnL, &s.RealizedPnL, &s.TradeCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w: %w", ports.ErrQueryFailed, err)
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func scanLedgerRow(s scanner) (domain.LedgerRow, error) {
	var row domain.LedgerRow
	var ts sql.NullTime
	var side string
	err := s.Scan(
		&row.ID, &row.Ref, &ts, &row.Symbol, &side, &row.Price, &row.Quantity, &row.Note,
		&row.TradeAmount, &row.RunningPosition, &row.AverageCost, &row.FloatingPnL,
		&row.ClosedQuantity, &row.RealizedPnL, &row.CumulativeRealizedPnL)
	if err != nil {
		return domain.LedgerRow{}, err
	}
	row.Time = fromNullTime(ts)
	row.Side = domain.Side(side)
	return row, nil
}
