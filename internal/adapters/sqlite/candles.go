package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

// UpsertCandles inserts candles, replacing any stored candle with the same symbol, interval and open time.
func (r *Repository) UpsertCandles(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, candle_interval, open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, candle_interval, open_time) DO UPDATE SET
			close_time = excluded.close_time,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
		if err != nil {
			return fmt.Errorf("prepare candle upsert: %w: %w", ports.ErrUpdateFailed, err)
		}
		defer stmt.Close()

		for _, c := range candles {
			_, err := stmt.ExecContext(ctx,
				domain.NormalizeSymbol(c.Symbol), c.Interval, c.OpenTime.UnixMilli(), c.CloseTime.UnixMilli(),
				c.Open, c.High, c.Low, c.Close, c.Volume)
			if err != nil {
				return fmt.Errorf("upsert candle %s %s %s: %w: %w", c.Symbol, c.Interval, c.OpenTime, ports.ErrUpdateFailed, err)
			}
		}
		r.logger.Debug(ctx, "Candles upserted", map[string]interface{}{"count": len(candles)})
		return nil
	})
}

// CandlesBetween returns stored candles with open time in [start, end], oldest first.
func (r *Repository) CandlesBetween(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error) {
	const query = `
	SELECT symbol, candle_interval, open_time, close_time, open, high, low, close, volume
	FROM candles
	WHERE symbol = ? AND candle_interval = ? AND open_time BETWEEN ? AND ?
	ORDER BY open_time ASC`

	rows, err := r.db.QueryContext(ctx, query, domain.NormalizeSymbol(symbol), interval, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	out := make([]*domain.Candle, 0)
	for rows.Next() {
		c := &domain.Candle{}
		var openMs, closeMs int64
		if err := rows.Scan(&c.Symbol, &c.Interval, &openMs, &closeMs, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w: %w", ports.ErrQueryFailed, err)
		}
		c.OpenTime = fromMillis(openMs)
		c.CloseTime = fromMillis(closeMs)
		out = append(out, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

// ReplaceRollingSummaries swaps the rolling summary table in one transaction.
func (r *Repository) ReplaceRollingSummaries(ctx context.Context, summaries []domain.RollingSummary) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rolling_summary`); err != nil {
			return fmt.Errorf("clear rolling summary: %w: %w", ports.ErrUpdateFailed, err)
		}
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rolling_summary (symbol, window_start, window_end, open, high, low, close, volume,
		                             change_pct, sma, ema, atr, candle_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare rolling summary insert: %w: %w", ports.ErrUpdateFailed, err)
		}
		defer stmt.Close()

		for _, s := range summaries {
			_, err := stmt.ExecContext(ctx,
				s.Symbol, s.WindowStart.UnixMilli(), s.WindowEnd.UnixMilli(), s.Open, s.High, s.Low, s.Close, s.Volume,
				s.ChangePct, s.SMA, s.EMA, s.ATR, s.CandleCount)
			if err != nil {
				return fmt.Errorf("insert rolling summary %s: %w: %w", s.Symbol, ports.ErrUpdateFailed, err)
			}
		}
		return nil
	})
}

// RollingSummaries returns the rolling summary table ordered by symbol.
func (r *Repository) RollingSummaries(ctx context.Context) ([]domain.RollingSummary, error) {
	const query = `
	SELECT symbol, window_start, window_end, open, high, low, close, volume,
	       change_pct, sma, ema, atr, candle_count
	FROM rolling_summary
	ORDER BY symbol ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rolling summary: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	out := make([]domain.RollingSummary, 0)
	for rows.Next() {
		var s domain.RollingSummary
		var startMs, endMs int64
		err := rows.Scan(&s.Symbol, &startMs, &endMs, &s.Open, &s.High, &s.Low, &s.Close, &s.Volume,
			&s.ChangePct, &s.SMA, &s.EMA, &s.ATR, &s.CandleCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rolling summary: %w: %w", ports.ErrQueryFailed, err)
		}
		s.WindowStart = fromMillis(startMs)
		s.WindowEnd = fromMillis(endMs)
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rolling summary rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}
