package postgres

import (
	"context"
	"fmt"
	"time"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AppendTrade stores a raw trade as entered and returns its row ID.
func (s *Store) AppendTrade(ctx context.Context, trade *domain.RawTrade) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		insert into trades (ref, executed_at, symbol, side, price, quantity, note)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id`,
		trade.Ref, nullTime(trade.Time), trade.Symbol, trade.Side, trade.Price, trade.Quantity, trade.Note,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert trade for symbol %s: %w: %w", trade.Symbol, ports.ErrUpdateFailed, err)
	}
	trade.ID = id
	s.logger.Debug(ctx, "Trade appended", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "ref": trade.Ref})
	return id, nil
}

// ListTrades returns every stored trade in entry order.
func (s *Store) ListTrades(ctx context.Context) ([]domain.RawTrade, error) {
	return listTrades(ctx, s.pool)
}

func listTrades(ctx context.Context, q querier) ([]domain.RawTrade, error) {
	rows, err := q.Query(ctx, `
		select id, ref, executed_at, symbol, side, price, quantity, note
		from trades
		order by id asc`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	out := make([]domain.RawTrade, 0)
	for rows.Next() {
		var t domain.RawTrade
		var ts *time.Time
		if err := rows.Scan(&t.ID, &t.Ref, &ts, &t.Symbol, &t.Side, &t.Price, &t.Quantity, &t.Note); err != nil {
			return nil, fmt.Errorf("scan trade: %w: %w", ports.ErrQueryFailed, err)
		}
		t.Time = fromNullTime(ts)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

// SaveSnapshot stores every price of the snapshot under its timestamp.
func (s *Store) SaveSnapshot(ctx context.Context, snap domain.PriceSnapshot) error {
	if len(snap.Prices) == 0 {
		return fmt.Errorf("snapshot at %s has no prices: %w", snap.TakenAt, ports.ErrInvalidRequest)
	}
	takenAt := snap.TakenAt.UTC().Truncate(time.Millisecond)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, sym := range snap.Symbols() {
			b.Queue(`
				insert into price_snapshots (taken_at, symbol, price) values ($1, $2, $3::numeric)
				on conflict (taken_at, symbol) do update set price = excluded.price`,
				takenAt, domain.NormalizeSymbol(sym), numeric(snap.Prices[sym]))
		}
		return sendBatch(ctx, tx, b)
	})
}

// LatestPrices returns the prices of the most recent snapshot.
func (s *Store) LatestPrices(ctx context.Context) (domain.PriceBook, error) {
	return latestPrices(ctx, s.pool)
}

func latestPrices(ctx context.Context, q querier) (domain.PriceBook, error) {
	rows, err := q.Query(ctx, `
		select symbol, price::text from price_snapshots
		where taken_at = (select max(taken_at) from price_snapshots)`)
	if err != nil {
		return nil, fmt.Errorf("query latest prices: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	book := make(domain.PriceBook)
	for rows.Next() {
		var sym, price string
		if err := rows.Scan(&sym, &price); err != nil {
			return nil, fmt.Errorf("scan latest price: %w: %w", ports.ErrQueryFailed, err)
		}
		p, err := parseNumeric(price)
		if err != nil {
			return nil, fmt.Errorf("parse price for %s: %w: %w", sym, ports.ErrQueryFailed, err)
		}
		book[sym] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest prices: %w: %w", ports.ErrQueryFailed, err)
	}
	return book, nil
}

// ReplaceLedger swaps the stored ledger and summary in one transaction.
func (s *Store) ReplaceLedger(ctx context.Context, rows []domain.LedgerRow, summary []domain.SummaryRow) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return replaceLedger(ctx, tx, rows, summary)
	})
	if err != nil {
		return err
	}
	s.logger.Debug(ctx, "Ledger replaced", map[string]interface{}{"rows": len(rows), "symbols": len(summary)})
	return nil
}

// ledgerLockKey identifies the rebuild lock among the database's advisory locks.
const ledgerLockKey int64 = 0x6c6564676572 // "ledger"

// WithLedgerLock runs fn in one transaction holding a transaction-scoped advisory lock,
// so rebuilds from every process connected to the database run one at a time. The
// lock is released on commit or rollback.
func (s *Store) WithLedgerLock(ctx context.Context, fn func(ctx context.Context, sess ports.LedgerSession) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
			return fmt.Errorf("acquire ledger lock: %w: %w", ports.ErrLedgerLockFailed, err)
		}
		return fn(ctx, &ledgerSession{tx: tx, logger: s.logger})
	})
}

// ledgerSession serves a rebuild from inside the lock transaction.
type ledgerSession struct {
	tx     pgx.Tx
	logger ports.Logger
}

func (l *ledgerSession) ListTrades(ctx context.Context) ([]domain.RawTrade, error) {
	return listTrades(ctx, l.tx)
}

func (l *ledgerSession) LatestPrices(ctx context.Context) (domain.PriceBook, error) {
	return latestPrices(ctx, l.tx)
}

func (l *ledgerSession) ReplaceLedger(ctx context.Context, rows []domain.LedgerRow, summary []domain.SummaryRow) error {
	if err := replaceLedger(ctx, l.tx, rows, summary); err != nil {
		return err
	}
	l.logger.Debug(ctx, "Ledger replaced", map[string]interface{}{"rows": len(rows), "symbols": len(summary)})
	return nil
}

func replaceLedger(ctx context.Context, tx pgx.Tx, rows []domain.LedgerRow, summary []domain.SummaryRow) error {
	b := &pgx.Batch{}
	b.Queue(`delete from ledger_rows`)
	b.Queue(`delete from ledger_summary`)
	for _, r := range rows {
		b.Queue(`
			insert into ledger_rows (id, ref, executed_at, symbol, side, price, quantity, note,
				trade_amount, running_position, average_cost, floating_pnl,
				closed_quantity, realized_pnl, cumulative_realized_pnl)
			values ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8,
				$9::numeric, $10::numeric, $11::numeric, $12::numeric,
				$13::numeric, $14::numeric, $15::numeric)`,
			r.ID, r.Ref, nullTime(r.Time), r.Symbol, string(r.Side), numeric(r.Price), numeric(r.Quantity), r.Note,
			numeric(r.TradeAmount), numeric(r.RunningPosition), numeric(r.AverageCost), nullNumeric(r.FloatingPnL),
			numeric(r.ClosedQuantity), numeric(r.RealizedPnL), numeric(r.CumulativeRealizedPnL))
	}
	for i, sr := range summary {
		b.Queue(`
			insert into ledger_summary (ord, symbol, position, average_cost, latest_price, floating_pnl, realized_pnl, trade_count)
			values ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8)`,
			i+1, sr.Symbol, numeric(sr.Position), numeric(sr.AverageCost),
			nullNumeric(sr.LatestPrice), nullNumeric(sr.FloatingPnL), numeric(sr.RealizedPnL), sr.TradeCount)
	}
	return sendBatch(ctx, tx, b)
}

// LedgerRows returns the stored ledger in id order.
func (s *Store) LedgerRows(ctx context.Context) ([]domain.LedgerRow, error) {
	rows, err := s.pool.Query(ctx, `
		select id, ref, executed_at, symbol, side, price::text, quantity::text, note,
			trade_amount::text, running_position::text, average_cost::text, floating_pnl::text,
			closed_quantity::text, realized_pnl::text, cumulative_realized_pnl::text
		from ledger_rows
		order by id asc`)
	if err != nil {
		return nil, fmt.Errorf("query ledger rows: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	out := make([]domain.LedgerRow, 0)
	for rows.Next() {
		var r domain.LedgerRow
		var ts *time.Time
		var side string
		var floating *string
		num := make([]string, 8)
		err := rows.Scan(&r.ID, &r.Ref, &ts, &r.Symbol, &side, &num[0], &num[1], &r.Note,
			&num[2], &num[3], &num[4], &floating, &num[5], &num[6], &num[7])
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w: %w", ports.ErrQueryFailed, err)
		}
		if err := decimals(num, &r.Price, &r.Quantity, &r.TradeAmount, &r.RunningPosition, &r.AverageCost,
			&r.ClosedQuantity, &r.RealizedPnL, &r.CumulativeRealizedPnL); err != nil {
			return nil, fmt.Errorf("parse ledger row %d: %w: %w", r.ID, ports.ErrQueryFailed, err)
		}
		if r.FloatingPnL, err = parseNullNumeric(floating); err != nil {
			return nil, fmt.Errorf("parse ledger row %d: %w: %w", r.ID, ports.ErrQueryFailed, err)
		}
		r.Time = fromNullTime(ts)
		r.Side = domain.Side(side)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

// SummaryRows returns the stored summary in the order it was written.
func (s *Store) SummaryRows(ctx context.Context) ([]domain.SummaryRow, error) {
	rows, err := s.pool.Query(ctx, `
		select symbol, position::text, average_cost::text, latest_price::text, floating_pnl::text,
			realized_pnl::text, trade_count
		from ledger_summary
		order by ord asc`)
	if err != nil {
		return nil, fmt.Errorf("query ledger summary: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	out := make([]domain.SummaryRow, 0)
	for rows.Next() {
		var sr domain.SummaryRow
		var latest, floating *string
		num := make([]string, 3)
		if err := rows.Scan(&sr.Symbol, &num[0], &num[1], &latest, &floating, &num[2], &sr.TradeCount); err != nil {
			return nil, fmt.Errorf("scan summary row: %w: %w", ports.ErrQueryFailed, err)
		}
		if err := decimals(num, &sr.Position, &sr.AverageCost, &sr.RealizedPnL); err != nil {
			return nil, fmt.Errorf("parse summary %s: %w: %w", sr.Symbol, ports.ErrQueryFailed, err)
		}
		if sr.LatestPrice, err = parseNullNumeric(latest); err != nil {
			return nil, fmt.Errorf("parse summary %s: %w: %w", sr.Symbol, ports.ErrQueryFailed, err)
		}
		if sr.FloatingPnL, err = parseNullNumeric(floating); err != nil {
			return nil, fmt.Errorf("parse summary %s: %w: %w", sr.Symbol, ports.ErrQueryFailed, err)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

// UpsertCandles inserts candles, replacing any stored candle with the same key.
func (s *Store) UpsertCandles(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, c := range candles {
			b.Queue(`
				insert into candles (symbol, candle_interval, open_time, close_time, open, high, low, close, volume)
				values ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric)
				on conflict (symbol, candle_interval, open_time) do update set
					close_time = excluded.close_time,
					open = excluded.open,
					high = excluded.high,
					low = excluded.low,
					close = excluded.close,
					volume = excluded.volume`,
				domain.NormalizeSymbol(c.Symbol), c.Interval, c.OpenTime.UTC(), c.CloseTime.UTC(),
				numeric(c.Open), numeric(c.High), numeric(c.Low), numeric(c.Close), numeric(c.Volume))
		}
		return sendBatch(ctx, tx, b)
	})
}

// CandlesBetween returns stored candles with open time in [start, end], oldest first.
func (s *Store) CandlesBetween(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error) {
	rows, err := s.pool.Query(ctx, `
		select symbol, candle_interval, open_time, close_time,
			open::text, high::text, low::text, close::text, volume::text
		from candles
		where symbol = $1 and candle_interval = $2 and open_time between $3 and $4
		order by open_time asc`,
		domain.NormalizeSymbol(symbol), interval, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query candles for %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	out := make([]*domain.Candle, 0)
	for rows.Next() {
		c := &domain.Candle{}
		num := make([]string, 5)
		if err := rows.Scan(&c.Symbol, &c.Interval, &c.OpenTime, &c.CloseTime, &num[0], &num[1], &num[2], &num[3], &num[4]); err != nil {
			return nil, fmt.Errorf("scan candle: %w: %w", ports.ErrQueryFailed, err)
		}
		if err := decimals(num, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("parse candle: %w: %w", ports.ErrQueryFailed, err)
		}
		c.OpenTime = c.OpenTime.UTC()
		c.CloseTime = c.CloseTime.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

// ReplaceRollingSummaries swaps the rolling summary table in one transaction.
func (s *Store) ReplaceRollingSummaries(ctx context.Context, summaries []domain.RollingSummary) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		b.Queue(`delete from rolling_summary`)
		for _, rs := range summaries {
			b.Queue(`
				insert into rolling_summary (symbol, window_start, window_end, open, high, low, close, volume,
					change_pct, sma, ema, atr, candle_count)
				values ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric,
					$9::numeric, $10::numeric, $11::numeric, $12::numeric, $13)`,
				rs.Symbol, rs.WindowStart.UTC(), rs.WindowEnd.UTC(),
				numeric(rs.Open), numeric(rs.High), numeric(rs.Low), numeric(rs.Close), numeric(rs.Volume),
				numeric(rs.ChangePct), nullNumeric(rs.SMA), nullNumeric(rs.EMA), nullNumeric(rs.ATR), rs.CandleCount)
		}
		return sendBatch(ctx, tx, b)
	})
}

// RollingSummaries returns the rolling summary table ordered by symbol.
func (s *Store) RollingSummaries(ctx context.Context) ([]domain.RollingSummary, error) {
	rows, err := s.pool.Query(ctx, `
		select symbol, window_start, window_end, open::text, high::text, low::text, close::text, volume::text,
			change_pct::text, sma::text, ema::text, atr::text, candle_count
		from rolling_summary
		order by symbol asc`)
	if err != nil {
		return nil, fmt.Errorf("query rolling summary: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	out := make([]domain.RollingSummary, 0)
	for rows.Next() {
		var rs domain.RollingSummary
		num := make([]string, 6)
		var sma, ema, atr *string
		err := rows.Scan(&rs.Symbol, &rs.WindowStart, &rs.WindowEnd, &num[0], &num[1], &num[2], &num[3], &num[4],
			&num[5], &sma, &ema, &atr, &rs.CandleCount)
		if err != nil {
			return nil, fmt.Errorf("scan rolling summary: %w: %w", ports.ErrQueryFailed, err)
		}
		if err := decimals(num, &rs.Open, &rs.High, &rs.Low, &rs.Close, &rs.Volume, &rs.ChangePct); err != nil {
			return nil, fmt.Errorf("parse rolling summary %s: %w: %w", rs.Symbol, ports.ErrQueryFailed, err)
		}
		for _, f := range []struct {
			src *string
			dst *decimal.NullDecimal
		}{{sma, &rs.SMA}, {ema, &rs.EMA}, {atr, &rs.ATR}} {
			if *f.dst, err = parseNullNumeric(f.src); err != nil {
				return nil, fmt.Errorf("parse rolling summary %s: %w: %w", rs.Symbol, ports.ErrQueryFailed, err)
			}
		}
		rs.WindowStart = rs.WindowStart.UTC()
		rs.WindowEnd = rs.WindowEnd.UTC()
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rolling summary: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}
