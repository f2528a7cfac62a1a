// Package postgres implements ports.Store on PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"cryptoLedger/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var _ ports.Store = (*Store)(nil)

// PoolConfig tunes the pgx pool.
type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolConfig suits a single scheduler process plus the occasional CLI call.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:          5,
		MinConns:          1,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
	}
}

// Config holds configuration for the Postgres store.
type Config struct {
	DatabaseURL string
	Pool        PoolConfig
	Logger      ports.Logger
}

// Store implements ports.Store. Decimal columns are NUMERIC and cross the wire as text.
type Store struct {
	pool   *pgxpool.Pool
	logger ports.Logger
}

// New connects, pings and migrates the database.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Postgres store")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: database URL is empty", ports.ErrConfigurationError)
	}
	if cfg.Pool.MaxConns == 0 {
		cfg.Pool = DefaultPoolConfig()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w: %w", ports.ErrConfigurationError, err)
	}
	poolCfg.MaxConns = cfg.Pool.MaxConns
	poolCfg.MinConns = min(cfg.Pool.MinConns, cfg.Pool.MaxConns)
	poolCfg.MaxConnLifetime = cfg.Pool.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Pool.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.Pool.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w: %w", ports.ErrDBConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w: %w", ports.ErrDBConnection, err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	cfg.Logger.Info(ctx, "Postgres store ready", map[string]interface{}{"maxConns": poolCfg.MaxConns})

	return &Store{pool: pool, logger: cfg.Logger}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.logger.Info(context.Background(), "Closing Postgres pool")
	s.pool.Close()
	return nil
}

// Migrate creates the tables used by the store if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists trades (
			id bigserial primary key,
			ref text not null default '',
			executed_at timestamptz null,
			symbol text not null,
			side text not null,
			price text not null,
			quantity text not null,
			note text not null default ''
		);`,
		`create table if not exists price_snapshots (
			taken_at timestamptz not null,
			symbol text not null,
			price numeric not null,
			primary key (taken_at, symbol)
		);`,
		`create table if not exists ledger_rows (
			id bigint primary key,
			ref text not null,
			executed_at timestamptz null,
			symbol text not null,
			side text not null,
			price numeric not null,
			quantity numeric not null,
			note text not null,
			trade_amount numeric not null,
			running_position numeric not null,
			average_cost numeric not null,
			floating_pnl numeric null,
			closed_quantity numeric not null,
			realized_pnl numeric not null,
			cumulative_realized_pnl numeric not null
		);`,
		`create table if not exists ledger_summary (
			ord int primary key,
			symbol text not null unique,
			position numeric not null,
			average_cost numeric not null,
			latest_price numeric null,
			floating_pnl numeric null,
			realized_pnl numeric not null,
			trade_count int not null
		);`,
		`create table if not exists candles (
			symbol text not null,
			candle_interval text not null,
			open_time timestamptz not null,
			close_time timestamptz not null,
			open numeric not null,
			high numeric not null,
			low numeric not null,
			close numeric not null,
			volume numeric not null,
			primary key (symbol, candle_interval, open_time)
		);`,
		`create table if not exists rolling_summary (
			symbol text primary key,
			window_start timestamptz not null,
			window_end timestamptz not null,
			open numeric not null,
			high numeric not null,
			low numeric not null,
			close numeric not null,
			volume numeric not null,
			change_pct numeric not null,
			sma numeric null,
			ema numeric null,
			atr numeric null,
			candle_count int not null
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ports.ErrUpdateFailed, err)
		}
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// sendBatch runs all queued statements of b inside tx and reports the first failure.
func sendBatch(ctx context.Context, tx pgx.Tx, b *pgx.Batch) error {
	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch statement %d: %w: %w", i, ports.ErrUpdateFailed, err)
		}
	}
	return br.Close()
}

// --- value helpers ---

func numeric(d decimal.Decimal) string { return d.String() }

func nullNumeric(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNumeric(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func parseNullNumeric(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// decimals parses text columns into their decimal destinations in order.
func decimals(src []string, dst ...*decimal.Decimal) error {
	for i, s := range src {
		d, err := parseNumeric(s)
		if err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
		*dst[i] = d
	}
	return nil
}
