package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoLedger/internal/candles"
	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

// CandleService backfills candles into the store and maintains the rolling summary.
type CandleService struct {
	logger   ports.Logger
	source   ports.CandleSource
	store    ports.CandleStore
	assets   []string
	interval string
	window   time.Duration
	periods  candles.Periods
	now      func() time.Time
}

// CandleConfig configures a CandleService.
type CandleConfig struct {
	Assets   []string
	Interval string        // e.g. "1m"
	Window   time.Duration // Rolling summary window
	Periods  candles.Periods
}

// NewCandleService creates a CandleService.
func NewCandleService(logger ports.Logger, source ports.CandleSource, store ports.CandleStore, cfg CandleConfig) (*CandleService, error) {
	if logger == nil || source == nil || store == nil {
		return nil, fmt.Errorf("missing required dependencies for CandleService")
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	if cfg.Window <= 0 {
		cfg.Window = 2 * time.Hour
	}
	if cfg.Periods == (candles.Periods{}) {
		cfg.Periods = candles.DefaultPeriods()
	}
	return &CandleService{
		logger:   logger,
		source:   source,
		store:    store,
		assets:   cfg.Assets,
		interval: cfg.Interval,
		window:   cfg.Window,
		periods:  cfg.Periods,
		now:      time.Now,
	}, nil
}

// Backfill fetches candles for [start, end] and upserts them. It returns the number stored.
func (s *CandleService) Backfill(ctx context.Context, symbol, interval string, start, end time.Time) (int, error) {
	if interval == "" {
		interval = s.interval
	}
	fetched, err := s.source.GetCandles(ctx, symbol, interval, start, end)
	if err != nil {
		return 0, fmt.Errorf("backfill %s %s: %w", symbol, interval, err)
	}
	if err := s.store.UpsertCandles(ctx, fetched); err != nil {
		return 0, fmt.Errorf("backfill %s %s: store: %w", symbol, interval, err)
	}
	s.logger.Info(ctx, "Candles backfilled", map[string]interface{}{
		"symbol":   domain.NormalizeSymbol(symbol),
		"interval": interval,
		"count":    len(fetched),
		"from":     start.UTC().Format(time.RFC3339),
		"to":       end.UTC().Format(time.RFC3339),
	})
	return len(fetched), nil
}

// Refresh backfills the trailing window for every asset. One asset failing does not stop the others.
func (s *CandleService) Refresh(ctx context.Context) error {
	end := s.now().UTC()
	start := end.Add(-s.window)

	var errs []error
	for _, asset := range s.assets {
		if _, err := s.Backfill(ctx, asset, s.interval, start, end); err != nil {
			s.logger.Warn(ctx, "Candle refresh failed", map[string]interface{}{"asset": asset, "error": err.Error()})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Rollup summarises each asset's stored candles over [now-window, now] and replaces the summary table.
// Assets with no candles in the window are left out.
func (s *CandleService) Rollup(ctx context.Context, now time.Time) ([]domain.RollingSummary, error) {
	end := now.UTC()
	start := end.Add(-s.window)

	out := make([]domain.RollingSummary, 0, len(s.assets))
	for _, asset := range s.assets {
		stored, err := s.store.CandlesBetween(ctx, asset, s.interval, start, end)
		if err != nil {
			return nil, fmt.Errorf("rollup %s: %w", asset, err)
		}
		summary, ok := candles.Summarize(asset, stored, start, end, s.periods)
		if !ok {
			s.logger.Debug(ctx, "No candles in rollup window", map[string]interface{}{"asset": asset})
			continue
		}
		out = append(out, summary)
	}

	if err := s.store.ReplaceRollingSummaries(ctx, out); err != nil {
		return nil, fmt.Errorf("rollup: store: %w", err)
	}
	s.logger.Info(ctx, "Rolling summary updated", map[string]interface{}{"symbols": len(out), "window": s.window.String()})
	return out, nil
}
