package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cryptoLedger/internal/ports"
)

// Runner is a long-lived background component, such as a streaming price feed.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler drives the periodic jobs: snapshot then ledger rebuild, and candle refresh then rollup.
type Scheduler struct {
	logger        ports.Logger
	snapshots     *SnapshotService
	candles       *CandleService
	ledger        *LedgerService
	snapshotEvery time.Duration
	candleEvery   time.Duration
	background    []Runner
	handleSignals bool
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	SnapshotInterval time.Duration
	CandleInterval   time.Duration
	Background       []Runner // Started before the first job, stopped on shutdown
	HandleSignals    bool     // Stop on SIGINT/SIGTERM
}

// NewScheduler creates a Scheduler. candles may be nil to disable candle jobs.
func NewScheduler(logger ports.Logger, snapshots *SnapshotService, candles *CandleService, ledger *LedgerService, cfg SchedulerConfig) (*Scheduler, error) {
	if logger == nil || snapshots == nil || ledger == nil {
		return nil, fmt.Errorf("missing required dependencies for Scheduler")
	}
	if cfg.SnapshotInterval <= 0 {
		return nil, fmt.Errorf("%w: snapshot interval must be positive", ports.ErrConfigurationError)
	}
	if candles != nil && cfg.CandleInterval <= 0 {
		return nil, fmt.Errorf("%w: candle interval must be positive", ports.ErrConfigurationError)
	}
	return &Scheduler{
		logger:        logger,
		snapshots:     snapshots,
		candles:       candles,
		ledger:        ledger,
		snapshotEvery: cfg.SnapshotInterval,
		candleEvery:   cfg.CandleInterval,
		background:    cfg.Background,
		handleSignals: cfg.HandleSignals,
	}, nil
}

// Run executes every job once, then on its interval, until ctx is cancelled or a shutdown signal arrives.
// Job failures are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting scheduler...", map[string]interface{}{
		"snapshotInterval": s.snapshotEvery.String(),
		"candleInterval":   s.candleEvery.String(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.handleSignals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	var wg sync.WaitGroup
	for _, r := range s.background {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, err, "Background component stopped")
			}
		}(r)
	}

	s.snapshotAndRebuild(ctx)
	s.refreshCandles(ctx)

	snapTicker := time.NewTicker(s.snapshotEvery)
	defer snapTicker.Stop()

	var candleC <-chan time.Time
	if s.candles != nil {
		candleTicker := time.NewTicker(s.candleEvery)
		defer candleTicker.Stop()
		candleC = candleTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Scheduler stopping, waiting for background components...")
			wg.Wait()
			s.logger.Info(ctx, "Scheduler stopped.")
			return nil
		case <-snapTicker.C:
			s.snapshotAndRebuild(ctx)
		case <-candleC:
			s.refreshCandles(ctx)
		}
	}
}

func (s *Scheduler) snapshotAndRebuild(ctx context.Context) {
	if _, err := s.snapshots.SnapshotOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		// The ledger is still rebuilt against the previous snapshot.
		s.logger.Error(ctx, err, "Snapshot job failed")
	}
	if _, err := s.ledger.Rebuild(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error(ctx, err, "Ledger rebuild failed")
	}
}

func (s *Scheduler) refreshCandles(ctx context.Context) {
	if s.candles == nil {
		return
	}
	if err := s.candles.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn(ctx, "Candle refresh incomplete", map[string]interface{}{"error": err.Error()})
	}
	if ctx.Err() != nil {
		return
	}
	if _, err := s.candles.Rollup(ctx, s.candles.now()); err != nil {
		s.logger.Error(ctx, err, "Candle rollup failed")
	}
}
