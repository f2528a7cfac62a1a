package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ledger"
	"cryptoLedger/internal/ports"
)

// LedgerService reads the trade log and latest prices, rebuilds the ledger and persists it.
type LedgerService struct {
	logger ports.Logger
	store  ports.LedgerLocker
	engine *ledger.Engine

	mu sync.Mutex // Keeps this process's rebuilds off the store lock queue
}

// NewLedgerService creates a LedgerService using the given accounting policy.
func NewLedgerService(logger ports.Logger, store ports.LedgerLocker, policy domain.AccountingPolicy) (*LedgerService, error) {
	if logger == nil || store == nil {
		return nil, fmt.Errorf("missing required dependencies for LedgerService")
	}
	engine, err := ledger.New(policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
	}
	return &LedgerService{logger: logger, store: store, engine: engine}, nil
}

// Rebuild recomputes the whole ledger and replaces the stored output.
//
// Reading trades, reading latest prices and writing the output run under the store's
// rebuild lock, so a rebuild in another process can never be overwritten by one that
// read older input. Collaborator failures are wrapped with ErrTradeLogUnavailable,
// ErrPriceStoreUnavailable, ErrLedgerWriteFailed or ErrLedgerLockFailed; nothing is
// written when a read fails.
func (s *LedgerService) Rebuild(ctx context.Context) (ledger.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ledger.Result
	err := s.store.WithLedgerLock(ctx, func(ctx context.Context, sess ports.LedgerSession) error {
		trades, err := sess.ListTrades(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ports.ErrTradeLogUnavailable, err)
		}
		latest, err := sess.LatestPrices(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ports.ErrPriceStoreUnavailable, err)
		}

		res = s.engine.Rebuild(trades, latest)
		if err := sess.ReplaceLedger(ctx, res.Rows, res.Summary); err != nil {
			return fmt.Errorf("%w: %w", ports.ErrLedgerWriteFailed, err)
		}
		return nil
	})
	if err != nil {
		if !isRebuildFailure(err) {
			err = fmt.Errorf("%w: %w", ports.ErrLedgerLockFailed, err)
		}
		s.logger.Error(ctx, err, "Ledger rebuild failed")
		return ledger.Result{}, fmt.Errorf("rebuild ledger: %w", err)
	}

	for _, sk := range res.Skipped {
		s.logger.Warn(ctx, "Skipping invalid trade", map[string]interface{}{
			"tradeID": sk.Trade.ID,
			"index":   sk.Index,
			"symbol":  sk.Trade.Symbol,
			"reason":  string(sk.Reason),
		})
	}

	stats := ledger.Analyze(res)
	s.logger.Info(ctx, "Ledger rebuilt", map[string]interface{}{
		"policy":        string(s.engine.Policy()),
		"rows":          len(res.Rows),
		"symbols":       len(res.Summary),
		"skipped":       stats.SkippedTrades,
		"realizedPnL":   stats.TotalRealizedPnL.String(),
		"floatingPnL":   stats.TotalFloatingPnL.String(),
		"unpricedCount": len(stats.UnpricedSymbols),
	})
	return res, nil
}

// isRebuildFailure reports whether err came from a step inside the critical section
// or was already classified as a lock failure by the store.
func isRebuildFailure(err error) bool {
	return errors.Is(err, ports.ErrTradeLogUnavailable) ||
		errors.Is(err, ports.ErrPriceStoreUnavailable) ||
		errors.Is(err, ports.ErrLedgerWriteFailed) ||
		errors.Is(err, ports.ErrLedgerLockFailed)
}
