package app

import (
	"context"
	"fmt"
	"time"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"

	"github.com/shopspring/decimal"
)

// SnapshotService records the spot price of every tracked asset into the price store.
type SnapshotService struct {
	logger ports.Logger
	feed   ports.SpotSource
	store  ports.PriceStore
	assets []string
	now    func() time.Time
}

// NewSnapshotService creates a SnapshotService for the given assets.
func NewSnapshotService(logger ports.Logger, feed ports.SpotSource, store ports.PriceStore, assets []string) (*SnapshotService, error) {
	if logger == nil || feed == nil || store == nil {
		return nil, fmt.Errorf("missing required dependencies for SnapshotService")
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets to snapshot", ports.ErrConfigurationError)
	}
	return &SnapshotService{logger: logger, feed: feed, store: store, assets: assets, now: time.Now}, nil
}

// SnapshotOnce fetches every asset's spot price and stores them as one snapshot.
// Assets whose price cannot be fetched are left out; the call fails only when none succeed.
func (s *SnapshotService) SnapshotOnce(ctx context.Context) (domain.PriceSnapshot, error) {
	snap := domain.PriceSnapshot{
		TakenAt: s.now().UTC(),
		Prices:  make(map[string]decimal.Decimal, len(s.assets)),
	}

	for _, asset := range s.assets {
		price, err := s.feed.GetSpotPrice(ctx, asset)
		if err != nil {
			if ctx.Err() != nil {
				return domain.PriceSnapshot{}, fmt.Errorf("snapshot: %w: %w", ports.ErrContextCanceled, ctx.Err())
			}
			s.logger.Warn(ctx, "Spot price unavailable, leaving asset out of snapshot", map[string]interface{}{
				"asset": asset,
				"error": err.Error(),
			})
			continue
		}
		snap.Prices[domain.NormalizeSymbol(asset)] = price
	}

	if len(snap.Prices) == 0 {
		return domain.PriceSnapshot{}, fmt.Errorf("snapshot: %w: no asset returned a price", ports.ErrPriceUnavailable)
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("snapshot: save: %w", err)
	}

	s.logger.Info(ctx, "Price snapshot saved", map[string]interface{}{
		"symbols": len(snap.Prices),
		"missing": len(s.assets) - len(snap.Prices),
	})
	return snap, nil
}

// Run takes a snapshot immediately and then every interval until ctx is done.
// Failed snapshots are logged and the loop continues.
func (s *SnapshotService) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.SnapshotOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(ctx, err, "Snapshot failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
