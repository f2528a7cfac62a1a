// Package wiring builds the adapters selected by configuration. It is shared by the
// scheduler binary and the command line tools.
package wiring

import (
	"context"
	"fmt"

	"cryptoLedger/config"
	"cryptoLedger/internal/adapters/binanceclient"
	"cryptoLedger/internal/adapters/postgres"
	"cryptoLedger/internal/adapters/sqlite"
	"cryptoLedger/internal/adapters/wsfeed"
	"cryptoLedger/internal/app"
	"cryptoLedger/internal/ports"
)

// OpenStore opens the store named by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config, log ports.Logger) (ports.Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: log})
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DatabaseURL: cfg.DatabaseURL,
			Pool:        postgres.DefaultPoolConfig(),
			Logger:      log,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", ports.ErrConfigurationError, cfg.StoreDriver)
	}
}

// NewRESTClient builds the Binance REST client from cfg.
func NewRESTClient(cfg *config.Config, log ports.Logger) (*binanceclient.Client, error) {
	return binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     log,
		Pairs:      cfg.AssetPairs,
		QuoteAsset: cfg.QuoteAsset,
		MaxRetries: cfg.MaxRetries,
		BackoffMin: cfg.BackoffMin,
		BackoffMax: cfg.BackoffMax,
	})
}

// NewPriceFeed returns the feed named by cfg.PriceSource. The returned runners must be
// started for the feed to produce prices; the REST feed has none.
func NewPriceFeed(cfg *config.Config, log ports.Logger) (ports.PriceFeed, []app.Runner, error) {
	rest, err := NewRESTClient(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if cfg.PriceSource != "ws" {
		return rest, nil, nil
	}

	feed, err := wsfeed.New(wsfeed.Config{
		UseTestnet: cfg.IsTestnet,
		Logger:     log,
		Pairs:      cfg.AssetPairs,
		Candles:    rest,
		StaleAfter: cfg.WSStaleAfter,
	})
	if err != nil {
		return nil, nil, err
	}
	return feed, []app.Runner{feed}, nil
}
