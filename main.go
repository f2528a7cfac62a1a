package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"cryptoLedger/config"
	"cryptoLedger/internal/adapters/logger"
	"cryptoLedger/internal/app"
	"cryptoLedger/internal/wiring"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Store (Database Adapter)
	store, err := wiring.OpenStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize store")
		log.Fatalf("FATAL: Failed to initialize store: %v", err) // Also log to stderr
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing store")
		}
	}()
	appLogger.Info(ctx, "Store initialized", map[string]interface{}{"driver": cfg.StoreDriver})

	// 4. Initialize Price Feed (Binance Adapter)
	feed, runners, err := wiring.NewPriceFeed(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize price feed")
		log.Fatalf("FATAL: Failed to initialize price feed: %v", err)
	}
	appLogger.Info(ctx, "Price feed initialized", map[string]interface{}{"source": cfg.PriceSource})

	// 5. Initialize Services
	snapshots, err := app.NewSnapshotService(appLogger, feed, store, cfg.Assets)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize snapshot service: %v", err)
	}
	candleSvc, err := app.NewCandleService(appLogger, feed, store, app.CandleConfig{
		Assets:   cfg.Assets,
		Interval: cfg.CandleInterval,
		Window:   cfg.RollingWindow,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize candle service: %v", err)
	}
	ledgerSvc, err := app.NewLedgerService(appLogger, store, cfg.LedgerPolicy)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize ledger service: %v", err)
	}

	// 6. Initialize Scheduler
	scheduler, err := app.NewScheduler(appLogger, snapshots, candleSvc, ledgerSvc, app.SchedulerConfig{
		SnapshotInterval: cfg.SnapshotInterval,
		CandleInterval:   cfg.CandleRefreshInterval,
		Background:       runners,
		HandleSignals:    true,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize scheduler")
		log.Fatalf("FATAL: Failed to initialize scheduler: %v", err)
	}

	// 7. Start the Scheduler
	if err := scheduler.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "Scheduler exited with error")
		log.Fatalf("FATAL: Scheduler exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
