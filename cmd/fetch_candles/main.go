package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"cryptoLedger/config"
	"cryptoLedger/internal/adapters/logger"
	"cryptoLedger/internal/app"
	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
	"cryptoLedger/internal/utils"
	"cryptoLedger/internal/wiring"
)

type options struct {
	symbol   string
	interval string
	days     int
	noStore  bool
	outDir   string
}

// candleStore is the slice of ports.Store this command writes to.
type candleStore interface {
	ports.CandleStore
	io.Closer
}

type storeOpener func(ctx context.Context) (candleStore, error)

func main() {
	var opts options
	flag.StringVar(&opts.symbol, "symbol", "BTC", "asset symbol")
	flag.StringVar(&opts.interval, "interval", "", "candle interval (defaults to CANDLE_INTERVAL)")
	flag.IntVar(&opts.days, "days", 7, "days of history to fetch")
	flag.BoolVar(&opts.noStore, "no-store", false, "only write the CSV, skip the store")
	flag.StringVar(&opts.outDir, "out", "data", "directory for the CSV file")
	flag.Parse()

	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	if opts.interval == "" {
		opts.interval = cfg.CandleInterval
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Exchange Client (Binance Adapter)
	client, err := wiring.NewRESTClient(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	fmt.Printf("Fetching candles for %s (%s) %s over the last %d days...\n",
		domain.NormalizeSymbol(opts.symbol), client.Pair(domain.NormalizeSymbol(opts.symbol)), opts.interval, opts.days)

	open := func(ctx context.Context) (candleStore, error) {
		return wiring.OpenStore(ctx, cfg, appLogger)
	}
	// run returns instead of exiting so the store is closed before log.Fatalf.
	if err := run(ctx, appLogger, client, open, cfg.RollingWindow, opts); err != nil {
		appLogger.Error(ctx, err, "Fetch candles failed")
		log.Fatalf("Error: %v", err)
	}
}

// run downloads the candles once, stores them unless opts.noStore is set and writes them as CSV.
func run(ctx context.Context, log ports.Logger, source ports.CandleSource, open storeOpener, window time.Duration, opts options) error {
	asset := domain.NormalizeSymbol(opts.symbol)
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -opts.days)

	candles, err := source.GetCandles(ctx, asset, opts.interval, start, end)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	log.Info(ctx, "Fetched candles", map[string]interface{}{"count": len(candles)})

	if !opts.noStore {
		if err := storeCandles(ctx, log, open, candles, asset, window, opts.interval, start, end); err != nil {
			return err
		}
	}

	filename := filepath.Join(opts.outDir, fmt.Sprintf("%s_%s_%s_to_%s.csv", asset, opts.interval, start.Format("20060102"), end.Format("20060102")))
	if err := utils.WriteCandlesToCSV(candles, filename); err != nil {
		return fmt.Errorf("write CSV: %w", err)
	}
	log.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
	return nil
}

func storeCandles(ctx context.Context, log ports.Logger, open storeOpener, candles []*domain.Candle, asset string, window time.Duration, interval string, start, end time.Time) error {
	store, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	svc, err := app.NewCandleService(log, staticCandles(candles), store, app.CandleConfig{
		Assets: []string{asset}, Interval: interval, Window: window,
	})
	if err != nil {
		return fmt.Errorf("init candle service: %w", err)
	}
	if _, err := svc.Backfill(ctx, asset, interval, start, end); err != nil {
		return fmt.Errorf("store candles: %w", err)
	}
	return nil
}

// staticCandles replays already fetched candles so the store is filled without a second download.
type staticCandles []*domain.Candle

func (s staticCandles) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error) {
	return s, nil
}
