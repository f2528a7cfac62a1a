package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cryptoLedger/config"
	"cryptoLedger/internal/adapters/logger"
	"cryptoLedger/internal/ports"
	"cryptoLedger/internal/wiring"
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate the crypto price store and trade ledger",
	Long: `ledgerctl runs the scheduler's jobs by hand and inspects their output.

Configuration is read from the environment and .env, the same as the scheduler.

Examples:
  ledgerctl snapshot
  ledgerctl trade add --symbol BTC --side BUY --price 64000 --qty 0.1
  ledgerctl rebuild
  ledgerctl show --summary
  ledgerctl backfill --symbol ETH --from 2024-05-01T00:00:00Z --to 2024-05-02T00:00:00Z --csv data/eth.csv`,
	SilenceUsage: true,
}

var logLevel string

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (DEBUG, INFO, WARN, ERROR)")
}

// env bundles what every subcommand needs. Close must be called when done.
type env struct {
	cfg   *config.Config
	log   ports.Logger
	store ports.Store
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logger.ParseLevel(logLevel)
	}
	log := logger.NewStdLogger(cfg.LogLevel)

	store, err := wiring.OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &env{cfg: cfg, log: log, store: store}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Error(context.Background(), err, "Error closing store")
	}
}
