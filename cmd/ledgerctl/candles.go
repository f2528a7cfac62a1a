package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cryptoLedger/internal/app"
	"cryptoLedger/internal/candles"
	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/utils"
	"cryptoLedger/internal/wiring"
)

func newBackfillCmd() *cobra.Command {
	var (
		symbol   string
		interval string
		fromStr  string
		toStr    string
		csvPath  string
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Fetch a range of candles in batches and upsert them into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			from, err := parseTime(fromStr)
			if err != nil {
				return fmt.Errorf("bad --from: %w", err)
			}
			to := time.Now().UTC()
			if toStr != "" {
				if to, err = parseTime(toStr); err != nil {
					return fmt.Errorf("bad --to: %w", err)
				}
			}

			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			if interval == "" {
				interval = e.cfg.CandleInterval
			}

			client, err := wiring.NewRESTClient(e.cfg, e.log)
			if err != nil {
				return fmt.Errorf("price feed: %w", err)
			}
			svc, err := app.NewCandleService(e.log, client, e.store, app.CandleConfig{
				Assets: e.cfg.Assets, Interval: interval, Window: e.cfg.RollingWindow,
			})
			if err != nil {
				return err
			}

			n, err := svc.Backfill(ctx, symbol, interval, from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d %s candles for %s\n", n, interval, domain.NormalizeSymbol(symbol))

			if csvPath != "" {
				stored, err := e.store.CandlesBetween(ctx, domain.NormalizeSymbol(symbol), interval, from, to)
				if err != nil {
					return err
				}
				if err := utils.WriteCandlesToCSV(stored, csvPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", csvPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "asset symbol, e.g. BTC (required)")
	cmd.Flags().StringVarP(&interval, "interval", "i", "", "candle interval (defaults to CANDLE_INTERVAL)")
	cmd.Flags().StringVar(&fromStr, "from", "", "start time, RFC3339 or YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&toStr, "to", "", "end time, RFC3339 or YYYY-MM-DD (default now)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "also write the stored range to this CSV file")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newRollupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollup",
		Short: "Recompute the rolling candle summary for every asset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			client, err := wiring.NewRESTClient(e.cfg, e.log)
			if err != nil {
				return fmt.Errorf("price feed: %w", err)
			}
			svc, err := app.NewCandleService(e.log, client, e.store, app.CandleConfig{
				Assets:   e.cfg.Assets,
				Interval: e.cfg.CandleInterval,
				Window:   e.cfg.RollingWindow,
				Periods:  candles.DefaultPeriods(),
			})
			if err != nil {
				return err
			}

			summaries, err := svc.Rollup(ctx, time.Now())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tOPEN\tHIGH\tLOW\tCLOSE\tCHANGE%\tSMA\tEMA\tATR\tCANDLES")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
					s.Symbol, s.Open, s.High, s.Low, s.Close, s.ChangePct,
					utils.FormatNullable(s.SMA), utils.FormatNullable(s.EMA), utils.FormatNullable(s.ATR),
					s.CandleCount)
			}
			return w.Flush()
		},
	}
}

// parseTime accepts RFC3339 or a bare date in UTC.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

func init() {
	rootCmd.AddCommand(newBackfillCmd(), newRollupCmd())
}
