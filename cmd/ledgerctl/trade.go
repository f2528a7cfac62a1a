package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cryptoLedger/internal/app"
	"cryptoLedger/internal/domain"
)

func newTradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Record and list trades in the trade log",
	}
	cmd.AddCommand(newTradeAddCmd(), newTradeListCmd())
	return cmd
}

func newTradeAddCmd() *cobra.Command {
	var (
		raw     domain.RawTrade
		timeStr string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a trade to the trade log",
		Long: `Append a trade to the trade log.

Values are stored as entered. Malformed trades are kept in the log and skipped
by the next ledger rebuild.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeStr != "" {
				t, err := parseTime(timeStr)
				if err != nil {
					return fmt.Errorf("bad --time: %w", err)
				}
				raw.Time = t
			}

			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			svc, err := app.NewTradeEntryService(e.log, e.store)
			if err != nil {
				return err
			}
			t, err := svc.AddTrade(ctx, raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded trade #%d (%s): %s %s %s @ %s\n",
				t.ID, t.Ref, t.Side, t.Quantity, t.Symbol, t.Price)
			return nil
		},
	}

	cmd.Flags().StringVarP(&raw.Symbol, "symbol", "s", "", "asset symbol, e.g. BTC (required)")
	cmd.Flags().StringVar(&raw.Side, "side", "", "BUY or SELL (required)")
	cmd.Flags().StringVarP(&raw.Price, "price", "p", "", "unit price (required)")
	cmd.Flags().StringVarP(&raw.Quantity, "qty", "q", "", "quantity (required)")
	cmd.Flags().StringVarP(&raw.Note, "note", "n", "", "free text note")
	cmd.Flags().StringVar(&raw.Ref, "ref", "", "external reference (generated when empty)")
	cmd.Flags().StringVar(&timeStr, "time", "", "trade time, RFC3339 or YYYY-MM-DD (default now)")
	for _, f := range []string{"symbol", "side", "price", "qty"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newTradeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the trade log in entry order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			svc, err := app.NewTradeEntryService(e.log, e.store)
			if err != nil {
				return err
			}
			trades, err := svc.ListTrades(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tTIME\tSYMBOL\tSIDE\tQTY\tPRICE\tREF\tNOTE")
			for _, t := range trades {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, formatTime(t.Time), t.Symbol, t.Side, t.Quantity, t.Price, t.Ref, t.Note)
			}
			return w.Flush()
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func init() {
	rootCmd.AddCommand(newTradeCmd())
}
