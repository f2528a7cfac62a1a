package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cryptoLedger/internal/app"
	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ledger"
	"cryptoLedger/internal/utils"
)

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute the ledger from the trade log and the latest price snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			svc, err := app.NewLedgerService(e.log, e.store, e.cfg.LedgerPolicy)
			if err != nil {
				return err
			}
			res, err := svc.Rebuild(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rebuilt %d ledger rows, %d symbols, %d skipped\n", len(res.Rows), len(res.Summary), len(res.Skipped))
			for _, s := range res.Skipped {
				fmt.Fprintf(out, "  skipped trade #%d: %s\n", s.Trade.ID, s.Reason)
			}
			printStats(out, ledger.Analyze(res))
			return writeSummary(out, res.Summary)
		},
	}
}

func newShowCmd() *cobra.Command {
	var summaryOnly bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			summary, err := e.store.SummaryRows(ctx)
			if err != nil {
				return err
			}
			if summaryOnly {
				return writeSummary(cmd.OutOrStdout(), summary)
			}

			rows, err := e.store.LedgerRows(ctx)
			if err != nil {
				return err
			}
			if err := writeRows(cmd.OutOrStdout(), rows); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return writeSummary(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "print only the per-symbol summary")
	return cmd
}

func newExportCmd() *cobra.Command {
	var rowsPath, summaryPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored ledger to CSV files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rowsPath == "" && summaryPath == "" {
				return fmt.Errorf("nothing to export: set --rows and/or --summary")
			}
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			if rowsPath != "" {
				rows, err := e.store.LedgerRows(ctx)
				if err != nil {
					return err
				}
				if err := utils.WriteLedgerToCSV(rows, rowsPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", len(rows), rowsPath)
			}
			if summaryPath != "" {
				summary, err := e.store.SummaryRows(ctx)
				if err != nil {
					return err
				}
				if err := utils.WriteSummaryToCSV(summary, summaryPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d symbols to %s\n", len(summary), summaryPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rowsPath, "rows", "", "CSV file for ledger rows")
	cmd.Flags().StringVar(&summaryPath, "summary", "", "CSV file for the per-symbol summary")
	return cmd
}

func writeRows(out io.Writer, rows []domain.LedgerRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tSYMBOL\tSIDE\tQTY\tPRICE\tAMOUNT\tPOSITION\tAVG COST\tREALIZED\tFLOATING")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, formatTime(r.Time), r.Symbol, r.Side, r.Quantity, r.Price, r.TradeAmount,
			r.RunningPosition, r.AverageCost.StringFixed(8), r.RealizedPnL.StringFixed(8),
			utils.FormatNullable(r.FloatingPnL))
	}
	return w.Flush()
}

func writeSummary(out io.Writer, rows []domain.SummaryRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tTRADES\tPOSITION\tAVG COST\tLATEST\tREALIZED\tFLOATING")
	for _, s := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			s.Symbol, s.TradeCount, s.Position, s.AverageCost.StringFixed(8),
			utils.FormatNullable(s.LatestPrice), s.RealizedPnL.StringFixed(8), utils.FormatNullable(s.FloatingPnL))
	}
	return w.Flush()
}

func printStats(out io.Writer, st ledger.Stats) {
	fmt.Fprintf(out, "Closing trades: %d (win rate %.1f%%)\n", st.ClosingTrades, st.WinRate*100)
	fmt.Fprintf(out, "Realized P&L:   %s\n", st.TotalRealizedPnL.StringFixed(2))
	fmt.Fprintf(out, "Floating P&L:   %s", st.TotalFloatingPnL.StringFixed(2))
	if len(st.UnpricedSymbols) > 0 {
		fmt.Fprintf(out, " (unpriced: %v)", st.UnpricedSymbols)
	}
	fmt.Fprintln(out)
	for _, m := range st.Months() {
		fmt.Fprintf(out, "  %s  %s\n", m.Month.Format("2006-01"), m.Realized.StringFixed(2))
	}
	fmt.Fprintln(out)
}

func init() {
	rootCmd.AddCommand(newRebuildCmd(), newShowCmd(), newExportCmd())
}
