package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cryptoLedger/internal/app"
	"cryptoLedger/internal/wiring"
)

func newSnapshotCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch spot prices for every configured asset and store them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			// The stream needs time to fill, so one-off snapshots always use REST.
			feed, err := wiring.NewRESTClient(e.cfg, e.log)
			if err != nil {
				return fmt.Errorf("price feed: %w", err)
			}
			svc, err := app.NewSnapshotService(e.log, feed, e.store, e.cfg.Assets)
			if err != nil {
				return err
			}

			if watch {
				if err := svc.Run(ctx, e.cfg.SnapshotInterval); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			}

			snap, err := svc.SnapshotOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot at %s\n", snap.TakenAt.Format("2006-01-02 15:04:05"))
			for _, sym := range snap.Symbols() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-6s %s\n", sym, snap.Prices[sym].String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep taking snapshots every SNAPSHOT_INTERVAL")
	return cmd
}

func init() {
	rootCmd.AddCommand(newSnapshotCmd())
}

