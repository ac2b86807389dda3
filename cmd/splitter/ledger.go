package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/receipt-splitter/internal/bootstrap"
)

func newLedgerCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the processed-receipt ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print the number of recorded receipts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			cfg.NATSURL, cfg.LogDir = "", ""
			app, err := openApp(cmd.Context(), cfg, bootstrap.Options{LedgerOnly: true})
			if err != nil {
				return err
			}
			defer app.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "backend=%s receipts=%d\n", cfg.LedgerBackend, app.Ledger.Len())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "has RECEIPT_ID...",
		Short: "Report whether receipts were already split",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			cfg.NATSURL, cfg.LogDir = "", ""
			app, err := openApp(cmd.Context(), cfg, bootstrap.Options{LedgerOnly: true})
			if err != nil {
				return err
			}
			defer app.Close()

			missing := 0
			for _, id := range args {
				state := "recorded"
				if !app.Ledger.Contains(id) {
					state = "missing"
					missing++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, state)
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d receipt(s) not in ledger", missing, len(args))
			}
			return nil
		},
	})
	return cmd
}
