package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/receipt-splitter/internal/bootstrap"
	"github.com/kirillkom/receipt-splitter/internal/config"
	"github.com/kirillkom/receipt-splitter/internal/core/usecase"
)

const exitInterrupted = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	switch {
	case err == nil:
	case usecase.IsInterrupted(err):
		os.Exit(exitInterrupted)
	default:
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "splitter",
		Short:         "Split scanned receipt batches into one PDF per receipt",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (default $SPLITTER_CONFIG)")

	root.AddCommand(
		newRunCmd(flags),
		newEnqueueCmd(flags),
		newLedgerCmd(flags),
	)
	return root
}

func (f *rootFlags) load() (config.Config, error) {
	return config.Load(f.configPath)
}

func openApp(ctx context.Context, cfg config.Config, opts bootstrap.Options) (*bootstrap.App, error) {
	if opts.Service == "" {
		opts.Service = "splitter"
	}
	return bootstrap.New(ctx, cfg, opts)
}
