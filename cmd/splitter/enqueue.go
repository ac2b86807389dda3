package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/receipt-splitter/internal/bootstrap"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/storage/localfs"
)

func newEnqueueCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue [file.pdf...]",
		Short: "Queue input PDFs for the worker (default: every PDF in the input folder)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cfg.NATSURL == "" {
				return errors.New("enqueue needs NATS_URL")
			}

			app, err := openApp(cmd.Context(), cfg, bootstrap.Options{SkipLedger: true})
			if err != nil {
				return err
			}
			defer app.Close()

			paths := args
			if len(paths) == 0 {
				if paths, err = localfs.ListDocuments(cfg.InputDir); err != nil {
					return err
				}
			}
			paths, err = absolutePaths(paths)
			if err != nil {
				return err
			}

			for _, p := range paths {
				if err := app.Queue.EnqueueDocument(cmd.Context(), p); err != nil {
					return fmt.Errorf("enqueue %s: %w", p, err)
				}
				app.Logger.Info("document_enqueued", "document", p, "subject", cfg.NATSSubject)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d document(s)\n", len(paths))
			return nil
		},
	}
}

// Workers may run in another directory, so jobs carry absolute paths.
func absolutePaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}
