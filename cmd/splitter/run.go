package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/receipt-splitter/internal/bootstrap"
	"github.com/kirillkom/receipt-splitter/internal/core/domain"
	"github.com/kirillkom/receipt-splitter/internal/core/usecase"
)

type runFlags struct {
	input       string
	output      string
	report      string
	interactive bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [file.pdf...]",
		Short: "Split every PDF in the input folder (or the given files)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if flags.input != "" {
				cfg.InputDir = flags.input
			}
			if flags.output != "" {
				cfg.OutputDir = flags.output
			}
			if flags.report != "" {
				cfg.ReportPath = flags.report
			}

			app, err := openApp(cmd.Context(), cfg, bootstrap.Options{Interactive: flags.interactive})
			if err != nil {
				return err
			}
			defer app.Close()

			paths := args
			if len(paths) == 0 {
				if paths, err = app.Documents(); err != nil {
					return err
				}
			}
			if len(paths) == 0 {
				app.Logger.Info("no_input_documents", "input_dir", cfg.InputDir)
				return nil
			}

			var report domain.RunReport
			if flags.interactive {
				report, err = runInteractive(cmd.Context(), app.Splitter, paths, cmd.OutOrStdout())
			} else {
				report, err = app.Splitter.Run(cmd.Context(), paths, nil)
			}
			printSummary(cmd.OutOrStdout(), report.Summary)
			if err != nil && usecase.IsInterrupted(err) {
				app.Logger.Warn("run_interrupted", "error", err)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&flags.input, "input", "", "input folder (overrides INPUT_DIR)")
	cmd.Flags().StringVar(&flags.output, "output", "", "receipt library root (overrides OUTPUT_DIR)")
	cmd.Flags().StringVar(&flags.report, "report", "", "write an XLSX run report to this path")
	cmd.Flags().BoolVar(&flags.interactive, "interactive", false, "flat vendor layout with live progress")
	return cmd
}

type runResult struct {
	report domain.RunReport
	err    error
}

// runInteractive runs the pipeline on a background goroutine and prints
// progress snapshots until it finishes.
func runInteractive(ctx context.Context, svc *usecase.SplitUseCase, paths []string, out io.Writer) (domain.RunReport, error) {
	progress := make(chan domain.Progress, 16)
	done := make(chan runResult, 1)
	go func() {
		report, err := svc.Run(ctx, paths, progress)
		close(progress)
		done <- runResult{report: report, err: err}
	}()

	for p := range progress {
		fmt.Fprintln(out, formatProgress(p))
	}
	res := <-done
	return res.report, res.err
}

func formatProgress(p domain.Progress) string {
	if p.Done {
		return fmt.Sprintf("done: %d pages, %d written, %d skipped, %d failed", p.Pages, p.Written, p.Skipped, p.Failed)
	}
	return fmt.Sprintf("[%d/%d] %s: %d pages, %d written, %d skipped, %d failed",
		p.DocumentIndex, p.DocumentsTotal, filepath.Base(p.Document), p.Pages, p.Written, p.Skipped, p.Failed)
}

func printSummary(out io.Writer, s domain.RunSummary) {
	fmt.Fprintf(out, "documents=%d pages=%d vendors=%d written=%d skipped=%d failed=%d ledger_errors=%d\n",
		s.Documents, s.Pages, s.Vendors, s.Written, s.Skipped, s.Failed, s.LedgerErrors)
}
