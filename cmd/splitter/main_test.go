package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
)

func TestFormatProgress(t *testing.T) {
	got := formatProgress(domain.Progress{Document: "/in/batch.pdf", DocumentIndex: 1, DocumentsTotal: 3, Pages: 12, Written: 4, Skipped: 1})
	if got != "[1/3] batch.pdf: 12 pages, 4 written, 1 skipped, 0 failed" {
		t.Fatalf("unexpected progress line %q", got)
	}
	got = formatProgress(domain.Progress{Done: true, Pages: 20, Written: 6})
	if !strings.HasPrefix(got, "done: 20 pages, 6 written") {
		t.Fatalf("unexpected final line %q", got)
	}
}

func TestAbsolutePaths(t *testing.T) {
	got, err := absolutePaths([]string{"a.pdf", "/abs/b.pdf"})
	if err != nil {
		t.Fatalf("absolute paths: %v", err)
	}
	if !filepath.IsAbs(got[0]) || got[1] != "/abs/b.pdf" {
		t.Fatalf("unexpected paths %v", got)
	}
}

func TestLedgerCommands(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "processed.txt")
	if err := os.WriteFile(ledgerPath, []byte("RFAH79701\nRFAH79702\n"), 0o644); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	t.Setenv("SPLITTER_CONFIG", "")
	t.Setenv("LEDGER_BACKEND", "file")
	t.Setenv("LEDGER_PATH", ledgerPath)
	t.Setenv("NATS_URL", "")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"ledger", "stats"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("ledger stats: %v", err)
	}
	if !strings.Contains(out.String(), "backend=file receipts=2") {
		t.Fatalf("unexpected stats output %q", out.String())
	}

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"ledger", "has", "RFAH79701", "RFAH79709"})
	err := root.ExecuteContext(context.Background())
	if err == nil {
		t.Fatalf("expected error for missing receipt")
	}
	if !strings.Contains(out.String(), "RFAH79701\trecorded") || !strings.Contains(out.String(), "RFAH79709\tmissing") {
		t.Fatalf("unexpected has output %q", out.String())
	}
}

func TestEnqueueRequiresNATS(t *testing.T) {
	t.Setenv("SPLITTER_CONFIG", "")
	t.Setenv("NATS_URL", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"enqueue", "a.pdf"})
	err := root.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "NATS_URL") {
		t.Fatalf("expected NATS_URL error, got %v", err)
	}
}
