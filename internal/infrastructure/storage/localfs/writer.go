package localfs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
	"github.com/kirillkom/receipt-splitter/internal/core/ports"
)

var unsafeChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_",
	"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeComponent makes a vendor name or receipt id usable as a single
// path component.
func SanitizeComponent(s string) string {
	return unsafeChars.Replace(s)
}

// Writer lays segments out as <root>/<vendor>[/<date>]/<receipt>.pdf.
type Writer struct {
	root     string
	dateDirs bool
	exporter ports.PageExporter
}

func NewWriter(root string, dateDirs bool, exporter ports.PageExporter) (*Writer, error) {
	if root == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new writer", fmt.Errorf("output root is empty"))
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{root: root, dateDirs: dateDirs, exporter: exporter}, nil
}

// Path returns the destination of a segment without touching the disk.
func (w *Writer) Path(seg domain.Segment) string {
	dir := filepath.Join(w.root, SanitizeComponent(seg.Vendor))
	if w.dateDirs && seg.ReceiptDate != "" {
		dir = filepath.Join(dir, SanitizeComponent(seg.ReceiptDate))
	}
	return filepath.Join(dir, SanitizeComponent(seg.ReceiptID)+".pdf")
}

// Write exports the segment's pages to its destination. Existing files are
// replaced; a failed write never leaves a partial file behind.
func (w *Writer) Write(ctx context.Context, seg domain.Segment) (string, error) {
	if seg.Vendor == "" || seg.ReceiptID == "" || len(seg.Pages) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "write segment", fmt.Errorf("incomplete segment %q/%q", seg.Vendor, seg.ReceiptID))
	}
	dest := w.Path(seg)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create segment dir: %w", err)
	}
	if err := w.writeAtomic(ctx, dest, seg); err != nil {
		return "", err
	}
	return dest, nil
}

func (w *Writer) writeAtomic(ctx context.Context, dest string, seg domain.Segment) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = w.exporter.ExportPages(ctx, seg.Source(), seg.PageNumbers(), bw); err != nil {
		return fmt.Errorf("export pages: %w", err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
