package xlsx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
)

const (
	summarySheet  = "Summary"
	segmentsSheet = "Segments"
)

// Reporter writes one workbook per run: run totals on the Summary sheet and
// one row per segment outcome on the Segments sheet.
type Reporter struct {
	path   string
	logger *slog.Logger
}

func NewReporter(path string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{path: path, logger: logger}
}

func (r *Reporter) WriteReport(ctx context.Context, report domain.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(segmentsSheet); err != nil {
		return fmt.Errorf("create segments sheet: %w", err)
	}

	if err := writeSummary(f, report.Summary); err != nil {
		return fmt.Errorf("write summary sheet: %w", err)
	}
	rows, err := writeSegments(f, report.Outcomes())
	if err != nil {
		return fmt.Errorf("write segments sheet: %w", err)
	}

	idx, err := f.GetSheetIndex(summarySheet)
	if err != nil {
		return fmt.Errorf("activate summary sheet: %w", err)
	}
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	if err := writeFileAtomic(r.path, buf.Bytes()); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	r.logger.Info("report_written",
		"path", r.path,
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

type colWidth struct {
	from, to string
	width    float64
}

func writeSummary(f *excelize.File, s domain.RunSummary) error {
	rows := [][]any{
		{"Run ID", s.RunID},
		{"Started", s.StartedAt.Format(time.RFC3339)},
		{"Finished", s.FinishedAt.Format(time.RFC3339)},
		{"Documents", s.Documents},
		{"Pages", s.Pages},
		{"Vendors", s.Vendors},
		{"Written", s.Written},
		{"Skipped", s.Skipped},
		{"Failed", s.Failed},
		{"Ledger errors", s.LedgerErrors},
	}
	for i, values := range rows {
		if err := setRow(f, summarySheet, i+1, values); err != nil {
			return err
		}
	}
	return setWidths(f, summarySheet, []colWidth{{"A", "A", 16}, {"B", "B", 40}})
}

func writeSegments(f *excelize.File, outcomes []domain.SegmentOutcome) (int, error) {
	headers := []any{"Document", "Vendor", "Receipt", "Date", "Pages", "Status", "Output", "Error"}
	if err := setRow(f, segmentsSheet, 1, headers); err != nil {
		return 0, err
	}

	for i, o := range outcomes {
		values := []any{
			filepath.Base(o.Document),
			o.Vendor,
			o.ReceiptID,
			o.ReceiptDate,
			pageList(o.Pages),
			string(o.Status),
			o.OutputPath,
			o.Error,
		}
		if err := setRow(f, segmentsSheet, i+2, values); err != nil {
			return 0, err
		}
	}

	err := setWidths(f, segmentsSheet, []colWidth{
		{"A", "A", 28},
		{"B", "B", 32},
		{"C", "D", 16},
		{"E", "F", 12},
		{"G", "H", 60},
	})
	if err != nil {
		return 0, err
	}
	return len(outcomes), nil
}

// setRow writes values left to right starting at column A.
func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func setWidths(f *excelize.File, sheet string, widths []colWidth) error {
	for _, w := range widths {
		if err := f.SetColWidth(sheet, w.from, w.to, w.width); err != nil {
			return fmt.Errorf("set %s width %s:%s: %w", sheet, w.from, w.to, err)
		}
	}
	return nil
}

func pageList(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
