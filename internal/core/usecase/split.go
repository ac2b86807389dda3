package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
	"github.com/kirillkom/receipt-splitter/internal/core/ports"
)

const defaultProgressInterval = 250 * time.Millisecond

type SplitOptions struct {
	ProgressInterval time.Duration
	Publisher        ports.ProgressPublisher
	Metrics          ports.SplitMetrics
	Reporter         ports.RunReporter
	Logger           *slog.Logger
}

// SplitUseCase drives segmentation, dedup, writing and archiving over input
// documents, strictly one document and one page at a time.
type SplitUseCase struct {
	source    ports.PageSource
	extractor ports.FieldExtractor
	ledger    ports.Ledger
	writer    ports.DocumentWriter
	archiver  ports.Archiver

	publisher        ports.ProgressPublisher
	metrics          ports.SplitMetrics
	reporter         ports.RunReporter
	logger           *slog.Logger
	progressInterval time.Duration
}

func NewSplitUseCase(
	source ports.PageSource,
	extractor ports.FieldExtractor,
	ledger ports.Ledger,
	writer ports.DocumentWriter,
	archiver ports.Archiver,
	opts SplitOptions,
) *SplitUseCase {
	uc := &SplitUseCase{
		source:           source,
		extractor:        extractor,
		ledger:           ledger,
		writer:           writer,
		archiver:         archiver,
		publisher:        opts.Publisher,
		metrics:          opts.Metrics,
		reporter:         opts.Reporter,
		logger:           opts.Logger,
		progressInterval: opts.ProgressInterval,
	}
	if uc.metrics == nil {
		uc.metrics = noopMetrics{}
	}
	if uc.logger == nil {
		uc.logger = slog.Default()
	}
	if uc.progressInterval <= 0 {
		uc.progressInterval = defaultProgressInterval
	}
	return uc
}

// runState accumulates counters across documents of one run.
type runState struct {
	summary  domain.RunSummary
	total    int
	index    int
	document string
	vendors  map[string]struct{}
	written  map[string]struct{}
	skipped  map[string]struct{}
}

func (s *runState) snapshot(done bool) domain.Progress {
	return domain.Progress{
		RunID:          s.summary.RunID,
		Document:       s.document,
		DocumentIndex:  s.index,
		DocumentsTotal: s.total,
		Pages:          s.summary.Pages,
		Written:        len(s.written),
		Skipped:        len(s.skipped),
		Failed:         s.summary.Failed,
		Done:           done,
	}
}

// Run processes paths in order. It stops at the first document that fails
// outside of the per-segment error policy; everything written or recorded
// before that point stays in place.
func (uc *SplitUseCase) Run(ctx context.Context, paths []string, progress chan<- domain.Progress) (domain.RunReport, error) {
	state := &runState{
		summary: domain.RunSummary{
			RunID:     uuid.NewString(),
			StartedAt: time.Now().UTC(),
		},
		total:   len(paths),
		vendors: map[string]struct{}{},
		written: map[string]struct{}{},
		skipped: map[string]struct{}{},
	}
	emitter := newProgressEmitter(progress, uc.publisher, uc.progressInterval, uc.logger)
	logger := uc.logger.With("run_id", state.summary.RunID)
	logger.Info("run_started", "documents", len(paths), "ledger_size", uc.ledger.Len())

	var report domain.RunReport
	var runErr error
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		state.index = i + 1
		state.document = path

		result, err := uc.processDocument(ctx, path, logger, func() {
			state.summary.Pages++
			emitter.tick(ctx, state.snapshot(false))
		})
		uc.accumulate(state, result)
		report.Documents = append(report.Documents, result)
		emitter.emit(ctx, state.snapshot(false))
		if err != nil {
			runErr = fmt.Errorf("process %s: %w", path, err)
			break
		}
	}

	state.summary.FinishedAt = time.Now().UTC()
	state.summary.Vendors = len(state.vendors)
	state.summary.Written = len(state.written)
	state.summary.Skipped = len(state.skipped)
	report.Summary = state.summary
	uc.metrics.ObserveLedgerSize(uc.ledger.Len())

	state.document = ""
	emitter.emit(context.WithoutCancel(ctx), state.snapshot(true))

	if uc.reporter != nil {
		if err := uc.reporter.WriteReport(context.WithoutCancel(ctx), report); err != nil {
			logger.Error("run_report_failed", "error", err)
		}
	}

	attrs := []any{
		"documents", state.summary.Documents,
		"pages", state.summary.Pages,
		"vendors", state.summary.Vendors,
		"written", state.summary.Written,
		"skipped", state.summary.Skipped,
		"failed", state.summary.Failed,
		"ledger_errors", state.summary.LedgerErrors,
		"duration_ms", state.summary.FinishedAt.Sub(state.summary.StartedAt).Milliseconds(),
	}
	if runErr != nil {
		logger.Error("run_aborted", append(attrs, "error", runErr)...)
		return report, runErr
	}
	logger.Info("run_finished", attrs...)
	return report, nil
}

func (uc *SplitUseCase) accumulate(state *runState, result domain.DocumentResult) {
	if result.ArchivedTo != "" {
		state.summary.Documents++
	}
	state.summary.LedgerErrors += result.LedgerErrors
	for _, v := range result.Vendors {
		state.vendors[v] = struct{}{}
	}
	for _, o := range result.Outcomes {
		switch o.Status {
		case domain.SegmentWritten:
			state.written[o.ReceiptID] = struct{}{}
		case domain.SegmentSkipped:
			state.skipped[o.ReceiptID] = struct{}{}
		case domain.SegmentFailed:
			state.summary.Failed++
		}
	}
}

// ProcessDocument splits and archives a single input document.
func (uc *SplitUseCase) ProcessDocument(ctx context.Context, path string) (domain.DocumentResult, error) {
	return uc.processDocument(ctx, path, uc.logger, nil)
}

func (uc *SplitUseCase) processDocument(
	ctx context.Context,
	path string,
	logger *slog.Logger,
	onPage func(),
) (result domain.DocumentResult, err error) {
	result.Path = path
	logger = logger.With("document", path)

	start := time.Now()
	uc.metrics.StartDocument()
	defer func() {
		uc.metrics.FinishDocument(time.Since(start), err)
	}()

	pages, err := uc.source.Pages(ctx, path)
	if err != nil {
		return result, domain.WrapError(domain.ErrDocumentUnreadable, "read pages", err)
	}
	logger.Info("document_started", "pages", len(pages))

	segmenter := NewSegmenter(uc.extractor)
	vendors := map[string]struct{}{}
	var newIDs []string

	handle := func(seg domain.Segment) {
		outcome := uc.handleSegment(ctx, path, seg, logger)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Status == domain.SegmentWritten {
			newIDs = append(newIDs, seg.ReceiptID)
		}
	}

	for _, page := range pages {
		if err = ctx.Err(); err != nil {
			break
		}
		if seg, ok := segmenter.Push(page); ok {
			handle(seg)
		}
		if v := segmenter.CurrentVendor(); v != "" {
			vendors[v] = struct{}{}
		}
		result.Pages++
		uc.metrics.ObservePages(1)
		if onPage != nil {
			onPage()
		}
	}
	if err == nil {
		if seg, ok := segmenter.Finish(); ok {
			handle(seg)
		}
	}
	result.Vendors = sortedKeys(vendors)

	// Segments already on disk are recorded even when the document was interrupted.
	uc.record(context.WithoutCancel(ctx), newIDs, &result, logger)
	if err != nil {
		logger.Warn("document_interrupted", "pages_done", result.Pages, "error", err)
		return result, err
	}

	archived, err := uc.archiver.Archive(ctx, path)
	if err != nil {
		return result, fmt.Errorf("archive document: %w", err)
	}
	result.ArchivedTo = archived
	logger.Info("document_archived", "archived_to", archived, "segments", len(result.Outcomes))
	return result, nil
}

func (uc *SplitUseCase) handleSegment(ctx context.Context, path string, seg domain.Segment, logger *slog.Logger) domain.SegmentOutcome {
	outcome := domain.SegmentOutcome{
		Document:    path,
		ReceiptID:   seg.ReceiptID,
		Vendor:      seg.Vendor,
		ReceiptDate: seg.ReceiptDate,
		Pages:       seg.PageNumbers(),
	}
	attrs := []any{"receipt_id", seg.ReceiptID, "vendor", seg.Vendor, "pages", len(seg.Pages)}

	if uc.ledger.Contains(seg.ReceiptID) {
		outcome.Status = domain.SegmentSkipped
		uc.metrics.ObserveSegment(outcome.Status)
		logger.Info("segment_skipped", attrs...)
		return outcome
	}

	outPath, err := uc.writer.Write(ctx, seg)
	if err != nil {
		outcome.Status = domain.SegmentFailed
		outcome.Error = domain.WrapError(domain.ErrWriteFailed, "write segment", err).Error()
		uc.metrics.ObserveSegment(outcome.Status)
		logger.Error("segment_failed", append(attrs, "error", err)...)
		return outcome
	}

	outcome.Status = domain.SegmentWritten
	outcome.OutputPath = outPath
	uc.metrics.ObserveSegment(outcome.Status)
	logger.Info("segment_written", append(attrs, "output_path", outPath)...)
	return outcome
}

func (uc *SplitUseCase) record(ctx context.Context, ids []string, result *domain.DocumentResult, logger *slog.Logger) {
	if len(ids) == 0 {
		return
	}
	added, err := uc.ledger.Record(ctx, ids)
	result.Recorded = added
	if err != nil {
		result.LedgerErrors++
		logger.Error("ledger_record_failed", "receipts", len(ids), "added", added, "error", err)
		return
	}
	logger.Info("ledger_recorded", "added", added, "ledger_size", uc.ledger.Len())
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type noopMetrics struct{}

func (noopMetrics) StartDocument()                      {}
func (noopMetrics) FinishDocument(time.Duration, error) {}
func (noopMetrics) ObservePages(int)                    {}
func (noopMetrics) ObserveSegment(domain.SegmentStatus) {}
func (noopMetrics) ObserveLedgerSize(int)               {}

var _ ports.RunService = (*SplitUseCase)(nil)
var _ ports.DocumentSplitter = (*SplitUseCase)(nil)

// IsInterrupted reports whether a run error came from cancellation.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
