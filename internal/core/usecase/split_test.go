package usecase

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
)

type sourceFake struct {
	docs map[string][]domain.Page
	errs map[string]error
}

func (f *sourceFake) Pages(_ context.Context, path string) ([]domain.Page, error) {
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	return f.docs[path], nil
}

type ledgerFake struct {
	ids       map[string]struct{}
	recordErr error
	calls     [][]string
}

func newLedgerFake(ids ...string) *ledgerFake {
	f := &ledgerFake{ids: map[string]struct{}{}}
	for _, id := range ids {
		f.ids[id] = struct{}{}
	}
	return f
}

func (f *ledgerFake) Contains(id string) bool {
	_, ok := f.ids[id]
	return ok
}

func (f *ledgerFake) Record(_ context.Context, ids []string) (int, error) {
	f.calls = append(f.calls, append([]string(nil), ids...))
	if f.recordErr != nil {
		return 0, f.recordErr
	}
	added := 0
	for _, id := range ids {
		if _, ok := f.ids[id]; !ok {
			f.ids[id] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (f *ledgerFake) Len() int { return len(f.ids) }

type writerFake struct {
	written []domain.Segment
	failOn  map[string]error
	after   func(domain.Segment)
}

func (f *writerFake) Write(_ context.Context, seg domain.Segment) (string, error) {
	if err := f.failOn[seg.ReceiptID]; err != nil {
		return "", err
	}
	f.written = append(f.written, seg)
	if f.after != nil {
		f.after(seg)
	}
	return "out/" + seg.Vendor + "/" + seg.ReceiptID + ".pdf", nil
}

func (f *writerFake) receipts() []string {
	var out []string
	for _, s := range f.written {
		out = append(out, s.ReceiptID)
	}
	return out
}

type archiverFake struct {
	archived []string
	err      error
}

func (f *archiverFake) Archive(_ context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.archived = append(f.archived, path)
	return "archive/" + path, nil
}

type reporterFake struct {
	reports []domain.RunReport
}

func (f *reporterFake) WriteReport(_ context.Context, report domain.RunReport) error {
	f.reports = append(f.reports, report)
	return nil
}

type metricsFake struct {
	pages    int
	segments map[domain.SegmentStatus]int
	finished int
}

func (f *metricsFake) StartDocument() {}
func (f *metricsFake) FinishDocument(_ time.Duration, _ error) {
	f.finished++
}
func (f *metricsFake) ObservePages(n int) { f.pages += n }
func (f *metricsFake) ObserveSegment(status domain.SegmentStatus) {
	if f.segments == nil {
		f.segments = map[domain.SegmentStatus]int{}
	}
	f.segments[status]++
}
func (f *metricsFake) ObserveLedgerSize(int) {}

// receiptText renders a page the way the fake extractor below understands.
func receiptText(vendor, receipt string) string {
	return vendor + "|" + receipt
}

type pipeExtractor struct{}

func (pipeExtractor) Extract(text string) domain.ExtractedFields {
	parts := strings.SplitN(text, "|", 2)
	if len(parts) != 2 {
		return domain.ExtractedFields{}
	}
	return domain.ExtractedFields{Vendor: parts[0], ReceiptID: parts[1]}
}

func doc(path string, texts ...string) []domain.Page {
	pages := make([]domain.Page, 0, len(texts))
	for i, text := range texts {
		pages = append(pages, domain.Page{Source: path, Number: i + 1, Text: text})
	}
	return pages
}

func scenarioSource() *sourceFake {
	return &sourceFake{docs: map[string][]domain.Page{
		"a.pdf": doc("a.pdf", receiptText("Acme", "R100"), "", receiptText("Acme", "R200")),
	}}
}

type splitFixture struct {
	source   *sourceFake
	ledger   *ledgerFake
	writer   *writerFake
	archiver *archiverFake
	reporter *reporterFake
	metrics  *metricsFake
	uc       *SplitUseCase
}

func newSplitFixture(source *sourceFake, ledger *ledgerFake) *splitFixture {
	f := &splitFixture{
		source:   source,
		ledger:   ledger,
		writer:   &writerFake{},
		archiver: &archiverFake{},
		reporter: &reporterFake{},
		metrics:  &metricsFake{},
	}
	f.uc = NewSplitUseCase(f.source, pipeExtractor{}, f.ledger, f.writer, f.archiver, SplitOptions{
		Reporter: f.reporter,
		Metrics:  f.metrics,
	})
	return f
}

func TestRunWritesSegmentsAndRecordsLedger(t *testing.T) {
	f := newSplitFixture(scenarioSource(), newLedgerFake())

	report, err := f.uc.Run(context.Background(), []string{"a.pdf"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.writer.receipts(); !reflect.DeepEqual(got, []string{"R100", "R200"}) {
		t.Fatalf("expected R100 and R200 written, got %v", got)
	}
	if !reflect.DeepEqual(f.writer.written[0].PageNumbers(), []int{1, 2}) {
		t.Fatalf("expected R100 pages [1 2], got %v", f.writer.written[0].PageNumbers())
	}
	if f.ledger.Len() != 2 {
		t.Fatalf("expected ledger size 2, got %d", f.ledger.Len())
	}
	if len(f.ledger.calls) != 1 {
		t.Fatalf("expected one ledger record call per document, got %d", len(f.ledger.calls))
	}
	if !reflect.DeepEqual(f.archiver.archived, []string{"a.pdf"}) {
		t.Fatalf("expected a.pdf archived, got %v", f.archiver.archived)
	}

	s := report.Summary
	if s.Documents != 1 || s.Pages != 3 || s.Vendors != 1 || s.Written != 2 || s.Skipped != 0 || s.Failed != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.RunID == "" {
		t.Fatalf("expected run id")
	}
	if len(f.reporter.reports) != 1 {
		t.Fatalf("expected report written once, got %d", len(f.reporter.reports))
	}
	if f.metrics.pages != 3 || f.metrics.segments[domain.SegmentWritten] != 2 || f.metrics.finished != 1 {
		t.Fatalf("unexpected metrics %+v", f.metrics)
	}
}

func TestRunSkipsReceiptAlreadyInLedger(t *testing.T) {
	f := newSplitFixture(scenarioSource(), newLedgerFake("R100"))

	report, err := f.uc.Run(context.Background(), []string{"a.pdf"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.writer.receipts(); !reflect.DeepEqual(got, []string{"R200"}) {
		t.Fatalf("expected only R200 written, got %v", got)
	}
	if f.ledger.Len() != 2 {
		t.Fatalf("expected ledger to grow by one, got %d", f.ledger.Len())
	}
	outcomes := report.Outcomes()
	if len(outcomes) != 2 || outcomes[0].Status != domain.SegmentSkipped || outcomes[1].Status != domain.SegmentWritten {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if report.Summary.Skipped != 1 || report.Summary.Written != 1 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	f := newSplitFixture(scenarioSource(), newLedgerFake())

	if _, err := f.uc.Run(context.Background(), []string{"a.pdf"}, nil); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	sizeAfterFirst := f.ledger.Len()
	writesAfterFirst := len(f.writer.written)

	report, err := f.uc.Run(context.Background(), []string{"a.pdf"}, nil)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(f.writer.written) != writesAfterFirst {
		t.Fatalf("expected no new writes, got %d", len(f.writer.written)-writesAfterFirst)
	}
	if f.ledger.Len() != sizeAfterFirst {
		t.Fatalf("expected ledger size %d, got %d", sizeAfterFirst, f.ledger.Len())
	}
	if report.Summary.Written != 0 || report.Summary.Skipped != 2 {
		t.Fatalf("unexpected second summary %+v", report.Summary)
	}
}

func TestRunWriterFailureIsNotRecorded(t *testing.T) {
	f := newSplitFixture(scenarioSource(), newLedgerFake())
	f.writer.failOn = map[string]error{"R100": errors.New("disk full")}

	report, err := f.uc.Run(context.Background(), []string{"a.pdf"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.ledger.Contains("R100") {
		t.Fatalf("failed receipt must not be recorded")
	}
	if !f.ledger.Contains("R200") {
		t.Fatalf("expected R200 recorded")
	}
	outcomes := report.Outcomes()
	if outcomes[0].Status != domain.SegmentFailed || !strings.Contains(outcomes[0].Error, "disk full") {
		t.Fatalf("expected failed outcome with cause, got %+v", outcomes[0])
	}
	if report.Summary.Failed != 1 || report.Summary.Written != 1 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
	if len(f.archiver.archived) != 1 {
		t.Fatalf("expected document archived despite segment failure")
	}
}

func TestRunLedgerFailureIsNonFatal(t *testing.T) {
	ledger := newLedgerFake()
	ledger.recordErr = errors.New("read-only file system")
	f := newSplitFixture(scenarioSource(), ledger)

	report, err := f.uc.Run(context.Background(), []string{"a.pdf"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Summary.LedgerErrors != 1 {
		t.Fatalf("expected one ledger error, got %d", report.Summary.LedgerErrors)
	}
	if report.Summary.Written != 2 {
		t.Fatalf("expected outputs to stay written, got %d", report.Summary.Written)
	}
}

func TestRunAbortsOnUnreadableDocument(t *testing.T) {
	source := scenarioSource()
	source.docs["b.pdf"] = doc("b.pdf", receiptText("Globex", "R300"))
	source.errs = map[string]error{"a.pdf": errors.New("xref table broken")}
	f := newSplitFixture(source, newLedgerFake())

	report, err := f.uc.Run(context.Background(), []string{"a.pdf", "b.pdf"}, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentUnreadable) {
		t.Fatalf("expected ErrDocumentUnreadable, got %v", err)
	}
	if len(f.writer.written) != 0 || len(f.archiver.archived) != 0 {
		t.Fatalf("expected run to stop before b.pdf")
	}
	if len(f.reporter.reports) != 1 || report.Summary.Documents != 0 {
		t.Fatalf("expected partial report, got %+v", report.Summary)
	}
}

func TestRunAbortsOnArchiveFailureKeepingOutputs(t *testing.T) {
	f := newSplitFixture(scenarioSource(), newLedgerFake())
	f.archiver.err = errors.New("permission denied")

	_, err := f.uc.Run(context.Background(), []string{"a.pdf"}, nil)
	if err == nil || !strings.Contains(err.Error(), "archive document") {
		t.Fatalf("expected archive error, got %v", err)
	}
	if f.ledger.Len() != 2 {
		t.Fatalf("expected written receipts recorded before archiving, got %d", f.ledger.Len())
	}
}

func TestRunCancelledMidDocumentRecordsWrittenSegments(t *testing.T) {
	source := &sourceFake{docs: map[string][]domain.Page{
		"a.pdf": doc("a.pdf",
			receiptText("Acme", "R100"),
			receiptText("Acme", "R200"),
			receiptText("Acme", "R300"),
		),
	}}
	f := newSplitFixture(source, newLedgerFake())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.writer.after = func(domain.Segment) { cancel() }

	_, err := f.uc.Run(ctx, []string{"a.pdf"}, nil)
	if !IsInterrupted(err) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if got := f.writer.receipts(); !reflect.DeepEqual(got, []string{"R100"}) {
		t.Fatalf("expected only R100 written, got %v", got)
	}
	if !f.ledger.Contains("R100") {
		t.Fatalf("expected written receipt recorded on interruption")
	}
	if len(f.archiver.archived) != 0 {
		t.Fatalf("interrupted document must not be archived")
	}
}

func TestRunSendsFinalProgressSnapshot(t *testing.T) {
	source := scenarioSource()
	source.docs["b.pdf"] = doc("b.pdf", receiptText("Globex", "R300"))
	f := newSplitFixture(source, newLedgerFake())
	progress := make(chan domain.Progress, 64)

	if _, err := f.uc.Run(context.Background(), []string{"a.pdf", "b.pdf"}, progress); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(progress)

	var snapshots []domain.Progress
	for p := range progress {
		snapshots = append(snapshots, p)
	}
	if len(snapshots) < 3 {
		t.Fatalf("expected page, document and final snapshots, got %d", len(snapshots))
	}
	last := snapshots[len(snapshots)-1]
	if !last.Done || last.Written != 3 || last.Pages != 4 || last.DocumentsTotal != 2 {
		t.Fatalf("unexpected final snapshot %+v", last)
	}
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i].Pages < snapshots[i-1].Pages {
			t.Fatalf("snapshots out of order: %+v then %+v", snapshots[i-1], snapshots[i])
		}
	}
}

func TestRunCountsDistinctVendorsAcrossDocuments(t *testing.T) {
	source := scenarioSource()
	source.docs["b.pdf"] = doc("b.pdf", receiptText("Globex", "R300"), receiptText("Acme", "R400"))
	f := newSplitFixture(source, newLedgerFake())

	report, err := f.uc.Run(context.Background(), []string{"a.pdf", "b.pdf"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Summary.Vendors != 2 {
		t.Fatalf("expected 2 vendors, got %d", report.Summary.Vendors)
	}
	vendors := append([]string(nil), report.Documents[1].Vendors...)
	sort.Strings(vendors)
	if !reflect.DeepEqual(vendors, []string{"Acme", "Globex"}) {
		t.Fatalf("unexpected vendors for b.pdf: %v", vendors)
	}
}

func TestProcessDocumentWithoutAttributablePages(t *testing.T) {
	source := &sourceFake{docs: map[string][]domain.Page{"blank.pdf": doc("blank.pdf", "", "")}}
	f := newSplitFixture(source, newLedgerFake())

	result, err := f.uc.ProcessDocument(context.Background(), "blank.pdf")
	if err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
	if len(result.Outcomes) != 0 || result.Pages != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(f.ledger.calls) != 0 {
		t.Fatalf("expected no ledger writes")
	}
	if result.ArchivedTo == "" {
		t.Fatalf("expected document archived")
	}
}
