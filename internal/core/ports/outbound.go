package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
)

// PageSource yields the pages of one input document in order.
type PageSource interface {
	Pages(ctx context.Context, path string) ([]domain.Page, error)
}

// FieldExtractor applies the field rules to the text of one page.
type FieldExtractor interface {
	Extract(text string) domain.ExtractedFields
}

// Ledger is the persisted set of receipt identifiers already emitted.
type Ledger interface {
	Contains(receiptID string) bool
	// Record durably appends the identifiers not yet present and returns how
	// many were added.
	Record(ctx context.Context, receiptIDs []string) (int, error)
	Len() int
}

// DocumentWriter materializes a segment as one output file.
type DocumentWriter interface {
	Write(ctx context.Context, seg domain.Segment) (string, error)
}

// PageExporter serializes a subset of a source document's pages.
type PageExporter interface {
	ExportPages(ctx context.Context, source string, pages []int, w io.Writer) error
}

// Archiver relocates fully consumed input documents.
type Archiver interface {
	Archive(ctx context.Context, path string) (string, error)
}

// ProgressPublisher forwards progress snapshots outside the process.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, progress domain.Progress) error
}

// DocumentQueue hands input document paths to the worker.
type DocumentQueue interface {
	EnqueueDocument(ctx context.Context, path string) error
	ConsumeDocuments(ctx context.Context, handler func(context.Context, string) error) error
}

// SplitMetrics observes pipeline activity.
type SplitMetrics interface {
	StartDocument()
	FinishDocument(duration time.Duration, err error)
	ObservePages(n int)
	ObserveSegment(status domain.SegmentStatus)
	ObserveLedgerSize(n int)
}

// RunReporter persists a finished run for operators.
type RunReporter interface {
	WriteReport(ctx context.Context, report domain.RunReport) error
}
