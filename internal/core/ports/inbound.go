package ports

import (
	"context"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
)

// DocumentSplitter is the inbound contract for splitting one input document.
type DocumentSplitter interface {
	ProcessDocument(ctx context.Context, path string) (domain.DocumentResult, error)
}

// RunService is the inbound contract for a full sequential run over input
// documents. Progress snapshots are sent on progress when it is non-nil.
type RunService interface {
	Run(ctx context.Context, paths []string, progress chan<- domain.Progress) (domain.RunReport, error)
}
