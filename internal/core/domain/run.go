package domain

import "time"

type SegmentStatus string

const (
	SegmentWritten SegmentStatus = "written"
	SegmentSkipped SegmentStatus = "skipped"
	SegmentFailed  SegmentStatus = "failed"
)

// SegmentOutcome is what happened to one emitted segment.
type SegmentOutcome struct {
	Document    string        `json:"document"`
	ReceiptID   string        `json:"receipt_id"`
	Vendor      string        `json:"vendor"`
	ReceiptDate string        `json:"receipt_date,omitempty"`
	Pages       []int         `json:"pages"`
	Status      SegmentStatus `json:"status"`
	OutputPath  string        `json:"output_path,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// DocumentResult aggregates one fully consumed input document.
type DocumentResult struct {
	Path         string           `json:"path"`
	ArchivedTo   string           `json:"archived_to,omitempty"`
	Pages        int              `json:"pages"`
	Vendors      []string         `json:"vendors"`
	Outcomes     []SegmentOutcome `json:"outcomes"`
	Recorded     int              `json:"recorded"`
	LedgerErrors int              `json:"ledger_errors"`
}

// RunSummary holds the counters reported at the end of a run. Written and
// Skipped count distinct receipt identifiers.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Documents    int       `json:"documents"`
	Pages        int       `json:"pages"`
	Vendors      int       `json:"vendors"`
	Written      int       `json:"written"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	LedgerErrors int       `json:"ledger_errors"`
}

type RunReport struct {
	Summary   RunSummary       `json:"summary"`
	Documents []DocumentResult `json:"documents"`
}

// Outcomes flattens the per-document segment outcomes in processing order.
func (r RunReport) Outcomes() []SegmentOutcome {
	var out []SegmentOutcome
	for _, doc := range r.Documents {
		out = append(out, doc.Outcomes...)
	}
	return out
}

// Progress is a point-in-time snapshot of a running split.
type Progress struct {
	RunID          string `json:"run_id"`
	Document       string `json:"document,omitempty"`
	DocumentIndex  int    `json:"document_index"`
	DocumentsTotal int    `json:"documents_total"`
	Pages          int    `json:"pages"`
	Written        int    `json:"written"`
	Skipped        int    `json:"skipped"`
	Failed         int    `json:"failed"`
	Done           bool   `json:"done"`
}
