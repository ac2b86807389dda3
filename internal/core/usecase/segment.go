package usecase

import (
	"github.com/kirillkom/receipt-splitter/internal/core/domain"
	"github.com/kirillkom/receipt-splitter/internal/core/ports"
)

// Segmenter groups the pages of one input document into segments.
//
// Receipt and vendor are sticky: a page without a value keeps the previous
// one. The date is overwritten on every page, and the date in effect when a
// segment is flushed is the one attached to it. Pages seen before both a
// vendor and a receipt are known are dropped. A Segmenter must not be shared
// across documents; call Reset or build a new one.
type Segmenter struct {
	extractor ports.FieldExtractor
	state     domain.SegmentationState
}

func NewSegmenter(extractor ports.FieldExtractor) *Segmenter {
	return &Segmenter{extractor: extractor}
}

// Push feeds the next page. When the page opens a new segment, the previously
// buffered one is returned with ok set.
func (s *Segmenter) Push(page domain.Page) (domain.Segment, bool) {
	fields := s.extractor.Extract(page.Text)

	boundary := (fields.ReceiptID != "" && fields.ReceiptID != s.state.CurrentReceipt) ||
		(fields.Vendor != "" && fields.Vendor != s.state.CurrentVendor)

	var flushed domain.Segment
	var ok bool
	if boundary {
		flushed, ok = s.flush()
	}

	if fields.ReceiptID != "" {
		s.state.CurrentReceipt = fields.ReceiptID
	}
	if fields.Vendor != "" {
		s.state.CurrentVendor = fields.Vendor
	}
	s.state.CurrentDate = fields.ReceiptDate

	if s.state.Open() {
		s.state.BufferedPages = append(s.state.BufferedPages, page)
	}
	return flushed, ok
}

// Finish flushes whatever is still buffered at end of document.
func (s *Segmenter) Finish() (domain.Segment, bool) {
	return s.flush()
}

// State returns a copy of the carry-forward state.
func (s *Segmenter) State() domain.SegmentationState {
	out := s.state
	out.BufferedPages = append([]domain.Page(nil), s.state.BufferedPages...)
	return out
}

func (s *Segmenter) CurrentVendor() string {
	return s.state.CurrentVendor
}

func (s *Segmenter) Reset() {
	s.state = domain.SegmentationState{}
}

func (s *Segmenter) flush() (domain.Segment, bool) {
	if !s.state.Open() || len(s.state.BufferedPages) == 0 {
		return domain.Segment{}, false
	}
	seg := domain.Segment{
		Vendor:      s.state.CurrentVendor,
		ReceiptID:   s.state.CurrentReceipt,
		ReceiptDate: s.state.CurrentDate,
		Pages:       s.state.BufferedPages,
	}
	s.state.BufferedPages = nil
	return seg, true
}

// SegmentPages runs a fresh Segmenter over all pages of one document.
func SegmentPages(extractor ports.FieldExtractor, pages []domain.Page) []domain.Segment {
	seg := NewSegmenter(extractor)
	var out []domain.Segment
	for _, page := range pages {
		if s, ok := seg.Push(page); ok {
			out = append(out, s)
		}
	}
	if s, ok := seg.Finish(); ok {
		out = append(out, s)
	}
	return out
}
