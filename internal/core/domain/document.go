package domain

// Page is one page of an input document together with its extracted text.
// Source and Number identify the page inside the source file; pages are never
// mutated, only grouped into segments.
type Page struct {
	Source string `json:"source"`
	Number int    `json:"number"`
	Text   string `json:"-"`
}

// ExtractedFields holds what the field rules found on a single page.
// An empty string means no rule matched.
type ExtractedFields struct {
	ReceiptID   string `json:"receipt_id,omitempty"`
	Vendor      string `json:"vendor,omitempty"`
	ReceiptDate string `json:"receipt_date,omitempty"`
}

func (f ExtractedFields) IsEmpty() bool {
	return f.ReceiptID == "" && f.Vendor == "" && f.ReceiptDate == ""
}

// SegmentationState is carried page by page within one input document.
type SegmentationState struct {
	CurrentVendor  string
	CurrentReceipt string
	CurrentDate    string
	BufferedPages  []Page
}

// Open reports whether pages are currently being attributed to a segment.
func (s SegmentationState) Open() bool {
	return s.CurrentVendor != "" && s.CurrentReceipt != ""
}

// Segment is a contiguous run of pages attributed to one vendor and receipt.
// ReceiptID is the dedup key; Vendor and ReceiptDate only drive output layout.
type Segment struct {
	Vendor      string `json:"vendor"`
	ReceiptID   string `json:"receipt_id"`
	ReceiptDate string `json:"receipt_date,omitempty"`
	Pages       []Page `json:"pages"`
}

// Source returns the input document the segment was cut from.
func (s Segment) Source() string {
	if len(s.Pages) == 0 {
		return ""
	}
	return s.Pages[0].Source
}

// PageNumbers returns the 1-based page numbers in source order.
func (s Segment) PageNumbers() []int {
	out := make([]int, 0, len(s.Pages))
	for _, p := range s.Pages {
		out = append(out, p.Number)
	}
	return out
}
