package receiptform

import (
	"regexp"
	"strings"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
)

const DefaultReceiptPrefix = "RFAH7970"

// space matches any Unicode whitespace rune. Forms often separate labels with
// the ideographic space U+3000, which `\s` alone does not cover.
const space = `[\s\p{Z}\x{1c}-\x{1f}\x{85}]`

// vendorPatterns are tried in order; the first match with a non-empty
// trimmed value wins.
var vendorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)供应商[/\\]?Vendor[：:](.*?)\n`),
	regexp.MustCompile(`(?i)供应商[/\\]?Vendor[：:](.*?)` + space),
	regexp.MustCompile(`(?i)供应商名称[：:](.*?)\n`),
	regexp.MustCompile(`(?i)供应商名称[：:](.*?)` + space),
	regexp.MustCompile(`(?i)VENDOR[：:](.*?)\n`),
	regexp.MustCompile(`(?i)VENDOR[：:](.*?)` + space),
}

var receiptDatePattern = regexp.MustCompile(`收货日期` + space + `*Rev\. Date:` + space + `*(\d{4}-\d{2}-\d{2})`)

type Options struct {
	// ReceiptPrefix is the fixed prefix of every receipt number.
	ReceiptPrefix string
}

// Extractor pulls receipt number, vendor and receipt date out of the text of a
// delivery-receipt page.
type Extractor struct {
	receipt *regexp.Regexp
}

func NewExtractor() *Extractor {
	return NewExtractorWithOptions(Options{})
}

func NewExtractorWithOptions(opts Options) *Extractor {
	prefix := strings.TrimSpace(opts.ReceiptPrefix)
	if prefix == "" {
		prefix = DefaultReceiptPrefix
	}
	return &Extractor{
		receipt: regexp.MustCompile(`收货单号` + space + `*RF:` + space + `*(` + regexp.QuoteMeta(prefix) + `\d+)`),
	}
}

func (e *Extractor) Extract(text string) domain.ExtractedFields {
	return domain.ExtractedFields{
		ReceiptID:   firstGroup(e.receipt, text),
		Vendor:      extractVendor(text),
		ReceiptDate: firstGroup(receiptDatePattern, text),
	}
}

func extractVendor(text string) string {
	for _, pattern := range vendorPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if vendor := strings.TrimSpace(m[1]); vendor != "" {
			return vendor
		}
	}
	return ""
}

func firstGroup(pattern *regexp.Regexp, text string) string {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
