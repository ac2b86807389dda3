package pdf

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageExporter copies selected pages of a source PDF, unmodified and in source
// order, into a new document.
type PageExporter struct {
	conf *model.Configuration
}

func NewPageExporter() *PageExporter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PageExporter{conf: conf}
}

func (e *PageExporter) ExportPages(ctx context.Context, source string, pages []int, w io.Writer) error {
	if len(pages) == 0 {
		return fmt.Errorf("export %s: no pages selected", source)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open source pdf: %w", err)
	}
	defer f.Close()

	selected := make([]string, 0, len(pages))
	for _, n := range pages {
		if n < 1 {
			return fmt.Errorf("export %s: invalid page number %d", source, n)
		}
		selected = append(selected, strconv.Itoa(n))
	}

	if err := api.Trim(f, w, selected, e.conf); err != nil {
		return fmt.Errorf("trim %s to pages %v: %w", source, pages, err)
	}
	return nil
}
