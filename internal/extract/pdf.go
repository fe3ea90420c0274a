package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extracts page text from PDF documents. Pages are joined by a single space.
type PDF struct{}

// NewPDF creates the paginated PDF format.
func NewPDF() *PDF {
	return &PDF{}
}

// Name returns "pdf".
func (f *PDF) Name() string { return "pdf" }

// Kind returns Paginated.
func (f *PDF) Kind() Kind { return Paginated }

// Extensions returns the PDF extension.
func (f *PDF) Extensions() []string { return []string{".pdf"} }

// Extract reads every page's plain text in page order.
func (f *PDF) Extract(ctx context.Context, path string) (content Content, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			content = Content{}
			err = fmt.Errorf("%w: %s: %v", ErrExtraction, path, r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return Content{}, fmt.Errorf("%w: open %s: %v", ErrExtraction, path, err)
	}
	defer file.Close()

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return Content{}, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return Content{}, fmt.Errorf("%w: %s page %d: %v", ErrExtraction, path, i, err)
		}
		pages = append(pages, text)
	}

	return Content{Text: strings.Join(pages, " ")}, nil
}
