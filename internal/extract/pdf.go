package extract

import (
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// PageSource is an opened PDF whose text layer can be read one page at a time.
// Implementations need not be safe for concurrent use.
type PageSource interface {
	NumPages() int
	PageText(page int) (string, error)
}

// Opener opens path as a PageSource; the returned Closer releases it.
type Opener func(path string) (PageSource, io.Closer, error)

type pdfDocument struct {
	r *pdf.Reader
}

func openPDF(path string) (PageSource, io.Closer, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open pdf: %w", err)
	}
	return &pdfDocument{r: r}, f, nil
}

func (d *pdfDocument) NumPages() int {
	return d.r.NumPage()
}

func (d *pdfDocument) PageText(page int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed page content: %v", r)
		}
	}()
	p := d.r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("read text layer: %w", err)
	}
	return text, nil
}
