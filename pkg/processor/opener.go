package processor

import (
	"github.com/go-git/go-billy/v5"

	"github.com/xhad/annotscan/internal/types"
	"github.com/xhad/annotscan/pkg/pdfdoc"
)

// PDFOpener opens documents with pdfdoc.
type PDFOpener struct {
	Style pdfdoc.HighlightStyle
}

func (o PDFOpener) Open(fsys billy.Filesystem, name string) (types.PDFDocument, error) {
	doc, err := pdfdoc.Open(fsys, name, o.Style)
	if err != nil {
		return nil, err
	}
	return pdfDocument{doc}, nil
}

type pdfDocument struct {
	*pdfdoc.Document
}

func (d pdfDocument) Pages() []types.PDFPage {
	pages := d.Document.Pages()
	out := make([]types.PDFPage, len(pages))
	for i, p := range pages {
		out[i] = p
	}
	return out
}
