package types

import (
	"github.com/go-git/go-billy/v5"
	"github.com/xhad/annotscan/internal/models"
)

// Core interfaces

// PDFDocument is an opened working copy.
type PDFDocument interface {
	Pages() []PDFPage
	SaveIncremental() error
	Close() error
}

type PDFPage interface {
	Number() int
	Annotations() ([]models.Annotation, error)
	AddHighlight(rect models.Rect) error
}

type DocumentOpener interface {
	Open(fsys billy.Filesystem, name string) (PDFDocument, error)
}

type DocumentProcessor interface {
	Process(doc models.Document, term models.SearchTerm) models.Outcome
}
