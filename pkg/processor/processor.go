package processor

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5"

	"github.com/xhad/annotscan/internal/models"
	"github.com/xhad/annotscan/internal/types"
	"github.com/xhad/annotscan/pkg/fsutil"
	"github.com/xhad/annotscan/pkg/pdfdoc"
)

type ProcessorConfig struct {
	FS        billy.Filesystem
	Opener    types.DocumentOpener
	Highlight pdfdoc.HighlightStyle
}

// Processor handles one document at a time: copy, inspect, highlight, then
// keep or discard the copy.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.FS == nil {
		config.FS = fsutil.NewOS()
	}
	if config.Highlight.Opacity == 0 {
		config.Highlight = pdfdoc.DefaultHighlightStyle
	}
	if config.Opener == nil {
		config.Opener = PDFOpener{Style: config.Highlight}
	}

	return Processor{
		config: config,
	}
}

// Process copies doc.SourcePath to doc.OutputPath and highlights every
// annotation of the copy that matches term. The copy is kept only when at
// least one highlight was saved.
func (p *Processor) Process(doc models.Document, term models.SearchTerm) models.Outcome {
	fs := p.config.FS
	outcome := models.Outcome{File: doc.Name, State: models.StateCopied}

	if err := fsutil.CopyFile(fs, doc.SourcePath, doc.OutputPath); err != nil {
		if rerr := fsutil.RemoveIfExists(fs, doc.OutputPath); rerr != nil {
			err = errors.Join(err, rerr)
		}
		outcome.State = models.StateFailed
		outcome.Err = models.NewScanError(models.KindCopyFailed, doc.Name, err)
		return outcome
	}

	outcome.State = models.StateInspecting
	count, err := p.highlight(doc, term)
	if err != nil {
		if rerr := fsutil.RemoveIfExists(fs, doc.OutputPath); rerr != nil {
			err = errors.Join(err, rerr)
		}
		outcome.State = models.StateFailed
		outcome.Err = models.NewScanError(models.KindDocumentProcessingFailed, doc.Name, err)
		return outcome
	}

	if count == 0 {
		if err := fsutil.RemoveIfExists(fs, doc.OutputPath); err != nil {
			outcome.State = models.StateFailed
			outcome.Err = models.NewScanError(models.KindDocumentProcessingFailed, doc.Name, err)
			return outcome
		}
		outcome.State = models.StateDeleted
		return outcome
	}

	outcome.State = models.StatePersisted
	outcome.Highlights = count
	return outcome
}

// highlight opens the copy, marks matching annotations and saves. The
// document is closed before it returns.
func (p *Processor) highlight(doc models.Document, term models.SearchTerm) (count int, err error) {
	pdf, err := p.config.Opener.Open(p.config.FS, doc.OutputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open: %w", err)
	}
	defer func() {
		if cerr := pdf.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close: %w", cerr)
		}
	}()

	for _, page := range pdf.Pages() {
		annots, err := page.Annotations()
		if err != nil {
			return 0, fmt.Errorf("failed to read annotations of page %d: %w", page.Number(), err)
		}
		for _, annot := range annots {
			if !Matches(term, annot.Contents) {
				continue
			}
			if err := page.AddHighlight(annot.Rect); err != nil {
				return 0, fmt.Errorf("failed to highlight annotation on page %d: %w", page.Number(), err)
			}
			count++
		}
	}

	if count > 0 {
		if err := pdf.SaveIncremental(); err != nil {
			return 0, fmt.Errorf("failed to save: %w", err)
		}
	}
	return count, nil
}

// OutputPath is where the copy of name goes for term below base.
func OutputPath(base string, term models.SearchTerm, name string) string {
	return filepath.Join(base, term.Folder, name)
}
