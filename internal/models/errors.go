package models

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the class of a scan failure.
type ErrorKind string

const (
	// KindInputFolderMissing aborts a whole run.
	KindInputFolderMissing ErrorKind = "INPUT_FOLDER_MISSING"

	// KindCopyFailed means the working copy of one document could not be made.
	KindCopyFailed ErrorKind = "COPY_FAILED"

	// KindDocumentProcessingFailed covers open, scan, highlight and save
	// failures of one document.
	KindDocumentProcessingFailed ErrorKind = "DOCUMENT_PROCESSING_FAILED"
)

// ScanError carries the kind, the offending filename (empty for run-level
// failures) and the underlying cause.
type ScanError struct {
	Kind ErrorKind
	File string
	Err  error
}

func NewScanError(kind ErrorKind, file string, err error) *ScanError {
	return &ScanError{Kind: kind, File: file, Err: err}
}

func (e *ScanError) Error() string {
	switch e.Kind {
	case KindInputFolderMissing:
		return fmt.Sprintf("input folder not found: %v", e.Err)
	case KindCopyFailed:
		return fmt.Sprintf("failed to copy %s: %v", e.File, e.Err)
	default:
		return fmt.Sprintf("error processing %s: %v", e.File, e.Err)
	}
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *ScanError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
