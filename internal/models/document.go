package models

// Document is one PDF file taking part in a run. SourcePath is never written;
// OutputPath is where the working copy lives.
type Document struct {
	Name       string
	SourcePath string
	OutputPath string
}

type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Normalized returns r with X0 <= X1 and Y0 <= Y1.
func (r Rect) Normalized() Rect {
	if r.X0 > r.X1 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Y0 > r.Y1 {
		r.Y0, r.Y1 = r.Y1, r.Y0
	}
	return r
}

func (r Rect) Width() float64 {
	n := r.Normalized()
	return n.X1 - n.X0
}

func (r Rect) Height() float64 {
	n := r.Normalized()
	return n.Y1 - n.Y0
}

type Annotation struct {
	Page     int
	Index    int
	Subtype  string
	Rect     Rect
	Contents string
}

type SearchTerm struct {
	Raw        string
	Normalized string
	Folder     string
}

type DocumentState string

const (
	StateCopied     DocumentState = "copied"
	StateInspecting DocumentState = "inspecting"
	StatePersisted  DocumentState = "persisted"
	StateDeleted    DocumentState = "deleted"
	StateFailed     DocumentState = "failed"
)

// Outcome is the final state of one document after processing.
type Outcome struct {
	File       string
	State      DocumentState
	Highlights int
	Err        error
}

func (o Outcome) Matched() bool {
	return o.State == StatePersisted
}
