// Package pdfdoc opens PDF files, lists their annotations and adds highlight
// annotations with an incremental update.
//
// Reading is delegated to rsc.io/pdf. Writing never re-encodes the original
// bytes: new and changed objects are appended together with a new
// cross-reference section, so existing encryption and signatures over earlier
// revisions stay untouched.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"github.com/xhad/annotscan/internal/models"
	"rsc.io/pdf"
)

const maxTreeDepth = 64

var (
	ErrClosed       = errors.New("document is closed")
	ErrAlreadySaved = errors.New("document already saved")
)

// Annotation subtypes that are not comments.
var skippedSubtypes = map[string]bool{
	"Link":   true,
	"Widget": true,
	"Popup":  true,
}

// HighlightStyle controls the look of added highlight annotations.
type HighlightStyle struct {
	Color   [3]float64
	Opacity float64
}

var DefaultHighlightStyle = HighlightStyle{
	Color:   [3]float64{1, 1, 0},
	Opacity: 1,
}

type Document struct {
	fsys  billy.Filesystem
	name  string
	file  billy.File
	size  int64
	style HighlightStyle

	reader     *pdf.Reader
	trailer    Dict
	startxref  int64
	xrefStream bool
	nextNum    int

	pages  []*Page
	saved  bool
	closed bool
}

type Page struct {
	doc     *Document
	number  int
	ref     Ref
	value   pdf.Value
	pending []models.Rect
}

// Open opens name on fsys. The file stays open until Close is called.
func Open(fsys billy.Filesystem, name string, style HighlightStyle) (*Document, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := fsys.Stat(name)
	if err != nil {
		f.Close()
		return nil, err
	}
	if style.Opacity == 0 {
		style = DefaultHighlightStyle
	}

	d := &Document{
		fsys:  fsys,
		name:  name,
		file:  f,
		size:  fi.Size(),
		style: style,
	}
	if err := d.load(); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func (d *Document) load() (err error) {
	defer recoverMalformed(&err)

	d.reader, err = pdf.NewReader(d.file, d.size)
	if err != nil {
		return err
	}

	d.startxref, err = findStartXref(d.file, d.size)
	if err != nil {
		return err
	}
	head := make([]byte, 32)
	n, _ := d.file.ReadAt(head, d.startxref)
	d.xrefStream = !bytes.HasPrefix(bytes.TrimLeft(head[:n], " \t\r\n"), []byte("xref"))

	if err := d.readTrailer(); err != nil {
		return err
	}
	return d.readPages()
}

func (d *Document) readTrailer() error {
	obj, _, err := decodeValue(d.reader.Trailer())
	if err != nil {
		return fmt.Errorf("failed to read trailer: %w", err)
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return errors.New("trailer is not a dictionary")
	}
	if _, ok := trailer["Root"].(Ref); !ok {
		return errors.New("trailer has no /Root reference")
	}
	size, ok := trailer["Size"].(Integer)
	if !ok || size < 1 {
		return errors.New("trailer has no valid /Size")
	}
	d.trailer = trailer
	d.nextNum = int(size)
	return nil
}

func (d *Document) readPages() error {
	root := d.reader.Trailer().Key("Root")
	sh, err := parseShape(root)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	if sh.kind != shapeDict || sh.dict["Pages"] == nil || sh.dict["Pages"].kind != shapeRef {
		return errors.New("catalog has no /Pages reference")
	}
	return d.walk(root.Key("Pages"), sh.dict["Pages"].ref, make(map[Ref]bool), 0)
}

func (d *Document) walk(node pdf.Value, ref Ref, seen map[Ref]bool, depth int) error {
	if seen[ref] {
		return fmt.Errorf("page tree loops at object %s", ref)
	}
	seen[ref] = true
	if depth > maxTreeDepth {
		return errors.New("page tree too deep")
	}
	if node.Kind() != pdf.Dict {
		return fmt.Errorf("page tree node %s is not a dictionary", ref)
	}

	kids := node.Key("Kids")
	if node.Key("Type").Name() != "Pages" && kids.Kind() != pdf.Array {
		d.pages = append(d.pages, &Page{
			doc:    d,
			number: len(d.pages) + 1,
			ref:    ref,
			value:  node,
		})
		return nil
	}

	sh, err := parseShape(kids)
	if err != nil {
		return err
	}
	if sh.kind != shapeArray || len(sh.array) != kids.Len() {
		return fmt.Errorf("page tree node %s: %w", ref, errShape)
	}
	for i, kid := range sh.array {
		if kid.kind != shapeRef {
			return fmt.Errorf("page tree node %s has a direct kid", ref)
		}
		if err := d.walk(kids.Index(i), kid.ref, seen, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) Pages() []*Page {
	return d.pages
}

func (d *Document) NumPages() int {
	return len(d.pages)
}

func (d *Document) Encrypted() bool {
	return d.trailer["Encrypt"] != nil
}

// Modified reports whether highlights are waiting to be saved.
func (d *Document) Modified() bool {
	for _, p := range d.pages {
		if len(p.pending) > 0 {
			return true
		}
	}
	return false
}

// Close releases the underlying file. It is safe to call more than once.
func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.file.Close()
}

func (p *Page) Number() int {
	return p.number
}

// Annotations lists the comment annotations of the page. Contents is empty
// when an annotation has none.
func (p *Page) Annotations() (annots []models.Annotation, err error) {
	defer recoverMalformed(&err)
	if p.doc.closed {
		return nil, ErrClosed
	}

	list := p.value.Key("Annots")
	for i := 0; i < list.Len(); i++ {
		a := list.Index(i)
		if a.Kind() != pdf.Dict {
			continue
		}
		subtype := a.Key("Subtype").Name()
		if skippedSubtypes[subtype] {
			continue
		}
		annots = append(annots, models.Annotation{
			Page:     p.number,
			Index:    i,
			Subtype:  subtype,
			Rect:     readRect(a.Key("Rect")),
			Contents: a.Key("Contents").Text(),
		})
	}
	return annots, nil
}

// AddHighlight queues a highlight annotation covering rect. It is written by
// SaveIncremental.
func (p *Page) AddHighlight(rect models.Rect) error {
	if p.doc.closed {
		return ErrClosed
	}
	if p.doc.saved {
		return ErrAlreadySaved
	}
	p.pending = append(p.pending, rect.Normalized())
	return nil
}

func readRect(v pdf.Value) models.Rect {
	if v.Kind() != pdf.Array || v.Len() < 4 {
		return models.Rect{}
	}
	return models.Rect{
		X0: v.Index(0).Float64(),
		Y0: v.Index(1).Float64(),
		X1: v.Index(2).Float64(),
		Y1: v.Index(3).Float64(),
	}.Normalized()
}

func findStartXref(r io.ReaderAt, size int64) (int64, error) {
	n := int64(1024)
	if n > size {
		n = size
	}
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, size-n); err != nil && err != io.EOF {
		return 0, err
	}
	i := bytes.LastIndex(buf, []byte("startxref"))
	if i < 0 {
		return 0, errors.New("missing startxref")
	}
	fields := bytes.Fields(buf[i+len("startxref"):])
	if len(fields) == 0 {
		return 0, errors.New("missing startxref offset")
	}
	off, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil || off < 0 || off >= size {
		return 0, fmt.Errorf("invalid startxref offset %q", fields[0])
	}
	return off, nil
}

// recoverMalformed turns a panic inside rsc.io/pdf into an error.
func recoverMalformed(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = fmt.Errorf("malformed PDF: %w", e)
			return
		}
		*err = fmt.Errorf("malformed PDF: %v", r)
	}
}
