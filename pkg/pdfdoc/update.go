package pdfdoc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// update collects the objects of one incremental update.
type update struct {
	doc     *Document
	crypt   *securityHandler
	next    int
	objects map[int]indirect
}

type indirect struct {
	ref Ref
	obj Object
}

func newUpdate(d *Document) *update {
	return &update{
		doc:     d,
		next:    d.nextNum,
		objects: make(map[int]indirect),
	}
}

func (u *update) alloc() Ref {
	ref := Ref{Num: u.next}
	u.next++
	return ref
}

func (u *update) put(ref Ref, obj Object) {
	u.objects[ref.Num] = indirect{ref: ref, obj: obj}
}

// SaveIncremental appends the queued highlights to the file the document was
// opened from. The trailer keeps /Root, /Info, /ID and /Encrypt of the
// previous revision, so an encrypted file stays encrypted with the same
// parameters; new and rewritten objects are encrypted with its key. Nothing
// is written when no highlight is queued.
func (d *Document) SaveIncremental() (err error) {
	defer recoverMalformed(&err)
	if d.closed {
		return ErrClosed
	}
	if d.saved {
		return ErrAlreadySaved
	}
	if !d.Modified() {
		return nil
	}

	u := newUpdate(d)
	if d.Encrypted() {
		if u.crypt, err = d.securityHandler(); err != nil {
			return err
		}
	}
	for _, p := range d.pages {
		if len(p.pending) == 0 {
			continue
		}
		if err := u.addHighlights(p); err != nil {
			return fmt.Errorf("page %d: %w", p.number, err)
		}
	}

	data, err := u.encode()
	if err != nil {
		return err
	}

	w, err := d.fsys.OpenFile(d.name, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	if _, err := w.Seek(0, io.SeekEnd); err != nil {
		w.Close()
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	d.saved = true
	d.size += int64(len(data))
	for _, p := range d.pages {
		p.pending = nil
	}
	return nil
}

func (u *update) addHighlights(p *Page) error {
	style := u.doc.style
	refs := make(Array, 0, len(p.pending))
	for _, rect := range p.pending {
		annot := highlightDict(rect, style, p.ref)
		annotRef := u.alloc()
		apRef := u.alloc()
		u.put(apRef, appearanceStream(rect, style))
		annot["AP"] = Dict{"N": apRef}
		u.put(annotRef, annot)
		refs = append(refs, annotRef)
	}

	pageObj, sh, err := decodeValue(p.value)
	if err != nil {
		return err
	}
	page, ok := pageObj.(Dict)
	if !ok {
		return errors.New("page is not a dictionary")
	}

	// An indirect /Annots array is rewritten on its own and the page object
	// stays as it is.
	if annotsSh := sh.dict["Annots"]; annotsSh != nil && annotsSh.kind == shapeRef {
		obj, _, err := decodeValue(p.value.Key("Annots"))
		if err != nil {
			return err
		}
		var arr Array
		switch x := obj.(type) {
		case Array:
			arr = x
		case nil:
		default:
			return errors.New("/Annots is not an array")
		}
		u.put(annotsSh.ref, append(arr, refs...))
		return nil
	}

	existing, _ := page["Annots"].(Array)
	page["Annots"] = append(existing, refs...)
	u.put(p.ref, page)
	return nil
}

func (u *update) encode() ([]byte, error) {
	var xrefRef Ref
	if u.doc.xrefStream {
		xrefRef = u.alloc()
	}

	base := u.doc.size
	buf := &bytes.Buffer{}
	buf.WriteString("\n")

	nums := make([]int, 0, len(u.objects)+1)
	for num := range u.objects {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	offsets := make(map[int]int64, len(nums)+1)
	for _, num := range nums {
		ind := u.objects[num]
		obj := ind.obj
		if u.crypt != nil {
			sealed, err := u.crypt.seal(ind.ref, obj)
			if err != nil {
				return nil, fmt.Errorf("object %s: %w", ind.ref, err)
			}
			obj = sealed
		}
		offsets[num] = base + int64(buf.Len())
		if err := writeIndirect(buf, ind.ref, obj); err != nil {
			return nil, fmt.Errorf("object %s: %w", ind.ref, err)
		}
	}

	size := u.next
	if size < u.doc.nextNum {
		size = u.doc.nextNum
	}
	trailer := Dict{
		"Size": Integer(size),
		"Prev": Integer(u.doc.startxref),
	}
	for _, key := range []Name{"Root", "Info", "ID", "Encrypt"} {
		if v, ok := u.doc.trailer[key]; ok {
			trailer[key] = v
		}
	}

	xrefOffset := base + int64(buf.Len())
	if u.doc.xrefStream {
		offsets[xrefRef.Num] = xrefOffset
		nums = append(nums, xrefRef.Num)
		gens := u.gens()
		gens[xrefRef.Num] = 0
		if err := writeXrefStream(buf, xrefRef, nums, offsets, gens, trailer); err != nil {
			return nil, err
		}
	} else {
		writeXrefTable(buf, nums, offsets, u.gens())
		buf.WriteString("trailer\n")
		if err := writeObject(buf, trailer); err != nil {
			return nil, err
		}
		buf.WriteString("\n")
	}
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), nil
}

func (u *update) gens() map[int]int {
	gens := make(map[int]int, len(u.objects))
	for num, ind := range u.objects {
		gens[num] = ind.ref.Gen
	}
	return gens
}

// subsections groups sorted object numbers into runs of consecutive numbers.
func subsections(nums []int) [][]int {
	var out [][]int
	for i := 0; i < len(nums); {
		j := i + 1
		for j < len(nums) && nums[j] == nums[j-1]+1 {
			j++
		}
		out = append(out, nums[i:j])
		i = j
	}
	return out
}

func writeXrefTable(buf *bytes.Buffer, nums []int, offsets map[int]int64, gens map[int]int) {
	buf.WriteString("xref\n")
	for _, run := range subsections(nums) {
		fmt.Fprintf(buf, "%d %d\n", run[0], len(run))
		for _, num := range run {
			fmt.Fprintf(buf, "%010d %05d n\r\n", offsets[num], gens[num])
		}
	}
}

func writeXrefStream(buf *bytes.Buffer, ref Ref, nums []int, offsets map[int]int64, gens map[int]int, trailer Dict) error {
	sort.Ints(nums)

	var maxOffset int64
	for _, off := range offsets {
		if off > maxOffset {
			maxOffset = off
		}
	}
	offWidth := 1
	for maxOffset >= 1<<(8*offWidth) && offWidth < 8 {
		offWidth++
	}

	var index Array
	var data bytes.Buffer
	field := make([]byte, 8)
	for _, run := range subsections(nums) {
		index = append(index, Integer(run[0]), Integer(len(run)))
		for _, num := range run {
			data.WriteByte(1)
			binary.BigEndian.PutUint64(field, uint64(offsets[num]))
			data.Write(field[8-offWidth:])
			binary.BigEndian.PutUint16(field[:2], uint16(gens[num]))
			data.Write(field[:2])
		}
	}

	dict := Dict{
		"Type":  Name("XRef"),
		"W":     Array{Integer(1), Integer(offWidth), Integer(2)},
		"Index": index,
	}
	for k, v := range trailer {
		dict[k] = v
	}
	return writeIndirect(buf, ref, Stream{Dict: dict, Data: data.Bytes()})
}
