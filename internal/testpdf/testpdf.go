// Package testpdf builds small PDF files with annotations for tests and reads
// them back with rsc.io/pdf.
package testpdf

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"rsc.io/pdf"
)

// Annot describes one annotation of a fixture page.
type Annot struct {
	Subtype  string // defaults to Text
	Contents string
	// NoContents omits the /Contents key.
	NoContents bool
	Rect       [4]float64
}

type Page struct {
	Annots []Annot
	// IndirectAnnots stores /Annots as a separate array object.
	IndirectAnnots bool
	// DirectAnnots writes the annotation dictionaries inside /Annots.
	DirectAnnots bool
	// Fonts are resource names, written #-escaped where needed.
	Fonts []string
	// LastModified is stored as a string in the page dictionary.
	LastModified string
}

type Options struct {
	// XRefStream writes a cross-reference stream instead of a table.
	XRefStream bool
	// Encrypt applies the standard security handler (RC4, 128 bit) with an
	// empty user password.
	Encrypt bool
}

var passwordPad = []byte{
	0x28, 0xbf, 0x4e, 0x5e, 0x4e, 0x75, 0x8a, 0x41, 0x64, 0x00, 0x4e, 0x56, 0xff, 0xfa, 0x01, 0x08,
	0x2e, 0x2e, 0x00, 0xb6, 0xd0, 0x68, 0x3e, 0x80, 0x2f, 0x0c, 0xa9, 0xfe, 0x64, 0x53, 0x69, 0x7a,
}

var fileID = []byte("annotscan-fixture")

var permissions = int32(-3904)

// Build returns a PDF with the given pages.
func Build(pages []Page, opts Options) []byte {
	b := &builder{opts: opts, objects: make(map[int]string)}
	if opts.Encrypt {
		b.setupEncryption()
	}
	b.build(pages)
	return b.bytes()
}

// Simple returns a single page PDF holding one text annotation per entry of
// contents.
func Simple(contents ...string) []byte {
	page := Page{}
	for i, c := range contents {
		y := 700 - float64(i)*50
		page.Annots = append(page.Annots, Annot{Contents: c, Rect: [4]float64{72, y, 272, y + 20}})
	}
	return Build([]Page{page}, Options{})
}

// WriteFile stores data as name on fsys.
func WriteFile(fsys billy.Filesystem, name string, data []byte) error {
	return util.WriteFile(fsys, name, data, 0o644)
}

type builder struct {
	opts    Options
	objects map[int]string
	next    int
	key     []byte
	encRef  int
	ownerPw []byte
	userPw  []byte
}

func (b *builder) alloc() int {
	b.next++
	return b.next
}

func (b *builder) setupEncryption() {
	b.ownerPw = bytes.Repeat([]byte{0x5a}, 32)

	h := md5.New()
	h.Write(passwordPad)
	h.Write(b.ownerPw)
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], uint32(permissions))
	h.Write(p[:])
	h.Write(fileID)
	key := h.Sum(nil)
	for i := 0; i < 50; i++ {
		sum := md5.Sum(key[:16])
		key = sum[:]
	}
	b.key = key[:16]

	h.Reset()
	h.Write(passwordPad)
	h.Write(fileID)
	u := h.Sum(nil)
	for i := 0; i <= 19; i++ {
		k := make([]byte, len(b.key))
		for j := range k {
			k[j] = b.key[j] ^ byte(i)
		}
		c, _ := rc4.NewCipher(k)
		c.XORKeyStream(u, u)
	}
	b.userPw = append(u, make([]byte, 16)...)
}

// str encodes s as a hex string of object num, encrypting it when needed.
func (b *builder) str(num int, s string) string {
	data := encodeText(s)
	if b.key != nil {
		h := md5.New()
		h.Write(b.key)
		h.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16), 0, 0})
		c, _ := rc4.NewCipher(h.Sum(nil))
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		data = out
	}
	return "<" + hex.EncodeToString(data) + ">"
}

// encodeText keeps ASCII as is and writes anything else as UTF-16BE with a
// byte order mark.
func encodeText(s string) []byte {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(s)
	}
	out := []byte{0xfe, 0xff}
	for _, u := range utf16.Encode([]rune(s)) {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}

func escapeName(n string) string {
	var sb strings.Builder
	sb.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c <= ' ' || c > '~' || strings.IndexByte("()<>[]{}/%#", c) >= 0 {
			fmt.Fprintf(&sb, "#%02X", c)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func rect(r [4]float64) string {
	return fmt.Sprintf("[%g %g %g %g]", r[0], r[1], r[2], r[3])
}

func (b *builder) build(pages []Page) {
	catalog := b.alloc()
	tree := b.alloc()
	b.objects[catalog] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", tree)

	var kids []string
	for _, page := range pages {
		pageNum := b.alloc()
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNum))

		var annotRefs []string
		for _, a := range page.Annots {
			subtype := a.Subtype
			if subtype == "" {
				subtype = "Text"
			}
			// strings of a direct dictionary use the key of the page object
			num := pageNum
			if !page.DirectAnnots {
				num = b.alloc()
			}
			obj := fmt.Sprintf("<< /Type /Annot /Subtype /%s /Rect %s /P %d 0 R", subtype, rect(a.Rect), pageNum)
			if !a.NoContents {
				obj += " /Contents " + b.str(num, a.Contents)
			}
			obj += " >>"
			if page.DirectAnnots {
				annotRefs = append(annotRefs, obj)
				continue
			}
			b.objects[num] = obj
			annotRefs = append(annotRefs, fmt.Sprintf("%d 0 R", num))
		}

		dict := fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792]", tree)
		if len(page.Fonts) > 0 {
			var fonts []string
			for _, f := range page.Fonts {
				fontNum := b.alloc()
				b.objects[fontNum] = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"
				fonts = append(fonts, fmt.Sprintf("%s %d 0 R", escapeName(f), fontNum))
			}
			dict += " /Resources << /Font << " + strings.Join(fonts, " ") + " >> >>"
		}
		if page.LastModified != "" {
			dict += " /LastModified " + b.str(pageNum, page.LastModified)
		}
		if len(annotRefs) > 0 {
			arr := "[" + strings.Join(annotRefs, " ") + "]"
			if page.IndirectAnnots {
				arrNum := b.alloc()
				b.objects[arrNum] = arr
				dict += fmt.Sprintf(" /Annots %d 0 R", arrNum)
			} else {
				dict += " /Annots " + arr
			}
		}
		b.objects[pageNum] = dict + " >>"
	}
	b.objects[tree] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	info := b.alloc()
	b.objects[info] = "<< /Producer " + b.str(info, "annotscan testpdf") + " >>"

	if b.opts.Encrypt {
		b.encRef = b.alloc()
		b.objects[b.encRef] = fmt.Sprintf(
			"<< /Filter /Standard /V 2 /R 3 /Length 128 /P %d /O <%s> /U <%s> >>",
			permissions, hex.EncodeToString(b.ownerPw), hex.EncodeToString(b.userPw))
	}
}

func (b *builder) trailerEntries() string {
	s := fmt.Sprintf("/Size %d /Root 1 0 R /Info %d 0 R /ID [<%s> <%s>]",
		b.next+1, b.infoRef(), hex.EncodeToString(fileID), hex.EncodeToString(fileID))
	if b.encRef != 0 {
		s += fmt.Sprintf(" /Encrypt %d 0 R", b.encRef)
	}
	return s
}

func (b *builder) infoRef() int {
	if b.encRef != 0 {
		return b.encRef - 1
	}
	return b.next
}

func (b *builder) bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	nums := make([]int, 0, len(b.objects))
	for num := range b.objects {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	offsets := make([]int, b.next+2)
	for _, num := range nums {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, b.objects[num])
	}

	if !b.opts.XRefStream {
		xref := buf.Len()
		fmt.Fprintf(&buf, "xref\n0 %d\n", b.next+1)
		buf.WriteString("0000000000 65535 f\r\n")
		for num := 1; num <= b.next; num++ {
			fmt.Fprintf(&buf, "%010d 00000 n\r\n", offsets[num])
		}
		fmt.Fprintf(&buf, "trailer\n<< %s >>\nstartxref\n%d\n%%%%EOF\n", b.trailerEntries(), xref)
		return buf.Bytes()
	}

	// The cross-reference stream describes itself as the last object.
	self := b.next + 1
	xref := buf.Len()
	offsets[self] = xref
	var data bytes.Buffer
	data.Write([]byte{0, 0, 0, 0, 0, 0xff, 0xff})
	for num := 1; num <= self; num++ {
		var entry [7]byte
		entry[0] = 1
		binary.BigEndian.PutUint32(entry[1:5], uint32(offsets[num]))
		data.Write(entry[:])
	}
	entries := strings.Replace(b.trailerEntries(), fmt.Sprintf("/Size %d", b.next+1), fmt.Sprintf("/Size %d", self+1), 1)
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XRef /W [1 4 2] /Index [0 %d] /Length %d %s >>\nstream\n",
		self, self+1, data.Len(), entries)
	buf.Write(data.Bytes())
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

// Annotation is an annotation as read back from a file.
type Annotation struct {
	Page     int
	Subtype  string
	Contents string
	Rect     [4]float64
	Color    []float64
	// HasAppearance reports whether /AP /N is present.
	HasAppearance bool
	// Appearance is the decoded content of the /AP /N stream.
	Appearance string
}

// PageInfo is what Inspect reads from a page dictionary.
type PageInfo struct {
	LastModified string
	Fonts        []string
}

// Summary is what Inspect reads back from a file.
type Summary struct {
	Pages       int
	PageInfo    []PageInfo
	Annotations []Annotation
	Encrypted   bool
	Revisions   int
}

// Highlights returns the highlight annotations of s.
func (s Summary) Highlights() []Annotation {
	var out []Annotation
	for _, a := range s.Annotations {
		if a.Subtype == "Highlight" {
			out = append(out, a)
		}
	}
	return out
}

// Inspect parses the PDF in data.
func Inspect(data []byte) (s Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Summary{}, err
	}
	s.Pages = r.NumPage()
	s.Encrypted = r.Trailer().Key("Encrypt").Kind() != pdf.Null
	s.Revisions = bytes.Count(data, []byte("%%EOF"))
	for i := 1; i <= s.Pages; i++ {
		page := r.Page(i).V
		s.PageInfo = append(s.PageInfo, PageInfo{
			LastModified: page.Key("LastModified").Text(),
			Fonts:        page.Key("Resources").Key("Font").Keys(),
		})
		annots := page.Key("Annots")
		for j := 0; j < annots.Len(); j++ {
			a := annots.Index(j)
			ann := Annotation{
				Page:          i,
				Subtype:       a.Key("Subtype").Name(),
				Contents:      a.Key("Contents").Text(),
				HasAppearance: a.Key("AP").Key("N").Kind() != pdf.Null,
			}
			if ap := a.Key("AP").Key("N"); ap.Kind() == pdf.Stream {
				content, err := io.ReadAll(ap.Reader())
				if err != nil {
					return Summary{}, err
				}
				ann.Appearance = string(content)
			}
			rv := a.Key("Rect")
			for k := 0; k < 4 && k < rv.Len(); k++ {
				ann.Rect[k] = rv.Index(k).Float64()
			}
			c := a.Key("C")
			for k := 0; k < c.Len(); k++ {
				ann.Color = append(ann.Color, c.Index(k).Float64())
			}
			s.Annotations = append(s.Annotations, ann)
		}
	}
	return s, nil
}

// InspectFile reads name from fsys and parses it.
func InspectFile(fsys billy.Filesystem, name string) (Summary, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return Summary{}, err
	}
	return Inspect(data)
}
