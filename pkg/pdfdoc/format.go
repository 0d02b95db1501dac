package pdfdoc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rsc.io/pdf"
)

// rsc.io/pdf resolves indirect references as soon as a value is accessed, so
// the reference numbers an incremental update needs are only visible in the
// reader's textual form of a value: nested references print as "N G R".
// Names print decoded and unescaped, so the text cannot be tokenized on its
// own. The scan walks the value and its text together: keys, names and
// nesting come from the value and the text is only read for references.

type shapeKind int

const (
	shapeOther shapeKind = iota
	shapeRef
	shapeDict
	shapeArray
)

type shape struct {
	kind  shapeKind
	ref   Ref
	dict  map[string]*shape
	array []*shape
}

var errShape = errors.New("unexpected object layout")

func parseShape(v pdf.Value) (*shape, error) {
	sc := &shapeScanner{s: v.String()}
	sh, err := sc.value(v)
	if err != nil {
		return nil, err
	}
	if sc.pos != len(sc.s) {
		return nil, fmt.Errorf("trailing data at offset %d", sc.pos)
	}
	return sh, nil
}

type shapeScanner struct {
	s   string
	pos int
}

func (sc *shapeScanner) rest() string {
	return sc.s[sc.pos:]
}

func (sc *shapeScanner) consume(lit string) bool {
	if !strings.HasPrefix(sc.rest(), lit) {
		return false
	}
	sc.pos += len(lit)
	return true
}

func (sc *shapeScanner) expect(lit string) error {
	if !sc.consume(lit) {
		return fmt.Errorf("%w: expected %q at offset %d", errShape, lit, sc.pos)
	}
	return nil
}

// ref consumes "N G R" when the text at the current position is a
// reference.
func (sc *shapeScanner) ref() (Ref, bool) {
	save := sc.pos
	num, ok1 := sc.digits()
	ok2 := sc.consume(" ")
	gen, ok3 := sc.digits()
	if ok1 && ok2 && ok3 && sc.consume(" R") && sc.atBoundary() {
		return Ref{Num: num, Gen: gen}, true
	}
	sc.pos = save
	return Ref{}, false
}

func (sc *shapeScanner) digits() (int, bool) {
	start := sc.pos
	for sc.pos < len(sc.s) && sc.s[sc.pos] >= '0' && sc.s[sc.pos] <= '9' {
		sc.pos++
	}
	if start == sc.pos {
		return 0, false
	}
	n, err := strconv.Atoi(sc.s[start:sc.pos])
	return n, err == nil
}

func (sc *shapeScanner) atBoundary() bool {
	return sc.pos == len(sc.s) || isSpace(sc.s[sc.pos]) || isDelim(sc.s[sc.pos])
}

// value scans the text of v. References are recognized before v is
// consulted, so they are never resolved here.
func (sc *shapeScanner) value(v pdf.Value) (*shape, error) {
	switch v.Kind() {
	case pdf.Dict, pdf.Stream:
		if err := sc.expect("<<"); err != nil {
			return nil, err
		}
		sh := &shape{kind: shapeDict, dict: make(map[string]*shape)}
		for i, key := range v.Keys() {
			if i > 0 {
				if err := sc.expect(" "); err != nil {
					return nil, err
				}
			}
			if err := sc.expect("/" + key + " "); err != nil {
				return nil, err
			}
			child, err := sc.child(func() pdf.Value { return v.Key(key) })
			if err != nil {
				return nil, err
			}
			sh.dict[key] = child
		}
		if err := sc.expect(">>"); err != nil {
			return nil, err
		}
		// streams print as <<header>>@offset
		if v.Kind() == pdf.Stream && sc.consume("@") {
			sc.token()
		}
		return sh, nil

	case pdf.Array:
		if err := sc.expect("["); err != nil {
			return nil, err
		}
		sh := &shape{kind: shapeArray}
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				if err := sc.expect(" "); err != nil {
					return nil, err
				}
			}
			child, err := sc.child(func() pdf.Value { return v.Index(i) })
			if err != nil {
				return nil, err
			}
			sh.array = append(sh.array, child)
		}
		if err := sc.expect("]"); err != nil {
			return nil, err
		}
		return sh, nil

	case pdf.String:
		q, err := strconv.QuotedPrefix(sc.rest())
		if err != nil {
			return nil, fmt.Errorf("bad string at offset %d: %w", sc.pos, err)
		}
		sc.pos += len(q)

	case pdf.Name:
		if err := sc.expect("/" + v.Name()); err != nil {
			return nil, err
		}

	case pdf.Null:
		if !sc.consume("<nil>") && sc.token() == "" {
			return nil, fmt.Errorf("%w: expected null at offset %d", errShape, sc.pos)
		}

	default:
		if sc.token() == "" {
			return nil, fmt.Errorf("%w: expected %v at offset %d", errShape, v.Kind(), sc.pos)
		}
	}
	return &shape{kind: shapeOther}, nil
}

// child scans a dictionary entry or array element, resolving it with get
// only when it is not a reference.
func (sc *shapeScanner) child(get func() pdf.Value) (*shape, error) {
	if ref, ok := sc.ref(); ok {
		return &shape{kind: shapeRef, ref: ref}, nil
	}
	return sc.value(get())
}

func (sc *shapeScanner) token() string {
	start := sc.pos
	for sc.pos < len(sc.s) && !isSpace(sc.s[sc.pos]) && !isDelim(sc.s[sc.pos]) {
		sc.pos++
	}
	return sc.s[start:sc.pos]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	return strings.IndexByte("[]<>/\"", c) >= 0
}

// decode converts v into an Object, keeping every reference that sh records
// as a reference instead of following it.
func decode(v pdf.Value, sh *shape) (Object, error) {
	if sh != nil && sh.kind == shapeRef {
		return sh.ref, nil
	}
	switch v.Kind() {
	case pdf.Null:
		return nil, nil
	case pdf.Bool:
		return Bool(v.Bool()), nil
	case pdf.Integer:
		return Integer(v.Int64()), nil
	case pdf.Real:
		return Real(v.Float64()), nil
	case pdf.String:
		return String(v.RawString()), nil
	case pdf.Name:
		return Name(v.Name()), nil
	case pdf.Dict:
		if sh == nil || sh.kind != shapeDict {
			return nil, errShape
		}
		out := make(Dict)
		for _, key := range v.Keys() {
			child, ok := sh.dict[key]
			if !ok {
				return nil, fmt.Errorf("%w: key /%s", errShape, key)
			}
			if child.kind == shapeRef {
				out[Name(key)] = child.ref
				continue
			}
			obj, err := decode(v.Key(key), child)
			if err != nil {
				return nil, err
			}
			out[Name(key)] = obj
		}
		return out, nil
	case pdf.Array:
		if sh == nil || sh.kind != shapeArray || len(sh.array) != v.Len() {
			return nil, errShape
		}
		out := make(Array, v.Len())
		for i, child := range sh.array {
			if child.kind == shapeRef {
				out[i] = child.ref
				continue
			}
			obj, err := decode(v.Index(i), child)
			if err != nil {
				return nil, err
			}
			out[i] = obj
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot copy a direct %v", v.Kind())
	}
}

// decodeValue parses the textual form of v and decodes it.
func decodeValue(v pdf.Value) (Object, *shape, error) {
	sh, err := parseShape(v)
	if err != nil {
		return nil, nil, err
	}
	obj, err := decode(v, sh)
	if err != nil {
		return nil, nil, err
	}
	return obj, sh, nil
}
