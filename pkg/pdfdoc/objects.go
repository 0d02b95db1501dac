package pdfdoc

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Object is a PDF object written by an incremental update. A nil Object is
// the PDF null object.
type Object interface{}

type (
	Bool    bool
	Integer int64
	Real    float64
	Name    string
	String  []byte
	Array   []Object
	Dict    map[Name]Object
)

// Ref is an indirect reference.
type Ref struct {
	Num, Gen int
}

func (r Ref) String() string {
	return fmt.Sprintf("%d %d R", r.Num, r.Gen)
}

// Stream is only valid as a top-level indirect object.
type Stream struct {
	Dict Dict
	Data []byte
}

func writeObject(buf *bytes.Buffer, obj Object) error {
	switch x := obj.(type) {
	case nil:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(x)))
	case Integer:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case Real:
		buf.WriteString(formatReal(float64(x)))
	case Name:
		writeName(buf, x)
	case String:
		buf.WriteByte('<')
		buf.WriteString(hex.EncodeToString(x))
		buf.WriteByte('>')
	case Ref:
		buf.WriteString(x.String())
	case Array:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := writeObject(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Dict:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		buf.WriteString("<<")
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeName(buf, Name(k))
			buf.WriteByte(' ')
			if err := writeObject(buf, x[Name(k)]); err != nil {
				return err
			}
		}
		buf.WriteString(">>")
	case Stream:
		return fmt.Errorf("stream cannot be a direct object")
	default:
		return fmt.Errorf("unsupported object type %T", obj)
	}
	return nil
}

// writeIndirect writes "num gen obj ... endobj".
func writeIndirect(buf *bytes.Buffer, ref Ref, obj Object) error {
	fmt.Fprintf(buf, "%d %d obj\n", ref.Num, ref.Gen)
	if s, ok := obj.(Stream); ok {
		dict := make(Dict, len(s.Dict)+1)
		for k, v := range s.Dict {
			dict[k] = v
		}
		dict["Length"] = Integer(len(s.Data))
		if err := writeObject(buf, dict); err != nil {
			return err
		}
		buf.WriteString("\nstream\n")
		buf.Write(s.Data)
		buf.WriteString("\nendstream")
	} else if err := writeObject(buf, obj); err != nil {
		return err
	}
	buf.WriteString("\nendobj\n")
	return nil
}

func formatReal(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func writeName(buf *bytes.Buffer, n Name) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < '!' || c > '~' || bytes.IndexByte([]byte("()<>[]{}/%#"), c) >= 0 {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}
