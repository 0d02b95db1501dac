package pdfdoc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsc.io/pdf"

	"github.com/xhad/annotscan/internal/models"
)

func valueOf(t *testing.T, body string) pdf.Value {
	t.Helper()
	v, err := isolate(Ref{Num: 1}, []byte(body))
	require.NoError(t, err)
	return v
}

func TestParseShape(t *testing.T) {
	v := valueOf(t, `<< /Annots [12 0 R 13 0 R] /Contents (a "quoted" [text] >>) /MediaBox [0 0 612 792]
		/Parent 2 0 R /Resources << /Font << /F#20One 5 1 R /F#3E#3E 6 0 R >> >> /Rotate 90 /Name /A#20B#2F >>`)
	sh, err := parseShape(v)
	require.NoError(t, err)
	require.Equal(t, shapeDict, sh.kind)

	annots := sh.dict["Annots"]
	require.Equal(t, shapeArray, annots.kind)
	require.Len(t, annots.array, 2)
	assert.Equal(t, Ref{Num: 12}, annots.array[0].ref)
	assert.Equal(t, Ref{Num: 13}, annots.array[1].ref)

	assert.Equal(t, shapeOther, sh.dict["Contents"].kind)
	assert.Equal(t, Ref{Num: 2}, sh.dict["Parent"].ref)
	fonts := sh.dict["Resources"].dict["Font"]
	assert.Equal(t, Ref{Num: 5, Gen: 1}, fonts.dict["F One"].ref)
	assert.Equal(t, Ref{Num: 6}, fonts.dict[">>"].ref)

	box := sh.dict["MediaBox"]
	require.Len(t, box.array, 4)
	for _, elem := range box.array {
		assert.Equal(t, shapeOther, elem.kind)
	}
	assert.Equal(t, shapeOther, sh.dict["Rotate"].kind)
	assert.Equal(t, shapeOther, sh.dict["Name"].kind)
}

func TestDecodeValue(t *testing.T) {
	v := valueOf(t, `<< /Resources << /Font << /F#20One 5 0 R >> >> /Name /A#20B /T (x\)y) /N [1 2.5 true null] >>`)
	obj, _, err := decodeValue(v)
	require.NoError(t, err)

	dict := obj.(Dict)
	assert.Equal(t, Name("A B"), dict["Name"])
	assert.Equal(t, String("x)y"), dict["T"])
	assert.Equal(t, Array{Integer(1), Real(2.5), Bool(true), nil}, dict["N"])

	var buf bytes.Buffer
	require.NoError(t, writeObject(&buf, dict["Resources"]))
	assert.Equal(t, "<</Font <</F#20One 5 0 R>>>>", buf.String())

	stream := valueOf(t, "<< /Length 3 >>\nstream\nabc\nendstream")
	_, _, err = decodeValue(stream)
	assert.Error(t, err)
}

func TestWriteObject(t *testing.T) {
	tests := []struct {
		name string
		obj  Object
		want string
	}{
		{name: "null", obj: nil, want: "null"},
		{name: "bool", obj: Bool(true), want: "true"},
		{name: "integer", obj: Integer(-7), want: "-7"},
		{name: "real", obj: Real(0.25), want: "0.25"},
		{name: "whole real", obj: Real(612), want: "612"},
		{name: "name escape", obj: Name("A B#"), want: "/A#20B#23"},
		{name: "string", obj: String("a)"), want: "<6129>"},
		{name: "ref", obj: Ref{Num: 4, Gen: 2}, want: "4 2 R"},
		{name: "array", obj: Array{Integer(1), Name("N"), nil}, want: "[1 /N null]"},
		{
			name: "dict sorted",
			obj:  Dict{"Type": Name("Annot"), "F": Integer(4), "P": Ref{Num: 3}},
			want: "<</F 4 /P 3 0 R /Type /Annot>>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeObject(&buf, tt.obj))
			assert.Equal(t, tt.want, buf.String())
		})
	}

	var buf bytes.Buffer
	assert.Error(t, writeObject(&buf, Array{Stream{}}))
}

func TestWriteIndirectStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeIndirect(&buf, Ref{Num: 9}, Stream{Dict: Dict{"Type": Name("XObject")}, Data: []byte("abc")}))
	assert.Equal(t, "9 0 obj\n<</Length 3 /Type /XObject>>\nstream\nabc\nendstream\nendobj\n", buf.String())
}

func TestSubsections(t *testing.T) {
	assert.Equal(t, [][]int{{3, 4, 5}, {9}, {11, 12}}, subsections([]int{3, 4, 5, 9, 11, 12}))
	assert.Empty(t, subsections(nil))
}

func TestAppearanceStream(t *testing.T) {
	s := appearanceStream(models.Rect{X0: 10, Y0: 20, X1: 110, Y1: 40}, HighlightStyle{Color: [3]float64{1, 0.5, 0}, Opacity: 0.4})
	assert.Equal(t, "/H0 gs\n1 0.5 0 rg\n10 20 100 20 re\nf\n", string(s.Data))
	assert.Equal(t, Name("Form"), s.Dict["Subtype"])
}
