package pdfdoc

import (
	"bytes"
	"fmt"

	"github.com/xhad/annotscan/internal/models"
)

// annotPrint is annotation flag bit 3.
const annotPrint = 4

func rectArray(r models.Rect) Array {
	return Array{Real(r.X0), Real(r.Y0), Real(r.X1), Real(r.Y1)}
}

func colorArray(style HighlightStyle) Array {
	return Array{Real(style.Color[0]), Real(style.Color[1]), Real(style.Color[2])}
}

func highlightDict(r models.Rect, style HighlightStyle, page Ref) Dict {
	return Dict{
		"Type":    Name("Annot"),
		"Subtype": Name("Highlight"),
		"Rect":    rectArray(r),
		// upper-left, upper-right, lower-left, lower-right
		"QuadPoints": Array{
			Real(r.X0), Real(r.Y1), Real(r.X1), Real(r.Y1),
			Real(r.X0), Real(r.Y0), Real(r.X1), Real(r.Y0),
		},
		"C":  colorArray(style),
		"CA": Real(style.Opacity),
		"F":  Integer(annotPrint),
		"P":  page,
	}
}

// appearanceStream draws the highlight as a filled rectangle in multiply
// blend mode.
func appearanceStream(r models.Rect, style HighlightStyle) Stream {
	var content bytes.Buffer
	content.WriteString("/H0 gs\n")
	fmt.Fprintf(&content, "%s %s %s rg\n",
		formatReal(style.Color[0]), formatReal(style.Color[1]), formatReal(style.Color[2]))
	fmt.Fprintf(&content, "%s %s %s %s re\nf\n",
		formatReal(r.X0), formatReal(r.Y0), formatReal(r.Width()), formatReal(r.Height()))

	return Stream{
		Dict: Dict{
			"Type":    Name("XObject"),
			"Subtype": Name("Form"),
			"BBox":    rectArray(r),
			"Resources": Dict{
				"ExtGState": Dict{
					"H0": Dict{
						"Type": Name("ExtGState"),
						"BM":   Name("Multiply"),
						"CA":   Real(style.Opacity),
						"ca":   Real(style.Opacity),
					},
				},
			},
		},
		Data: content.Bytes(),
	}
}
