package pdfdoc_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/annotscan/internal/models"
	"github.com/xhad/annotscan/internal/testpdf"
	"github.com/xhad/annotscan/pkg/pdfdoc"
)

func writeFixture(t *testing.T, data []byte) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, testpdf.WriteFile(fs, "doc.pdf", data))
	return fs
}

func open(t *testing.T, fs billy.Filesystem) *pdfdoc.Document {
	t.Helper()
	doc, err := pdfdoc.Open(fs, "doc.pdf", pdfdoc.DefaultHighlightStyle)
	require.NoError(t, err)
	t.Cleanup(func() { doc.Close() })
	return doc
}

func TestAnnotations(t *testing.T) {
	data := testpdf.Build([]testpdf.Page{
		{Annots: []testpdf.Annot{
			{Contents: "Rue Félix Wodon 12", Rect: [4]float64{72, 700, 272, 720}},
			{Subtype: "Link", Contents: "ignored", Rect: [4]float64{0, 0, 10, 10}},
			{NoContents: true, Rect: [4]float64{300, 400, 100, 380}},
		}},
		{},
		{Annots: []testpdf.Annot{
			{Subtype: "FreeText", Contents: "second", Rect: [4]float64{1, 2, 3, 4}},
			{Subtype: "Popup", Rect: [4]float64{1, 2, 3, 4}},
			{Subtype: "Widget", Rect: [4]float64{1, 2, 3, 4}},
		}},
	}, testpdf.Options{})

	doc := open(t, writeFixture(t, data))
	require.Equal(t, 3, doc.NumPages())
	assert.False(t, doc.Encrypted())

	first, err := doc.Pages()[0].Annotations()
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "Rue Félix Wodon 12", first[0].Contents)
	assert.Equal(t, "Text", first[0].Subtype)
	assert.Equal(t, models.Rect{X0: 72, Y0: 700, X1: 272, Y1: 720}, first[0].Rect)
	assert.Equal(t, 1, first[0].Page)
	assert.Equal(t, "", first[1].Contents)
	assert.Equal(t, models.Rect{X0: 100, Y0: 380, X1: 300, Y1: 400}, first[1].Rect)

	empty, err := doc.Pages()[1].Annotations()
	require.NoError(t, err)
	assert.Empty(t, empty)

	third, err := doc.Pages()[2].Annotations()
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, "FreeText", third[0].Subtype)
	assert.Equal(t, 3, third[0].Page)
}

func TestSaveIncremental(t *testing.T) {
	tests := []struct {
		name string
		page testpdf.Page
		opts testpdf.Options
	}{
		{
			name: "xref table",
			page: testpdf.Page{Annots: []testpdf.Annot{{Contents: "a", Rect: [4]float64{10, 10, 50, 30}}}},
		},
		{
			name: "xref stream",
			page: testpdf.Page{Annots: []testpdf.Annot{{Contents: "a", Rect: [4]float64{10, 10, 50, 30}}}},
			opts: testpdf.Options{XRefStream: true},
		},
		{
			name: "indirect annots array",
			page: testpdf.Page{
				Annots:         []testpdf.Annot{{Contents: "a", Rect: [4]float64{10, 10, 50, 30}}},
				IndirectAnnots: true,
			},
		},
		{
			name: "page without annots",
			page: testpdf.Page{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := testpdf.Build([]testpdf.Page{tt.page}, tt.opts)
			fs := writeFixture(t, orig)
			doc := open(t, fs)

			page := doc.Pages()[0]
			require.NoError(t, page.AddHighlight(models.Rect{X0: 10, Y0: 10, X1: 50, Y1: 30}))
			require.NoError(t, page.AddHighlight(models.Rect{X0: 60, Y0: 10, X1: 90, Y1: 30}))
			assert.True(t, doc.Modified())
			require.NoError(t, doc.SaveIncremental())
			assert.False(t, doc.Modified())
			require.NoError(t, doc.Close())

			saved, err := util.ReadFile(fs, "doc.pdf")
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(saved, orig), "original bytes must be kept")
			if tt.opts.XRefStream {
				assert.Contains(t, string(saved[len(orig):]), "/XRef")
			} else {
				assert.Contains(t, string(saved[len(orig):]), "\nxref\n")
			}

			summary, err := testpdf.Inspect(saved)
			require.NoError(t, err)
			assert.Equal(t, 2, summary.Revisions)
			assert.Len(t, summary.Annotations, len(tt.page.Annots)+2)
			highlights := summary.Highlights()
			require.Len(t, highlights, 2)
			assert.Equal(t, [4]float64{10, 10, 50, 30}, highlights[0].Rect)
			assert.Equal(t, []float64{1, 1, 0}, highlights[0].Color)
			assert.True(t, highlights[0].HasAppearance)

			reopened := open(t, fs)
			annots, err := reopened.Pages()[0].Annotations()
			require.NoError(t, err)
			assert.Len(t, annots, len(tt.page.Annots)+2)
		})
	}
}

func TestSaveIncrementalEncrypted(t *testing.T) {
	annot := testpdf.Annot{Contents: "Rue Felix Wodon", Rect: [4]float64{10, 10, 50, 30}}

	tests := []struct {
		name string
		page testpdf.Page
		opts testpdf.Options
	}{
		{
			name: "annotation objects",
			page: testpdf.Page{Annots: []testpdf.Annot{annot}},
		},
		{
			name: "string in page dictionary",
			page: testpdf.Page{Annots: []testpdf.Annot{annot}, LastModified: "D:20240501120000Z"},
		},
		{
			name: "direct annotation dictionaries",
			page: testpdf.Page{Annots: []testpdf.Annot{annot}, DirectAnnots: true},
		},
		{
			name: "xref stream",
			page: testpdf.Page{Annots: []testpdf.Annot{annot}, LastModified: "D:20240501120000Z"},
			opts: testpdf.Options{XRefStream: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Encrypt = true
			fs := writeFixture(t, testpdf.Build([]testpdf.Page{tt.page}, tt.opts))
			doc := open(t, fs)
			require.True(t, doc.Encrypted())

			page := doc.Pages()[0]
			annots, err := page.Annotations()
			require.NoError(t, err)
			require.Len(t, annots, 1)
			assert.Equal(t, "Rue Felix Wodon", annots[0].Contents)

			require.NoError(t, page.AddHighlight(annots[0].Rect))
			require.NoError(t, doc.SaveIncremental())

			summary, err := testpdf.InspectFile(fs, "doc.pdf")
			require.NoError(t, err)
			assert.True(t, summary.Encrypted)
			assert.Equal(t, tt.page.LastModified, summary.PageInfo[0].LastModified)
			require.Len(t, summary.Annotations, 2)
			assert.Equal(t, "Rue Felix Wodon", summary.Annotations[0].Contents)
			highlights := summary.Highlights()
			require.Len(t, highlights, 1)
			assert.True(t, highlights[0].HasAppearance)
			assert.True(t, strings.HasPrefix(highlights[0].Appearance, "/H0 gs\n"), highlights[0].Appearance)

			reopened := open(t, fs)
			again, err := reopened.Pages()[0].Annotations()
			require.NoError(t, err)
			assert.Len(t, again, 2)
		})
	}
}

func TestSaveIncrementalEscapedNames(t *testing.T) {
	for _, encrypt := range []bool{false, true} {
		t.Run(fmt.Sprintf("encrypt=%v", encrypt), func(t *testing.T) {
			page := testpdf.Page{
				Annots: []testpdf.Annot{{Contents: "rue felix wodon", Rect: [4]float64{10, 10, 50, 30}}},
				Fonts:  []string{"F One", "F>>[x]", "F2"},
			}
			orig := testpdf.Build([]testpdf.Page{page}, testpdf.Options{Encrypt: encrypt})
			fs := writeFixture(t, orig)
			doc := open(t, fs)

			require.NoError(t, doc.Pages()[0].AddHighlight(models.Rect{X0: 10, Y0: 10, X1: 50, Y1: 30}))
			require.NoError(t, doc.SaveIncremental())

			saved, err := util.ReadFile(fs, "doc.pdf")
			require.NoError(t, err)
			assert.Contains(t, string(saved[len(orig):]), "/F#20One")

			summary, err := testpdf.Inspect(saved)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"F One", "F>>[x]", "F2"}, summary.PageInfo[0].Fonts)
			assert.Len(t, summary.Highlights(), 1)
		})
	}
}

func TestSaveIncrementalTwice(t *testing.T) {
	fs := writeFixture(t, testpdf.Simple("one"))

	for i := 0; i < 2; i++ {
		doc, err := pdfdoc.Open(fs, "doc.pdf", pdfdoc.HighlightStyle{Color: [3]float64{0, 1, 0}, Opacity: 0.5})
		require.NoError(t, err)
		require.NoError(t, doc.Pages()[0].AddHighlight(models.Rect{X0: 1, Y0: 1, X1: 2, Y1: 2}))
		require.NoError(t, doc.SaveIncremental())
		require.NoError(t, doc.Close())
	}

	summary, err := testpdf.InspectFile(fs, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Revisions)
	highlights := summary.Highlights()
	require.Len(t, highlights, 2)
	assert.Equal(t, []float64{0, 1, 0}, highlights[1].Color)
}

func TestSaveWithoutHighlights(t *testing.T) {
	orig := testpdf.Simple("one")
	fs := writeFixture(t, orig)
	doc := open(t, fs)

	require.NoError(t, doc.SaveIncremental())

	saved, err := util.ReadFile(fs, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, orig, saved)
}

func TestDocumentLifecycleErrors(t *testing.T) {
	fs := writeFixture(t, testpdf.Simple("one"))

	doc := open(t, fs)
	page := doc.Pages()[0]
	require.NoError(t, page.AddHighlight(models.Rect{X1: 1, Y1: 1}))
	require.NoError(t, doc.SaveIncremental())
	assert.ErrorIs(t, page.AddHighlight(models.Rect{X1: 1, Y1: 1}), pdfdoc.ErrAlreadySaved)
	assert.ErrorIs(t, doc.SaveIncremental(), pdfdoc.ErrAlreadySaved)

	require.NoError(t, doc.Close())
	require.NoError(t, doc.Close())
	_, err := page.Annotations()
	assert.ErrorIs(t, err, pdfdoc.ErrClosed)
	assert.ErrorIs(t, doc.SaveIncremental(), pdfdoc.ErrClosed)
}

func TestOpenInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "not a pdf", data: bytes.Repeat([]byte("hello world\n"), 20)},
		{name: "truncated", data: testpdf.Simple("one")[:200]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := writeFixture(t, tt.data)
			_, err := pdfdoc.Open(fs, "doc.pdf", pdfdoc.DefaultHighlightStyle)
			assert.Error(t, err)
		})
	}

	_, err := pdfdoc.Open(memfs.New(), "missing.pdf", pdfdoc.DefaultHighlightStyle)
	assert.Error(t, err)
}
