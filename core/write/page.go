package write

import (
	"bytes"
	"fmt"

	"github.com/benedoc-inc/pdfmerge/core/object"
)

// PageSize represents page dimensions in points (1 point = 1/72 inch)
type PageSize struct {
	Width  float64
	Height float64
}

// Standard page sizes
var (
	PageSizeLetter = PageSize{612, 792}  // 8.5 x 11 inches
	PageSizeA4     = PageSize{595, 842}  // 210 x 297 mm
	PageSizeLegal  = PageSize{612, 1008} // 8.5 x 14 inches
	PageSizeA3     = PageSize{842, 1191} // 297 x 420 mm
	PageSizeA5     = PageSize{420, 595}  // 148 x 210 mm
)

// PageBuilder collects the content and font resources of one page
type PageBuilder struct {
	writer  *PDFWriter
	size    PageSize
	fonts   map[object.Name]object.Ref
	content bytes.Buffer
}

// NewPageBuilder creates a page builder that adds its objects to w
func (w *PDFWriter) NewPageBuilder(size PageSize) *PageBuilder {
	return &PageBuilder{
		writer: w,
		size:   size,
		fonts:  make(map[object.Name]object.Ref),
	}
}

// ShowText draws one line of text with its baseline starting at x, y.
// font is a resource name returned by AddStandardFont.
func (pb *PageBuilder) ShowText(font string, size, x, y float64, text string) {
	fmt.Fprintf(&pb.content, "BT\n/%s %s Tf\n%s %s Td\n", font, formatReal(size), formatReal(x), formatReal(y))
	writeString(&pb.content, []byte(text))
	pb.content.WriteString(" Tj\nET\n")
}

// AddStandardFont adds one of the 14 standard Type1 fonts and returns its
// resource name for use with ShowText.
func (pb *PageBuilder) AddStandardFont(baseFont string) string {
	for name, ref := range pb.fonts {
		if f, ok := pb.writer.objects[ref.Num].(object.Dict); ok && f.Get("BaseFont") == object.Name(baseFont) {
			return string(name)
		}
	}
	name := object.Name(fmt.Sprintf("F%d", len(pb.fonts)+1))
	pb.fonts[name] = pb.writer.AddObject(object.Dict{
		"Type":     object.Name("Font"),
		"Subtype":  object.Name("Type1"),
		"BaseFont": object.Name(baseFont),
		"Encoding": object.Name("WinAnsiEncoding"),
	})
	return string(name)
}

// Build writes the content stream and page dictionary and returns the page's
// reference. parent is the page tree node the page belongs to.
func (pb *PageBuilder) Build(parent object.Ref) object.Ref {
	contents := pb.writer.AddStreamObject(nil, pb.content.Bytes(), true)

	resources := object.Dict{}
	if len(pb.fonts) > 0 {
		fonts := object.Dict{}
		for name, ref := range pb.fonts {
			fonts[name] = ref
		}
		resources["Font"] = fonts
	}

	return pb.writer.AddObject(object.Dict{
		"Type":      object.Name("Page"),
		"Parent":    parent,
		"MediaBox":  object.Array{object.Int(0), object.Int(0), object.Real(pb.size.Width), object.Real(pb.size.Height)},
		"Contents":  contents,
		"Resources": resources,
	})
}

// SimplePDFBuilder produces single-level page trees. It backs separator
// pages and generated test documents.
type SimplePDFBuilder struct {
	writer   *PDFWriter
	pages    []object.Ref
	pagesRef object.Ref
}

// NewSimplePDFBuilder creates a new simple PDF builder
func NewSimplePDFBuilder() *SimplePDFBuilder {
	return &SimplePDFBuilder{writer: NewPDFWriter()}
}

// Writer returns the underlying PDF writer for advanced operations
func (b *SimplePDFBuilder) Writer() *PDFWriter {
	return b.writer
}

// AddPage starts a new page. Call FinalizePage once its content is complete.
func (b *SimplePDFBuilder) AddPage(size PageSize) *PageBuilder {
	return b.writer.NewPageBuilder(size)
}

// FinalizePage adds a built page to the document
func (b *SimplePDFBuilder) FinalizePage(pb *PageBuilder) {
	if b.pagesRef.Num == 0 {
		b.pagesRef = b.writer.Reserve()
	}
	b.pages = append(b.pages, pb.Build(b.pagesRef))
}

// AddTextPage adds a page showing text in 24pt Helvetica near the top left
func (b *SimplePDFBuilder) AddTextPage(size PageSize, text string) {
	pb := b.AddPage(size)
	font := pb.AddStandardFont("Helvetica")
	pb.ShowText(font, 24, 72, size.Height-96, text)
	b.FinalizePage(pb)
}

// Pages returns the references of the pages added so far
func (b *SimplePDFBuilder) Pages() []object.Ref {
	return b.pages
}

// Bytes assembles the page tree and catalog and returns the complete PDF
func (b *SimplePDFBuilder) Bytes() ([]byte, error) {
	if b.pagesRef.Num == 0 {
		b.pagesRef = b.writer.Reserve()
	}
	kids := make(object.Array, len(b.pages))
	for i, ref := range b.pages {
		kids[i] = ref
	}
	b.writer.SetObject(b.pagesRef.Num, object.Dict{
		"Type":  object.Name("Pages"),
		"Kids":  kids,
		"Count": object.Int(len(b.pages)),
	})
	if b.writer.rootRef.Num == 0 {
		b.writer.SetRoot(b.writer.AddObject(object.Dict{
			"Type":  object.Name("Catalog"),
			"Pages": b.pagesRef,
		}))
	}
	return b.writer.Bytes()
}
