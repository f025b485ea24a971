package render

import (
	"bytes"
	_ "embed"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

const (
	docxMargin      = 1440 // twips
	docxFooterSize  = 20   // half-points
	docxFooterColor = "666666"
)

// blankDOCX is the package every synthesized document starts from. Only
// word/document.xml is replaced.
//
//go:embed assets/blank.docx
var blankDOCX []byte

// run is a single formatted text run
type run struct {
	text   string
	bold   bool
	italic bool
	size   int
	color  string
	font   string
}

func renderDOCX(p page) ([]byte, error) {
	t := p.theme
	font := docxFont(t.FontFamily)

	var body strings.Builder
	writeParagraph(&body, t.TitleAlign, run{
		text:  t.title(p.title),
		bold:  true,
		size:  t.DocxTitleSize,
		color: t.Color,
		font:  font,
	})
	for _, para := range p.paragraphs() {
		writeParagraph(&body, t.BodyAlign, run{
			text:  para,
			size:  t.DocxBodySize,
			color: t.BodyColor,
			font:  font,
		})
	}
	writeParagraph(&body, t.FooterAlign, run{
		text:   p.footer,
		italic: true,
		size:   docxFooterSize,
		color:  docxFooterColor,
		font:   font,
	})

	document := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>%s<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="%d" w:right="%d" w:bottom="%d" w:left="%d" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr></w:body></w:document>`,
		body.String(), docxMargin, docxMargin, docxMargin, docxMargin)

	blank, err := docx.ReadDocxFromMemory(bytes.NewReader(blankDOCX), int64(len(blankDOCX)))
	if err != nil {
		return nil, &RenderError{Op: "docx", Err: err}
	}
	defer blank.Close()

	doc := blank.Editable()
	doc.SetContent(document)

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, &RenderError{Op: "docx", Err: err}
	}
	return buf.Bytes(), nil
}

func writeParagraph(b *strings.Builder, align Align, r run) {
	b.WriteString(`<w:p><w:pPr><w:jc w:val="`)
	b.WriteString(align.docx())
	b.WriteString(`"/><w:spacing w:after="200"/></w:pPr><w:r><w:rPr>`)
	if r.font != "" {
		fmt.Fprintf(b, `<w:rFonts w:ascii="%s" w:hAnsi="%s"/>`, r.font, r.font)
	}
	if r.bold {
		b.WriteString(`<w:b/>`)
	}
	if r.italic {
		b.WriteString(`<w:i/>`)
	}
	if r.color != "" {
		fmt.Fprintf(b, `<w:color w:val="%s"/>`, r.color)
	}
	if r.size > 0 {
		fmt.Fprintf(b, `<w:sz w:val="%d"/>`, r.size)
	}
	b.WriteString(`</w:rPr><w:t xml:space="preserve">`)
	b.WriteString(escapeXML(r.text))
	b.WriteString(`</w:t></w:r></w:p>`)
}

func docxFont(family string) string {
	if family == "Times" {
		return "Times New Roman"
	}
	return "Arial"
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
