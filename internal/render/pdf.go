package render

import (
	"bytes"

	"github.com/go-pdf/fpdf"
)

const (
	pdfMargin     = 50.0
	footerSize    = 10.0
	lineSpacing   = 1.5
	footerGrayHex = "808080"
)

func renderPDF(p page) ([]byte, error) {
	t := p.theme

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(p.title, true)
	pdf.SetCreator("docforge", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pageW, pageH := pdf.GetPageSize()
	contentW := pageW - 2*pdfMargin

	r, g, b := RGB(t.Color)

	if t.DoubleBorder {
		pdf.SetDrawColor(r, g, b)
		pdf.SetLineWidth(3)
		pdf.Rect(30, 30, pageW-60, pageH-60, "D")
		pdf.SetLineWidth(1)
		pdf.Rect(40, 40, pageW-80, pageH-80, "D")
		pdf.SetY(pdfMargin + 30)
	}

	// Title
	pdf.SetFont(t.FontFamily, "B", t.TitleSize)
	pdf.SetTextColor(r, g, b)
	pdf.MultiCell(contentW, t.TitleSize*1.2, tr(t.title(p.title)), "", t.TitleAlign.pdf(), false)
	pdf.Ln(t.TitleSize / 2)

	if t.TitleRule {
		rule(pdf, t.Color, 2, pageW)
		pdf.Ln(t.BodySize)
	}

	// Body
	br, bg, bb := RGB(t.BodyColor)
	pdf.SetFont(t.FontFamily, "", t.BodySize)
	pdf.SetTextColor(br, bg, bb)
	for _, para := range p.paragraphs() {
		pdf.MultiCell(contentW, t.BodySize*lineSpacing, tr(para), "", t.BodyAlign.pdf(), false)
		pdf.Ln(t.BodySize / 2)
	}

	if t.ClosingRule != "" {
		pdf.Ln(t.BodySize)
		rule(pdf, t.ClosingRule, 1, pageW)
	}

	// Footer
	pdf.Ln(t.BodySize * 2)
	fr, fg, fb := RGB(footerGrayHex)
	pdf.SetFont(t.FontFamily, "", footerSize)
	pdf.SetTextColor(fr, fg, fb)
	pdf.MultiCell(contentW, footerSize*1.4, tr(p.footer), "", t.FooterAlign.pdf(), false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &RenderError{Op: "pdf", Err: err}
	}
	return buf.Bytes(), nil
}

func rule(pdf *fpdf.Fpdf, hex string, width, pageW float64) {
	r, g, b := RGB(hex)
	y := pdf.GetY()
	pdf.SetDrawColor(r, g, b)
	pdf.SetLineWidth(width)
	pdf.Line(pdfMargin, y, pageW-pdfMargin, y)
	pdf.SetLineWidth(1)
}
