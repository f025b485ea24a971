package render

import (
	"strconv"
	"strings"

	"github.com/foxzi/docforge/internal/template"
)

// Align is a paragraph alignment shared by the PDF and DOCX backends
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
	AlignJustify
)

func (a Align) pdf() string {
	switch a {
	case AlignCenter:
		return "C"
	case AlignRight:
		return "R"
	case AlignJustify:
		return "J"
	default:
		return "L"
	}
}

func (a Align) docx() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	case AlignJustify:
		return "both"
	default:
		return "left"
	}
}

// Theme holds the visual style for one template category
type Theme struct {
	Color      string // hex without '#'
	BodyColor  string
	FontFamily string

	TitleSize float64 // points
	BodySize  float64
	// DOCX sizes are in half-points
	DocxTitleSize int
	DocxBodySize  int

	TitleAlign  Align
	BodyAlign   Align
	FooterAlign Align

	DoubleBorder   bool
	TitleRule      bool
	ClosingRule    string // hex colour of the rule after the body, empty for none
	UppercaseTitle bool
}

// RGB returns the decimal components of a hex colour
func RGB(hex string) (r, g, b int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}

var themes = map[template.Category]Theme{
	template.CategoryCertificate: {
		Color:          "2c5aa0",
		BodyColor:      "333333",
		FontFamily:     "Helvetica",
		TitleSize:      24,
		BodySize:       14,
		DocxTitleSize:  32,
		DocxBodySize:   24,
		TitleAlign:     AlignCenter,
		BodyAlign:      AlignCenter,
		FooterAlign:    AlignCenter,
		DoubleBorder:   true,
		UppercaseTitle: true,
	},
	template.CategoryOfferLetter: {
		Color:         "0066cc",
		BodyColor:     "333333",
		FontFamily:    "Helvetica",
		TitleSize:     20,
		BodySize:      12,
		DocxTitleSize: 28,
		DocxBodySize:  22,
		TitleAlign:    AlignCenter,
		BodyAlign:     AlignJustify,
		FooterAlign:   AlignRight,
		TitleRule:     true,
		ClosingRule:   "cccccc",
	},
	template.CategoryAppointmentLetter: {
		Color:          "8B4513",
		BodyColor:      "333333",
		FontFamily:     "Times",
		TitleSize:      22,
		BodySize:       13,
		DocxTitleSize:  30,
		DocxBodySize:   24,
		TitleAlign:     AlignCenter,
		BodyAlign:      AlignJustify,
		FooterAlign:    AlignCenter,
		TitleRule:      true,
		UppercaseTitle: true,
	},
	template.CategoryExperienceLetter: {
		Color:         "4a90a4",
		BodyColor:     "333333",
		FontFamily:    "Helvetica",
		TitleSize:     18,
		BodySize:      12,
		DocxTitleSize: 26,
		DocxBodySize:  22,
		TitleAlign:    AlignCenter,
		BodyAlign:     AlignLeft,
		FooterAlign:   AlignRight,
		TitleRule:     true,
		ClosingRule:   "4a90a4",
	},
}

var defaultTheme = Theme{
	Color:         "000000",
	BodyColor:     "000000",
	FontFamily:    "Helvetica",
	TitleSize:     16,
	BodySize:      12,
	DocxTitleSize: 32,
	DocxBodySize:  24,
	TitleAlign:    AlignCenter,
	BodyAlign:     AlignJustify,
	FooterAlign:   AlignRight,
}

// ThemeFor returns the theme for a category, falling back to the default theme
func ThemeFor(c template.Category) Theme {
	if t, ok := themes[c]; ok {
		return t
	}
	return defaultTheme
}

func (t Theme) title(s string) string {
	if t.UppercaseTitle {
		return strings.ToUpper(s)
	}
	return s
}
