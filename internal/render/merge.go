package render

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/foxzi/docforge/internal/template"
)

var (
	paragraphPattern  = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	textRunPattern    = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
	mergeFieldPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)
	mergePartPattern  = regexp.MustCompile(`^word/(document|header\d*|footer\d*)\.xml$`)
)

// ErrUnbalancedField is returned when a merge document has an unterminated {{ field
var ErrUnbalancedField = errors.New("unbalanced merge field")

// Merge fills the {{field}} merge fields of a DOCX document
func Merge(docx []byte, values map[string]string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	if err != nil {
		return nil, &RenderError{Op: "merge", Err: fmt.Errorf("invalid docx: %w", err)}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	foundBody := false

	for _, f := range zr.File {
		if !mergePartPattern.MatchString(f.Name) {
			if err := zw.Copy(f); err != nil {
				return nil, &RenderError{Op: "merge", Err: err}
			}
			continue
		}
		if f.Name == "word/document.xml" {
			foundBody = true
		}

		rc, err := f.Open()
		if err != nil {
			return nil, &RenderError{Op: "merge", Err: err}
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &RenderError{Op: "merge", Err: err}
		}

		merged, err := mergePart(string(content), values)
		if err != nil {
			return nil, &RenderError{Op: "merge", Err: fmt.Errorf("%s: %w", f.Name, err)}
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified})
		if err != nil {
			return nil, &RenderError{Op: "merge", Err: err}
		}
		if _, err := io.WriteString(w, merged); err != nil {
			return nil, &RenderError{Op: "merge", Err: err}
		}
	}

	if !foundBody {
		return nil, &RenderError{Op: "merge", Err: errors.New("invalid docx: word/document.xml not found")}
	}
	if err := zw.Close(); err != nil {
		return nil, &RenderError{Op: "merge", Err: err}
	}

	return buf.Bytes(), nil
}

func mergePart(xmlText string, values map[string]string) (string, error) {
	var mergeErr error

	out := paragraphPattern.ReplaceAllStringFunc(xmlText, func(p string) string {
		if mergeErr != nil {
			return p
		}
		merged, err := mergeParagraph(p, values)
		if err != nil {
			mergeErr = err
			return p
		}
		return merged
	})

	return out, mergeErr
}

// mergeParagraph substitutes fields in one paragraph. A field split across
// runs is written into the run where it starts and removed from the others,
// so the formatting of untouched text is preserved.
func mergeParagraph(p string, values map[string]string) (string, error) {
	runs := textRunPattern.FindAllStringSubmatch(p, -1)
	if len(runs) == 0 {
		return p, nil
	}

	texts := make([]string, len(runs))
	for i, r := range runs {
		texts[i] = html.UnescapeString(r[1])
	}
	full := strings.Join(texts, "")
	if !strings.Contains(full, "{{") {
		return p, nil
	}

	fields := mergeFieldPattern.FindAllStringIndex(full, -1)
	if err := checkBalanced(full, fields); err != nil {
		return "", err
	}

	replacement := make(map[int]string, len(fields))
	for _, f := range fields {
		replacement[f[0]] = template.Substitute(full[f[0]:f[1]], values)
	}

	newTexts := make([]string, len(texts))
	pos := 0
	field := 0
	for i, t := range texts {
		var b strings.Builder
		for end := pos + len(t); pos < end; pos++ {
			for field < len(fields) && fields[field][1] <= pos {
				field++
			}
			if field < len(fields) && pos >= fields[field][0] {
				if pos == fields[field][0] {
					b.WriteString(replacement[pos])
				}
				continue
			}
			b.WriteByte(full[pos])
		}
		newTexts[i] = b.String()
	}

	i := 0
	return textRunPattern.ReplaceAllStringFunc(p, func(string) string {
		t := newTexts[i]
		i++
		return `<w:t xml:space="preserve">` + runText(t) + `</w:t>`
	}), nil
}

func checkBalanced(full string, fields [][]int) error {
	last := 0
	var rest strings.Builder
	for _, f := range fields {
		rest.WriteString(full[last:f[0]])
		rest.WriteString(" ")
		last = f[1]
	}
	rest.WriteString(full[last:])

	s := rest.String()
	if i := strings.Index(s, "{{"); i >= 0 && !strings.Contains(s[i:], "}}") {
		return fmt.Errorf("%w near %q", ErrUnbalancedField, snippet(s[i:]))
	}
	return nil
}

// runText escapes t for a w:t element and turns newlines into line breaks
func runText(t string) string {
	lines := strings.Split(strings.ReplaceAll(t, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = escapeXML(l)
	}
	return strings.Join(lines, `</w:t><w:br/><w:t xml:space="preserve">`)
}

func snippet(s string) string {
	if len(s) > 20 {
		return s[:20]
	}
	return s
}
