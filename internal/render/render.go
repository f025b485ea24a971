// Package render turns templates and values into styled PDF or DOCX files.
package render

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/foxzi/docforge/internal/template"
)

// Kind is an output document format
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
)

// ParseKind resolves a format name, defaulting to PDF for an empty string
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return KindPDF, nil
	case "docx":
		return KindDOCX, nil
	}
	return "", fmt.Errorf("unsupported file type %q", s)
}

// MIMEType returns the content type of the format
func MIMEType(k Kind) string {
	if k == KindDOCX {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/pdf"
}

// ErrMergeRequiresDOCX is returned when a merge document is asked to render as PDF
var ErrMergeRequiresDOCX = errors.New("merge documents can only be rendered as docx")

// Source is the content a document is rendered from
type Source interface {
	isSource()
}

// PlainText is a template body with {{placeholder}} tokens
type PlainText struct {
	Body string
}

// MergeDocument is a DOCX file whose text carries {{field}} merge fields
type MergeDocument struct {
	Data []byte
}

func (PlainText) isSource()     {}
func (MergeDocument) isSource() {}

// Request describes a single document to render
type Request struct {
	Category      template.Category
	Title         string
	Source        Source
	Values        map[string]string
	Kind          Kind
	RecipientName string
	GeneratedAt   time.Time
}

// Document is a rendered file
type Document struct {
	FileName string
	Data     []byte
	Kind     Kind
	// Content is the substituted text for plain-text sources
	Content string
}

// MIMEType returns the document content type
func (d *Document) MIMEType() string {
	return MIMEType(d.Kind)
}

// Renderer produces documents
type Renderer interface {
	Render(req Request) (*Document, error)
}

// RenderError wraps every failure raised while producing a document
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9]`)

// FileName builds a display file name from the recipient and timestamp
func FileName(recipientName string, ts time.Time, kind Kind) string {
	base := unsafeFileChars.ReplaceAllString(recipientName, "_")
	if base == "" {
		base = "document"
	}
	return fmt.Sprintf("%s_%d.%s", base, ts.UnixNano(), kind)
}

// Options configures the Engine
type Options struct {
	DateLayout string
	Location   *time.Location
}

// Engine is the default Renderer
type Engine struct {
	dateLayout string
	location   *time.Location
}

// NewEngine creates a renderer
func NewEngine(opts Options) *Engine {
	if opts.DateLayout == "" {
		opts.DateLayout = "January 2, 2006"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Engine{dateLayout: opts.DateLayout, location: opts.Location}
}

// Render produces a document for the request
func (e *Engine) Render(req Request) (*Document, error) {
	if req.GeneratedAt.IsZero() {
		req.GeneratedAt = time.Now()
	}
	if req.Kind == "" {
		req.Kind = KindPDF
	}

	doc := &Document{
		FileName: FileName(req.RecipientName, req.GeneratedAt, req.Kind),
		Kind:     req.Kind,
	}

	switch src := req.Source.(type) {
	case PlainText:
		doc.Content = template.Substitute(src.Body, req.Values)
		page := page{
			theme:  ThemeFor(req.Category),
			title:  req.Title,
			body:   doc.Content,
			footer: "Generated on: " + req.GeneratedAt.In(e.location).Format(e.dateLayout),
		}

		var err error
		switch req.Kind {
		case KindPDF:
			doc.Data, err = renderPDF(page)
		case KindDOCX:
			doc.Data, err = renderDOCX(page)
		default:
			return nil, &RenderError{Op: "render", Err: fmt.Errorf("unsupported file type %q", req.Kind)}
		}
		if err != nil {
			return nil, err
		}

	case MergeDocument:
		if req.Kind != KindDOCX {
			return nil, &RenderError{Op: "merge", Err: ErrMergeRequiresDOCX}
		}
		data, err := Merge(src.Data, req.Values)
		if err != nil {
			return nil, err
		}
		doc.Data = data

	default:
		return nil, &RenderError{Op: "render", Err: errors.New("no document source")}
	}

	return doc, nil
}

// page is the backend-neutral layout of a plain-text document
type page struct {
	theme  Theme
	title  string
	body   string
	footer string
}

// paragraphs splits the body into non-blank lines
func (p page) paragraphs() []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(p.body, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
