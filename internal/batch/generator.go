package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/docforge/internal/artifact"
	"github.com/foxzi/docforge/internal/document"
	"github.com/foxzi/docforge/internal/render"
	"github.com/foxzi/docforge/internal/template"
)

// DocumentStore persists generated document records
type DocumentStore interface {
	Save(ctx context.Context, doc *document.Document) error
	Update(ctx context.Context, doc *document.Document) error
	Get(ctx context.Context, id string) (*document.Document, error)
}

// TemplateFiles provides merge documents attached to templates
type TemplateFiles interface {
	GetFile(ctx context.Context, id string) ([]byte, error)
}

// StageError marks the pipeline step a row failed in
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Stages reported in StageError and the failure metrics
const (
	StageValidation = "validation"
	StageRender     = "render"
	StageStorage    = "storage"
	StageCancelled  = "cancelled"
)

// Job is one document to generate
type Job struct {
	Template       *template.Template
	Values         map[string]string
	Kind           render.Kind
	RecipientName  string
	RecipientEmail string
	// BatchID and RowIndex are set for bulk rows; single documents get a uuid
	BatchID  string
	RowIndex int
}

// Generator renders one document and persists its artifact and record
type Generator struct {
	renderer  render.Renderer
	artifacts artifact.Store
	documents DocumentStore
	files     TemplateFiles
	now       func() time.Time
}

// NewGenerator creates a generator
func NewGenerator(renderer render.Renderer, artifacts artifact.Store, documents DocumentStore, files TemplateFiles) *Generator {
	return &Generator{
		renderer:  renderer,
		artifacts: artifacts,
		documents: documents,
		files:     files,
		now:       time.Now,
	}
}

// Generate renders the job, stores the artifact and saves the record
func (g *Generator) Generate(ctx context.Context, job Job) (*document.Document, *render.Document, error) {
	tmpl := job.Template
	if job.Kind == "" {
		job.Kind = render.KindPDF
	}

	src, err := g.source(ctx, tmpl, job.Kind)
	if err != nil {
		return nil, nil, &StageError{Stage: StageRender, Err: err}
	}

	now := g.now()
	rendered, err := g.renderer.Render(render.Request{
		Category:      tmpl.Category,
		Title:         tmpl.Name,
		Source:        src,
		Values:        job.Values,
		Kind:          job.Kind,
		RecipientName: job.RecipientName,
		GeneratedAt:   now,
	})
	if err != nil {
		return nil, nil, &StageError{Stage: StageRender, Err: err}
	}

	var id, key string
	if job.BatchID != "" {
		id = fmt.Sprintf("%s-%d", job.BatchID, job.RowIndex)
		key = artifact.BatchKey(job.BatchID, job.RowIndex, string(job.Kind))
	} else {
		id = uuid.New().String()
		key = artifact.DocumentKey(id, string(job.Kind))
	}

	if err := g.artifacts.Put(ctx, key, rendered.Data, rendered.MIMEType()); err != nil {
		return nil, nil, &StageError{Stage: StageStorage, Err: fmt.Errorf("failed to store document: %w", err)}
	}

	doc := &document.Document{
		ID:             id,
		BatchID:        job.BatchID,
		RowIndex:       job.RowIndex,
		TemplateID:     tmpl.ID,
		TemplateName:   tmpl.Name,
		RecipientName:  job.RecipientName,
		RecipientEmail: job.RecipientEmail,
		Values:         job.Values,
		Content:        rendered.Content,
		FileName:       rendered.FileName,
		FileType:       string(job.Kind),
		ArtifactKey:    key,
		Size:           int64(len(rendered.Data)),
		Status:         document.StatusGenerated,
		CreatedAt:      now,
	}
	if err := g.documents.Save(ctx, doc); err != nil {
		// The record is the only handle on the artifact
		_ = g.artifacts.Delete(ctx, key)
		return nil, nil, &StageError{Stage: StageStorage, Err: fmt.Errorf("failed to save document: %w", err)}
	}

	return doc, rendered, nil
}

// source picks the merge document for DOCX output when one is attached.
// A merge-only template has no text body to fall back on for other kinds.
func (g *Generator) source(ctx context.Context, tmpl *template.Template, kind render.Kind) (render.Source, error) {
	if kind != render.KindDOCX || !tmpl.HasMergeDocument() || g.files == nil {
		if tmpl.HasMergeDocument() && strings.TrimSpace(tmpl.Body) == "" {
			return nil, &render.RenderError{Op: "merge", Err: render.ErrMergeRequiresDOCX}
		}
		return render.PlainText{Body: tmpl.Body}, nil
	}

	data, err := g.files.GetFile(ctx, tmpl.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merge document: %w", err)
	}
	if data == nil {
		return nil, errors.New("merge document is attached but missing from storage")
	}
	return render.MergeDocument{Data: data}, nil
}
