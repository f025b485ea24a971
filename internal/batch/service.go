package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxzi/docforge/internal/artifact"
	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/document"
	"github.com/foxzi/docforge/internal/metrics"
	"github.com/foxzi/docforge/internal/notify"
	"github.com/foxzi/docforge/internal/render"
	"github.com/foxzi/docforge/internal/template"
	"github.com/foxzi/docforge/internal/validation"
)

// ErrDocumentNotFound is returned when a document record does not exist
var ErrDocumentNotFound = errors.New("document not found")

// SingleRequest asks for one document generated from explicit values
type SingleRequest struct {
	Template       *template.Template
	Values         map[string]string
	Kind           render.Kind
	RecipientName  string
	RecipientEmail string
	SendEmail      bool
	SenderName     string
	Actor          Actor
}

// SingleResult is the outcome of a single generation
type SingleResult struct {
	Document *document.Document `json:"document"`
	Email    *EmailResult       `json:"email,omitempty"`
}

// Service exposes bulk, single and re-send operations
type Service struct {
	*Orchestrator
	artifacts artifact.Store
}

// NewService creates a service around a generator
func NewService(gen *Generator, dispatcher notify.Dispatcher, recorder AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		Orchestrator: NewOrchestrator(gen, dispatcher, recorder, logger),
		artifacts:    gen.artifacts,
	}
}

// GenerateOne renders one document. Missing required values return
// *validation.SchemaError with Missing set.
func (s *Service) GenerateOne(ctx context.Context, req SingleRequest) (*SingleResult, error) {
	if req.Template == nil {
		return nil, template.ErrNotFound
	}
	if !req.Template.Active {
		return nil, template.ErrInactive
	}
	if req.Kind == "" {
		req.Kind = render.KindPDF
	}

	if missing := template.MissingRequired(req.Template, req.Values); len(missing) > 0 {
		return nil, &validation.SchemaError{
			Errors:  []string{"Missing required placeholders: " + strings.Join(missing, ", ")},
			Missing: missing,
		}
	}
	if errs := validation.ValidateValues(req.Values, req.Template.Placeholders); len(errs) > 0 {
		return nil, &validation.SchemaError{Errors: errs}
	}

	doc, rendered, err := s.gen.Generate(ctx, Job{
		Template:       req.Template,
		Values:         req.Values,
		Kind:           req.Kind,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
	})
	if err != nil {
		metrics.IncDocumentsFailed(stageOf(err))
		s.record(ctx, &audit.Entry{
			Action:         audit.ActionDocumentGenerated,
			TargetType:     "document",
			RecipientEmail: req.RecipientEmail,
			Details:        map[string]any{"template_id": req.Template.ID},
			ErrorMessage:   err.Error(),
			RemoteAddr:     req.Actor.RemoteAddr,
			UserAgent:      req.Actor.UserAgent,
		})
		return nil, err
	}

	metrics.IncDocumentsGenerated(string(req.Kind), string(req.Template.Category))
	s.record(ctx, &audit.Entry{
		Action:         audit.ActionDocumentGenerated,
		TargetType:     "document",
		TargetID:       doc.ID,
		RecipientEmail: doc.RecipientEmail,
		Details:        map[string]any{"template_id": req.Template.ID, "file_type": doc.FileType, "size": doc.Size},
		Success:        true,
		RemoteAddr:     req.Actor.RemoteAddr,
		UserAgent:      req.Actor.UserAgent,
	})
	s.logger.Info("document generated", "document_id", doc.ID, "template_id", req.Template.ID, "file_type", doc.FileType)

	result := &SingleResult{Document: doc}
	if req.SendEmail && doc.RecipientEmail != "" {
		er := s.deliver(ctx, doc, rendered, req.SenderName, req.Actor)
		result.Email = &er
	}

	return result, nil
}

// SendDocument mails an existing document again
func (s *Service) SendDocument(ctx context.Context, id, senderName string, actor Actor) (*document.Document, *EmailResult, error) {
	doc, err := s.gen.documents.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return nil, nil, ErrDocumentNotFound
	}
	if doc.RecipientEmail == "" {
		return doc, nil, &notify.DispatchError{Message: "document has no recipient email"}
	}

	data, err := s.artifacts.Get(ctx, doc.ArtifactKey)
	if err != nil {
		return doc, nil, fmt.Errorf("failed to load document file: %w", err)
	}

	rendered := &render.Document{
		FileName: doc.FileName,
		Data:     data,
		Kind:     render.Kind(doc.FileType),
		Content:  doc.Content,
	}

	er := s.deliver(ctx, doc, rendered, senderName, actor)
	er.RecordIndex = doc.RowIndex
	return doc, &er, nil
}
