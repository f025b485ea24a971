package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/foxzi/docforge/internal/artifact"
	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/batch"
	"github.com/foxzi/docforge/internal/document"
	"github.com/foxzi/docforge/internal/notify"
	"github.com/foxzi/docforge/internal/render"
	"github.com/foxzi/docforge/internal/report"
	"github.com/foxzi/docforge/internal/tabular"
	"github.com/foxzi/docforge/internal/template"
	"github.com/foxzi/docforge/internal/validation"
)

// DocumentServer handles document generation, retrieval and batch endpoints
type DocumentServer struct {
	templates      *template.Storage
	documents      *document.Storage
	artifacts      artifact.Store
	service        *batch.Service
	results        *batch.ResultStore
	defaultKind    render.Kind
	audit          *auditRecorder
	validate       *validator.Validate
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewDocumentServer creates a new document server
func NewDocumentServer(deps Deps, recorder *auditRecorder, validate *validator.Validate, maxUploadBytes int64, logger *slog.Logger) *DocumentServer {
	kind := deps.DefaultKind
	if kind == "" {
		kind = render.KindPDF
	}
	return &DocumentServer{
		templates:      deps.Templates,
		documents:      deps.Documents,
		artifacts:      deps.Artifacts,
		service:        deps.Batches,
		results:        deps.Results,
		defaultKind:    kind,
		audit:          recorder,
		validate:       validate,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers document and batch API routes
func (s *DocumentServer) RegisterRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/generate", s.handleGenerate)
		r.Post("/bulk", s.handleBulk)
		r.Post("/bulk/validate", s.handleBulkValidate)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/download", s.handleDownload)
		r.Post("/{id}/send-email", s.handleSendEmail)
		r.Delete("/{id}", s.handleDelete)
	})

	r.Route("/batches/{batchId}", func(r chi.Router) {
		r.Get("/", s.handleBatch)
		r.Get("/report", s.handleBatchReport)
	})
}

// Request/Response types

// GenerateRequest is the request for generating a single document
type GenerateRequest struct {
	TemplateID        string            `json:"templateId" validate:"required"`
	RecipientName     string            `json:"recipientName" validate:"required,max=200"`
	RecipientEmail    string            `json:"recipientEmail,omitempty" validate:"omitempty,email"`
	PlaceholderValues map[string]string `json:"placeholderValues"`
	FileType          string            `json:"fileType,omitempty" validate:"omitempty,oneof=pdf docx PDF DOCX"`
	SendEmail         bool              `json:"sendEmail"`
	SenderName        string            `json:"senderName,omitempty"`
}

// SendEmailRequest is the optional body of a re-send
type SendEmailRequest struct {
	SenderName string `json:"senderName,omitempty"`
}

// BulkResponse is returned after a completed bulk run
type BulkResponse struct {
	Message string        `json:"message"`
	Result  *batch.Result `json:"result"`
}

// BulkValidateResponse is the dry-run verdict of an upload
type BulkValidateResponse struct {
	*validation.Result
	TotalRecords int      `json:"totalRecords"`
	Columns      []string `json:"columns"`
}

// DocumentListResponse is the response for listing documents
type DocumentListResponse struct {
	Documents []*document.Document `json:"documents"`
	Total     int                  `json:"total"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

// BatchResponse is the stored outcome of a batch with its documents
type BatchResponse struct {
	BatchID   string               `json:"batchId"`
	Result    *batch.Result        `json:"result,omitempty"`
	Documents []*document.Document `json:"documents"`
}

// activeTemplate resolves a template by ID or name and writes 404 when it
// is missing or disabled
func (s *DocumentServer) activeTemplate(w http.ResponseWriter, r *http.Request, idOrName string) *template.Template {
	if strings.TrimSpace(idOrName) == "" {
		sendError(w, http.StatusBadRequest, "templateId is required")
		return nil
	}
	tmpl, err := s.templates.Resolve(r.Context(), idOrName)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get template")
		return nil
	}
	if tmpl == nil || !tmpl.Active {
		sendError(w, http.StatusNotFound, "Template not found or inactive")
		return nil
	}
	return tmpl
}

// handleGenerate handles POST /api/v1/documents/generate
func (s *DocumentServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(r, &req, s.validate); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	kind := s.defaultKind
	if req.FileType != "" {
		k, err := render.ParseKind(req.FileType)
		if err != nil {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = k
	}

	tmpl := s.activeTemplate(w, r, req.TemplateID)
	if tmpl == nil {
		return
	}

	res, err := s.service.GenerateOne(r.Context(), batch.SingleRequest{
		Template:       tmpl,
		Values:         req.PlaceholderValues,
		Kind:           kind,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		SendEmail:      req.SendEmail,
		SenderName:     req.SenderName,
		Actor:          actorFrom(r),
	})
	if err != nil {
		s.sendGenerateError(w, err)
		return
	}

	sendJSON(w, http.StatusCreated, res)
}

func (s *DocumentServer) sendGenerateError(w http.ResponseWriter, err error) {
	var serr *validation.SchemaError
	var rerr *render.RenderError
	switch {
	case errors.As(err, &serr) && len(serr.Missing) > 0:
		sendJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Missing required placeholders",
			Errors:  serr.Errors,
			Missing: serr.Missing,
		})
	case errors.As(err, &serr):
		sendJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:  "Data validation failed",
			Errors: serr.Errors,
		})
	case errors.Is(err, template.ErrNotFound), errors.Is(err, template.ErrInactive):
		sendError(w, http.StatusNotFound, "Template not found or inactive")
	case errors.As(err, &rerr):
		sendError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("document generation failed", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to generate document")
	}
}

// readUpload parses a multipart upload and returns the file bytes and name
func (s *DocumentServer) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			sendError(w, http.StatusRequestEntityTooLarge, "File too large")
			return nil, "", false
		}
		sendError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, http.StatusBadRequest, "No file uploaded")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Failed to read file")
		return nil, "", false
	}
	return data, header.Filename, true
}

// parseUpload turns an uploaded file into a table, writing 400 on failure
func parseUpload(w http.ResponseWriter, data []byte, fileName string) *tabular.Table {
	format, err := tabular.FormatFromFilename(fileName)
	if err == nil {
		var table *tabular.Table
		if table, err = tabular.Parse(data, format); err == nil {
			return table
		}
	}
	sendError(w, http.StatusBadRequest, err.Error())
	return nil
}

// handleBulk handles POST /api/v1/documents/bulk
func (s *DocumentServer) handleBulk(w http.ResponseWriter, r *http.Request) {
	data, fileName, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	tmpl := s.activeTemplate(w, r, r.FormValue("templateId"))
	if tmpl == nil {
		return
	}

	table := parseUpload(w, data, fileName)
	if table == nil {
		return
	}

	kind := s.defaultKind
	if ft := r.FormValue("fileType"); ft != "" {
		k, err := render.ParseKind(ft)
		if err != nil {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = k
	}

	sendEmail, _ := strconv.ParseBool(r.FormValue("sendEmail"))

	result, err := s.service.Run(r.Context(), batch.Request{
		Template:   tmpl,
		Table:      table,
		Kind:       kind,
		SendEmail:  sendEmail,
		SenderName: r.FormValue("senderName"),
		Actor:      actorFrom(r),
	})
	if err != nil {
		var serr *validation.SchemaError
		if errors.As(err, &serr) {
			sendJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:            "Data validation failed",
				Errors:           serr.Errors,
				AvailableColumns: serr.AvailableColumns,
			})
			return
		}
		s.logger.Error("bulk generation failed", "template_id", tmpl.ID, "error", err)
		sendError(w, http.StatusInternalServerError, "Bulk generation failed")
		return
	}

	sendJSON(w, http.StatusCreated, BulkResponse{
		Message: "Bulk generation completed",
		Result:  result,
	})
}

// handleBulkValidate handles POST /api/v1/documents/bulk/validate
func (s *DocumentServer) handleBulkValidate(w http.ResponseWriter, r *http.Request) {
	data, fileName, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	tmpl := s.activeTemplate(w, r, r.FormValue("templateId"))
	if tmpl == nil {
		return
	}

	table := parseUpload(w, data, fileName)
	if table == nil {
		return
	}

	sendJSON(w, http.StatusOK, BulkValidateResponse{
		Result:       validation.Validate(table, tmpl.Placeholders),
		TotalRecords: table.Len(),
		Columns:      table.Columns,
	})
}

// handleList handles GET /api/v1/documents
func (s *DocumentServer) handleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	q := r.URL.Query()
	filter := document.ListFilter{
		TemplateID:     q.Get("templateId"),
		BatchID:        q.Get("batchId"),
		RecipientEmail: q.Get("recipientEmail"),
		Status:         document.Status(q.Get("status")),
		Limit:          limit,
		Offset:         offset,
	}

	docs, total, err := s.documents.List(r.Context(), filter)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	if docs == nil {
		docs = []*document.Document{}
	}

	sendJSON(w, http.StatusOK, DocumentListResponse{
		Documents: docs,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

// lookup loads {id}, writing 404 when absent
func (s *DocumentServer) lookup(w http.ResponseWriter, r *http.Request) *document.Document {
	doc, err := s.documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get document")
		return nil
	}
	if doc == nil {
		sendError(w, http.StatusNotFound, "Document not found")
		return nil
	}
	return doc
}

// handleGet handles GET /api/v1/documents/{id}
func (s *DocumentServer) handleGet(w http.ResponseWriter, r *http.Request) {
	doc := s.lookup(w, r)
	if doc == nil {
		return
	}
	sendJSON(w, http.StatusOK, doc)
}

// handleDownload handles GET /api/v1/documents/{id}/download
func (s *DocumentServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	doc := s.lookup(w, r)
	if doc == nil {
		return
	}

	data, err := s.artifacts.Get(r.Context(), doc.ArtifactKey)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			sendError(w, http.StatusNotFound, "Document file not found")
			return
		}
		s.logger.Error("failed to read artifact", "document_id", doc.ID, "key", doc.ArtifactKey, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to read document file")
		return
	}

	s.audit.record(r, &audit.Entry{
		Action:         audit.ActionDocumentDownloaded,
		TargetType:     "document",
		TargetID:       doc.ID,
		BatchID:        doc.BatchID,
		RecipientEmail: doc.RecipientEmail,
		Success:        true,
	})

	sendFile(w, render.MIMEType(render.Kind(doc.FileType)), doc.FileName, data)
}

// handleSendEmail handles POST /api/v1/documents/{id}/send-email
func (s *DocumentServer) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req, nil); err != nil {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	doc, er, err := s.service.SendDocument(r.Context(), chi.URLParam(r, "id"), req.SenderName, actorFrom(r))
	if err != nil {
		var derr *notify.DispatchError
		switch {
		case errors.Is(err, batch.ErrDocumentNotFound):
			sendError(w, http.StatusNotFound, "Document not found")
		case errors.As(err, &derr):
			sendError(w, http.StatusBadRequest, derr.Message)
		case errors.Is(err, artifact.ErrNotFound):
			sendError(w, http.StatusNotFound, "Document file not found")
		default:
			s.logger.Error("failed to send document", "error", err)
			sendError(w, http.StatusInternalServerError, "Failed to send document")
		}
		return
	}

	if !er.Success {
		sendError(w, http.StatusBadGateway, "Failed to send email: "+er.Error)
		return
	}

	sendJSON(w, http.StatusOK, batch.SingleResult{Document: doc, Email: er})
}

// handleDelete handles DELETE /api/v1/documents/{id}
func (s *DocumentServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	doc := s.lookup(w, r)
	if doc == nil {
		return
	}

	if err := s.artifacts.Delete(r.Context(), doc.ArtifactKey); err != nil && !errors.Is(err, artifact.ErrNotFound) {
		s.logger.Warn("failed to delete artifact", "document_id", doc.ID, "key", doc.ArtifactKey, "error", err)
	}
	if err := s.documents.Delete(r.Context(), doc.ID); err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	s.audit.record(r, &audit.Entry{
		Action:     audit.ActionDocumentDeleted,
		TargetType: "document",
		TargetID:   doc.ID,
		BatchID:    doc.BatchID,
		Success:    true,
	})

	w.WriteHeader(http.StatusNoContent)
}

// batchResult loads the stored result for {batchId}, or nil when absent
func (s *DocumentServer) batchResult(r *http.Request) (*batch.Result, error) {
	if s.results == nil {
		return nil, nil
	}
	return s.results.Get(r.Context(), chi.URLParam(r, "batchId"))
}

// handleBatch handles GET /api/v1/batches/{batchId}
func (s *DocumentServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	result, err := s.batchResult(r)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get batch")
		return
	}

	docs, err := s.documents.ListBatch(r.Context(), batchID)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to list batch documents")
		return
	}
	if result == nil && len(docs) == 0 {
		sendError(w, http.StatusNotFound, "Batch not found")
		return
	}
	if docs == nil {
		docs = []*document.Document{}
	}

	sendJSON(w, http.StatusOK, BatchResponse{
		BatchID:   batchID,
		Result:    result,
		Documents: docs,
	})
}

// handleBatchReport handles GET /api/v1/batches/{batchId}/report
func (s *DocumentServer) handleBatchReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.batchResult(r)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get batch")
		return
	}
	if result == nil {
		sendError(w, http.StatusNotFound, "Batch not found")
		return
	}

	data, err := report.Batch(result, format)
	if err != nil {
		s.logger.Error("failed to build batch report", "batch_id", result.BatchID, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to build report")
		return
	}

	sendFile(w, format.ContentType(), "batch_"+result.BatchID+"."+string(format), data)
}
