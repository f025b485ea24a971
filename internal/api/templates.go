package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/render"
	"github.com/foxzi/docforge/internal/tabular"
	"github.com/foxzi/docforge/internal/template"
)

// TemplateServer handles template API endpoints
type TemplateServer struct {
	storage        *template.Storage
	engine         *template.Engine
	audit          *auditRecorder
	maxUploadBytes int64
}

// NewTemplateServer creates a new template server
func NewTemplateServer(storage *template.Storage, recorder *auditRecorder, maxUploadBytes int64) *TemplateServer {
	return &TemplateServer{
		storage:        storage,
		engine:         template.NewEngine(),
		audit:          recorder,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes registers template API routes
func (s *TemplateServer) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Put("/{id}/file", s.handleUploadFile)
		r.Get("/{id}/sample", s.handleSample)
		r.Post("/{id}/preview", s.handlePreview)
	})
}

// Request/Response types

// TemplateRequest is the body for creating or updating a template.
// On update, empty fields keep their current value.
type TemplateRequest struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	Category     *template.Category     `json:"category,omitempty"`
	Body         string                 `json:"body"`
	Placeholders []template.Placeholder `json:"placeholders,omitempty"`
	Active       *bool                  `json:"active,omitempty"`
}

// TemplateListResponse is the response for listing templates
type TemplateListResponse struct {
	Templates []*template.Template `json:"templates"`
	Total     int                  `json:"total"`
}

// PreviewRequest is the request for previewing a template
type PreviewRequest struct {
	Values map[string]string `json:"values"`
}

// PreviewResponse is the substituted body and what is still missing
type PreviewResponse struct {
	Content         string   `json:"content"`
	Placeholders    []string `json:"placeholders"`
	Unresolved      []string `json:"unresolved"`
	MissingRequired []string `json:"missingRequired"`
}

// handleList handles GET /api/v1/templates
func (s *TemplateServer) handleList(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := pagination(r)
	filter := template.ListFilter{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		Active:   active,
		Limit:    limit,
		Offset:   offset,
	}

	templates, err := s.storage.List(r.Context(), filter)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	if templates == nil {
		templates = []*template.Template{}
	}

	sendJSON(w, http.StatusOK, TemplateListResponse{
		Templates: templates,
		Total:     len(templates),
	})
}

// handleCreate handles POST /api/v1/templates
func (s *TemplateServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := decodeJSON(r, &req, nil); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpl := &template.Template{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Body:         req.Body,
		Placeholders: req.Placeholders,
		Active:       true,
	}
	if req.Category != nil {
		tmpl.Category = *req.Category
	}
	if req.Active != nil {
		tmpl.Active = *req.Active
	}

	if err := s.engine.Validate(tmpl); err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid template: %v", err))
		return
	}

	if err := s.storage.Create(r.Context(), tmpl); err != nil {
		if errors.Is(err, template.ErrNameTaken) {
			sendError(w, http.StatusConflict, err.Error())
			return
		}
		sendError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	s.audit.record(r, &audit.Entry{
		Action:     audit.ActionTemplateCreated,
		TargetType: "template",
		TargetID:   tmpl.ID,
		Details:    map[string]any{"name": tmpl.Name, "category": string(tmpl.Category)},
		Success:    true,
	})

	sendJSON(w, http.StatusCreated, tmpl)
}

// lookup resolves {id} by ID or name, writing 404 when absent
func (s *TemplateServer) lookup(w http.ResponseWriter, r *http.Request) *template.Template {
	tmpl, err := s.storage.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get template")
		return nil
	}
	if tmpl == nil {
		sendError(w, http.StatusNotFound, "Template not found")
		return nil
	}
	return tmpl
}

// handleGet handles GET /api/v1/templates/{id}
func (s *TemplateServer) handleGet(w http.ResponseWriter, r *http.Request) {
	tmpl := s.lookup(w, r)
	if tmpl == nil {
		return
	}
	sendJSON(w, http.StatusOK, tmpl)
}

// handleUpdate handles PUT /api/v1/templates/{id}
func (s *TemplateServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := decodeJSON(r, &req, nil); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpl := s.lookup(w, r)
	if tmpl == nil {
		return
	}

	// Update fields
	if name := strings.TrimSpace(req.Name); name != "" {
		tmpl.Name = name
	}
	if req.Description != "" {
		tmpl.Description = req.Description
	}
	if req.Category != nil {
		tmpl.Category = *req.Category
	}
	if req.Body != "" {
		tmpl.Body = req.Body
	}
	if req.Placeholders != nil {
		tmpl.Placeholders = req.Placeholders
	}
	if req.Active != nil {
		tmpl.Active = *req.Active
	}

	if err := s.engine.Validate(tmpl); err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid template: %v", err))
		return
	}

	if err := s.storage.Update(r.Context(), tmpl); err != nil {
		if errors.Is(err, template.ErrNameTaken) {
			sendError(w, http.StatusConflict, err.Error())
			return
		}
		sendError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}

	s.audit.record(r, &audit.Entry{
		Action:     audit.ActionTemplateUpdated,
		TargetType: "template",
		TargetID:   tmpl.ID,
		Details:    map[string]any{"version": tmpl.Version},
		Success:    true,
	})

	sendJSON(w, http.StatusOK, tmpl)
}

// handleDelete handles DELETE /api/v1/templates/{id}
func (s *TemplateServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	tmpl := s.lookup(w, r)
	if tmpl == nil {
		return
	}

	if err := s.storage.Delete(r.Context(), tmpl.ID); err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	s.audit.record(r, &audit.Entry{
		Action:     audit.ActionTemplateDeleted,
		TargetType: "template",
		TargetID:   tmpl.ID,
		Details:    map[string]any{"name": tmpl.Name},
		Success:    true,
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleUploadFile handles PUT /api/v1/templates/{id}/file
func (s *TemplateServer) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	tmpl := s.lookup(w, r)
	if tmpl == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".docx") {
		sendError(w, http.StatusBadRequest, "Only .docx merge documents are allowed")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	// Reject documents that could never merge
	if _, err := render.Merge(data, nil); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid merge document: "+err.Error())
		return
	}

	updated, err := s.storage.SetFile(r.Context(), tmpl.ID, filepath.Base(header.Filename), data)
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			sendError(w, http.StatusNotFound, "Template not found")
			return
		}
		sendError(w, http.StatusInternalServerError, "Failed to store merge document")
		return
	}

	s.audit.record(r, &audit.Entry{
		Action:     audit.ActionTemplateUpdated,
		TargetType: "template",
		TargetID:   tmpl.ID,
		Details:    map[string]any{"file_name": updated.FileName, "file_size": updated.FileSize},
		Success:    true,
	})

	sendJSON(w, http.StatusOK, updated)
}

// handleSample handles GET /api/v1/templates/{id}/sample
func (s *TemplateServer) handleSample(w http.ResponseWriter, r *http.Request) {
	tmpl := s.lookup(w, r)
	if tmpl == nil {
		return
	}

	var (
		data        []byte
		err         error
		contentType string
	)
	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "", "csv":
		format = "csv"
		contentType = "text/csv; charset=utf-8"
		data, err = tabular.SampleCSV(tmpl.Placeholders)
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		data, err = tabular.SampleXLSX(tmpl.Placeholders)
	default:
		sendError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to build sample file")
		return
	}

	name := strings.ReplaceAll(tmpl.Name, " ", "_")
	sendFile(w, contentType, fmt.Sprintf("%s_sample_%s.%s", name, time.Now().Format("20060102"), format), data)
}

// handlePreview handles POST /api/v1/templates/{id}/preview
func (s *TemplateServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(r, &req, nil); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpl := s.lookup(w, r)
	if tmpl == nil {
		return
	}

	resp := PreviewResponse{
		Content:         template.Substitute(tmpl.Body, req.Values),
		Placeholders:    template.Placeholders(tmpl.Body),
		Unresolved:      template.Unresolved(tmpl.Body, req.Values),
		MissingRequired: template.MissingRequired(tmpl, req.Values),
	}
	if resp.Placeholders == nil {
		resp.Placeholders = []string{}
	}
	if resp.Unresolved == nil {
		resp.Unresolved = []string{}
	}
	if resp.MissingRequired == nil {
		resp.MissingRequired = []string{}
	}

	sendJSON(w, http.StatusOK, resp)
}
