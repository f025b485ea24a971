package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/batch"
	"github.com/foxzi/docforge/internal/document"
	"github.com/foxzi/docforge/internal/template"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Templates *template.Stats `json:"templates,omitempty"`
	Documents *document.Stats `json:"documents,omitempty"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse rejects uploaded data before any row is processed
type ValidationErrorResponse struct {
	Error            string   `json:"error"`
	Errors           []string `json:"errors"`
	AvailableColumns []string `json:"availableColumns,omitempty"`
	Missing          []string `json:"missing,omitempty"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.deps.Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.deps.Templates != nil {
		resp.Templates, _ = s.deps.Templates.Stats(r.Context())
	}
	if s.deps.Documents != nil {
		resp.Documents, _ = s.deps.Documents.Stats(r.Context())
	}
	sendJSON(w, http.StatusOK, resp)
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}

// sendFile writes a download with its content type and file name
func sendFile(w http.ResponseWriter, contentType, fileName string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// decodeJSON decodes the body and runs struct validation when v is non-nil
func decodeJSON(r *http.Request, dst interface{}, v *validator.Validate) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("Invalid request body")
	}
	if v == nil {
		return nil
	}
	if err := v.Struct(dst); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// pagination reads limit and offset query parameters
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o > 0 {
			offset = o
		}
	}
	return limit, offset
}

// queryBool parses an optional boolean query parameter
func queryBool(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", name)
	}
	return &b, nil
}

// queryTime parses an optional RFC 3339 or date-only query parameter
func queryTime(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%s must be an RFC 3339 time or YYYY-MM-DD date", name)
}

func actorFrom(r *http.Request) batch.Actor {
	return batch.Actor{RemoteAddr: r.RemoteAddr, UserAgent: r.UserAgent()}
}

// auditRecorder records request-driven audit entries
type auditRecorder struct {
	store  *audit.Storage
	logger *slog.Logger
}

func (a *auditRecorder) record(r *http.Request, entry *audit.Entry) {
	if a == nil || a.store == nil {
		return
	}
	entry.RemoteAddr = r.RemoteAddr
	entry.UserAgent = r.UserAgent()
	if err := a.store.Record(context.WithoutCancel(r.Context()), entry); err != nil {
		a.logger.Error("failed to record audit entry", "action", entry.Action, "error", err)
	}
}
