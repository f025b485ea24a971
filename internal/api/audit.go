package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/report"
)

// exportLimit caps how many entries a single export may contain
const exportLimit = 10000

// AuditServer handles audit trail endpoints
type AuditServer struct {
	storage *audit.Storage
}

// NewAuditServer creates a new audit server
func NewAuditServer(storage *audit.Storage) *AuditServer {
	return &AuditServer{storage: storage}
}

// RegisterRoutes registers audit API routes
func (s *AuditServer) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/stats", s.handleStats)
		r.Get("/export", s.handleExport)
	})
}

// AuditListResponse is the response for listing audit entries
type AuditListResponse struct {
	Entries []*audit.Entry `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// filter builds a list filter from query parameters
func (s *AuditServer) filter(r *http.Request) (audit.ListFilter, error) {
	q := r.URL.Query()
	filter := audit.ListFilter{
		Action:  audit.Action(q.Get("action")),
		BatchID: q.Get("batchId"),
	}

	success, err := queryBool(r, "success")
	if err != nil {
		return filter, err
	}
	filter.Success = success

	if filter.Since, err = queryTime(r, "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = queryTime(r, "until"); err != nil {
		return filter, err
	}
	return filter, nil
}

// handleList handles GET /api/v1/audit
func (s *AuditServer) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := s.filter(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit, filter.Offset = pagination(r)

	entries, total, err := s.storage.List(r.Context(), filter)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}

	sendJSON(w, http.StatusOK, AuditListResponse{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// handleStats handles GET /api/v1/audit/stats
func (s *AuditServer) handleStats(w http.ResponseWriter, r *http.Request) {
	since, err := audit.PeriodStart(r.URL.Query().Get("period"), time.Now())
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := s.storage.Stats(r.Context(), since)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get audit stats")
		return
	}

	sendJSON(w, http.StatusOK, stats)
}

// handleExport handles GET /api/v1/audit/export
func (s *AuditServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter, err := s.filter(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit = exportLimit

	entries, _, err := s.storage.List(r.Context(), filter)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to list audit entries")
		return
	}

	data, err := report.Audit(entries, format)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to build export")
		return
	}

	sendFile(w, format.ContentType(), "audit_"+time.Now().Format("20060102")+"."+string(format), data)
}
