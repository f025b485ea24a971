package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/docforge/internal/notify"
)

// OutboxServer exposes messages captured in sandbox mode
type OutboxServer struct {
	outbox *notify.Outbox
}

// NewOutboxServer creates a new outbox server
func NewOutboxServer(outbox *notify.Outbox) *OutboxServer {
	return &OutboxServer{outbox: outbox}
}

// RegisterRoutes registers outbox API routes
func (s *OutboxServer) RegisterRoutes(r chi.Router) {
	r.Get("/outbox", s.handleList)
	r.Get("/outbox/{id}", s.handleGet)
}

// OutboxListResponse is the response for listing captured messages
type OutboxListResponse struct {
	Messages []*notify.CapturedMessage `json:"messages"`
	Limit    int                       `json:"limit"`
	Offset   int                       `json:"offset"`
}

// handleList handles GET /api/v1/outbox
func (s *OutboxServer) handleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	msgs, err := s.outbox.List(r.Context(), notify.OutboxFilter{
		To:     r.URL.Query().Get("to"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []*notify.CapturedMessage{}
	}
	// Raw message bodies are only returned by the single-message endpoint
	for _, m := range msgs {
		m.Data = nil
	}

	sendJSON(w, http.StatusOK, OutboxListResponse{
		Messages: msgs,
		Limit:    limit,
		Offset:   offset,
	})
}

// handleGet handles GET /api/v1/outbox/{id}
func (s *OutboxServer) handleGet(w http.ResponseWriter, r *http.Request) {
	msg, err := s.outbox.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get message")
		return
	}
	if msg == nil {
		sendError(w, http.StatusNotFound, "Message not found")
		return
	}

	if r.URL.Query().Get("raw") == "true" {
		w.Header().Set("Content-Type", "message/rfc822")
		w.WriteHeader(http.StatusOK)
		w.Write(msg.Data)
		return
	}

	sendJSON(w, http.StatusOK, msg)
}
