package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/batch"
	"github.com/foxzi/docforge/internal/document"
	"github.com/foxzi/docforge/internal/notify"
)

const bulkCSV = "name,email,start_date\n" +
	"Ana,ana@example.com,2024-03-01\n" +
	",blank@example.com,2024-03-01\n" +
	"Carl,carl@example.com,2024-03-01\n"

func TestGenerateDocument(t *testing.T) {
	env := setupTestServer(t, nil)
	tmpl := env.createTemplate(t, "Offer")

	w := env.do(t, "POST", "/api/v1/documents/generate", GenerateRequest{
		TemplateID:        tmpl.ID,
		RecipientName:     "Ana",
		RecipientEmail:    "ana@example.com",
		PlaceholderValues: map[string]string{"name": "Ana", "start_date": "2024-03-01"},
		SendEmail:         true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	var res batch.SingleResult
	decode(t, w, &res)

	if res.Document == nil || res.Document.Status != document.StatusSent {
		t.Fatalf("Document = %+v, want status sent", res.Document)
	}
	if res.Email == nil || !res.Email.Success {
		t.Errorf("Email = %+v, want success", res.Email)
	}
	if !strings.Contains(res.Document.Content, "Dear Ana,") {
		t.Errorf("Content = %q", res.Document.Content)
	}

	// Download
	w = env.do(t, "GET", "/api/v1/documents/"+res.Document.ID+"/download", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download: Status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, res.Document.FileName) {
		t.Errorf("Content-Disposition = %q, want file name %q", cd, res.Document.FileName)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("download is not a PDF")
	}

	// Captured in the sandbox outbox
	msgs, err := env.outbox.List(context.Background(), notify.OutboxFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].To != "ana@example.com" {
		t.Errorf("outbox = %+v, want one message to ana@example.com", msgs)
	}

	w = env.do(t, "GET", "/api/v1/outbox", nil)
	var outbox OutboxListResponse
	decode(t, w, &outbox)
	if len(outbox.Messages) != 1 || outbox.Messages[0].Data != nil {
		t.Errorf("outbox list = %+v, want one message without data", outbox.Messages)
	}

	// Download is audited
	entries, _, err := env.audit.List(context.Background(), audit.ListFilter{Action: audit.ActionDocumentDownloaded})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].TargetID != res.Document.ID {
		t.Errorf("download audit entries = %+v", entries)
	}
}

func TestGenerateDocumentErrors(t *testing.T) {
	env := setupTestServer(t, nil)
	tmpl := env.createTemplate(t, "Offer")

	inactive := false
	w := env.do(t, "PUT", "/api/v1/templates/"+tmpl.ID, TemplateRequest{Active: &inactive})
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	active := env.createTemplate(t, "Active")

	tests := []struct {
		name        string
		req         GenerateRequest
		wantStatus  int
		wantError   string
		wantMissing []string
	}{
		{
			name:       "missing template",
			req:        GenerateRequest{TemplateID: "nope", RecipientName: "Ana"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "inactive template",
			req:        GenerateRequest{TemplateID: tmpl.ID, RecipientName: "Ana", PlaceholderValues: map[string]string{"name": "Ana"}},
			wantStatus: http.StatusNotFound,
		},
		{
			name:        "missing required placeholder",
			req:         GenerateRequest{TemplateID: active.ID, RecipientName: "Ana"},
			wantStatus:  http.StatusBadRequest,
			wantError:   "Missing required placeholders",
			wantMissing: []string{"name"},
		},
		{
			name:       "invalid value",
			req:        GenerateRequest{TemplateID: active.ID, RecipientName: "Ana", PlaceholderValues: map[string]string{"name": "Ana", "start_date": "soon"}},
			wantStatus: http.StatusBadRequest,
			wantError:  "Data validation failed",
		},
		{
			name:       "missing recipient",
			req:        GenerateRequest{TemplateID: active.ID, PlaceholderValues: map[string]string{"name": "Ana"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad email",
			req:        GenerateRequest{TemplateID: active.ID, RecipientName: "Ana", RecipientEmail: "nope", PlaceholderValues: map[string]string{"name": "Ana"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad file type",
			req:        GenerateRequest{TemplateID: active.ID, RecipientName: "Ana", FileType: "odt", PlaceholderValues: map[string]string{"name": "Ana"}},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/documents/generate", tt.req)
			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantError == "" {
				return
			}
			var resp ValidationErrorResponse
			decode(t, w, &resp)
			if resp.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", resp.Error, tt.wantError)
			}
			if strings.Join(resp.Missing, ",") != strings.Join(tt.wantMissing, ",") {
				t.Errorf("Missing = %v, want %v", resp.Missing, tt.wantMissing)
			}
		})
	}
}

func TestBulkGeneration(t *testing.T) {
	env := setupTestServer(t, nil)
	tmpl := env.createTemplate(t, "Offer")

	w := env.upload(t, "POST", "/api/v1/documents/bulk", "people.csv", []byte(bulkCSV), map[string]string{
		"templateId": tmpl.ID,
		"fileType":   "docx",
		"sendEmail":  "true",
		"senderName": "HR",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp BulkResponse
	decode(t, w, &resp)

	if resp.Message != "Bulk generation completed" {
		t.Errorf("Message = %q", resp.Message)
	}
	r := resp.Result
	if r.TotalRecords != 3 || r.SuccessCount != 2 || r.FailureCount != 1 {
		t.Fatalf("counts = %d/%d/%d, want 3/2/1", r.TotalRecords, r.SuccessCount, r.FailureCount)
	}
	if len(r.Errors) != 1 || r.Errors[0].RecordIndex != 2 {
		t.Fatalf("Errors = %+v, want row 2", r.Errors)
	}
	if want := "Row 2: Missing value for required field 'name'"; r.Errors[0].ErrorMessage != want {
		t.Errorf("ErrorMessage = %q, want %q", r.Errors[0].ErrorMessage, want)
	}
	if len(r.EmailResults) != 2 {
		t.Errorf("EmailResults = %d, want 2", len(r.EmailResults))
	}

	// Batch documents
	w = env.do(t, "GET", "/api/v1/batches/"+r.BatchID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("batch: Status = %d, body = %s", w.Code, w.Body.String())
	}
	var br BatchResponse
	decode(t, w, &br)
	if len(br.Documents) != 2 || br.Result == nil || br.Result.BatchID != r.BatchID {
		t.Errorf("batch response = %+v", br)
	}
	for _, d := range br.Documents {
		if d.FileType != "docx" {
			t.Errorf("FileType = %q, want docx", d.FileType)
		}
	}

	// Download one of them as DOCX
	w = env.do(t, "GET", "/api/v1/documents/"+r.Documents[0].DocumentID+"/download", nil)
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Errorf("docx download: Status = %d", w.Code)
	}

	// Report
	w = env.do(t, "GET", "/api/v1/batches/"+r.BatchID+"/report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("report: Status = %d", w.Code)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("report lines = %d, want 4:\n%s", len(lines), w.Body.String())
	}
	if !strings.HasPrefix(lines[0], "row,recipient_name,recipient_email,status") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "failed") {
		t.Errorf("row 2 = %q, want failed", lines[2])
	}

	w = env.do(t, "GET", "/api/v1/batches/"+r.BatchID+"/report?format=xlsx", nil)
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Errorf("xlsx report: Status = %d", w.Code)
	}

	w = env.do(t, "GET", "/api/v1/batches/unknown", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown batch: Status = %d, want %d", w.Code, http.StatusNotFound)
	}
	w = env.do(t, "GET", "/api/v1/batches/unknown/report", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown batch report: Status = %d, want %d", w.Code, http.StatusNotFound)
	}

	// Document listing by batch
	w = env.do(t, "GET", "/api/v1/documents?batchId="+r.BatchID+"&limit=1", nil)
	var list DocumentListResponse
	decode(t, w, &list)
	if list.Total != 2 || len(list.Documents) != 1 || list.Limit != 1 {
		t.Errorf("list = total %d, len %d, limit %d", list.Total, len(list.Documents), list.Limit)
	}
}

func TestBulkRejections(t *testing.T) {
	env := setupTestServer(t, nil)
	tmpl := env.createTemplate(t, "Offer")

	tests := []struct {
		name       string
		fileName   string
		data       string
		templateID string
		fileType   string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing required column",
			fileName:   "people.csv",
			data:       "full_name,email\nAna,ana@example.com\n",
			templateID: tmpl.ID,
			wantStatus: http.StatusBadRequest,
			wantError:  "Data validation failed",
		},
		{
			name:       "unsupported extension",
			fileName:   "people.txt",
			data:       bulkCSV,
			templateID: tmpl.ID,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "header only",
			fileName:   "people.csv",
			data:       "name,email\n",
			templateID: tmpl.ID,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown template",
			fileName:   "people.csv",
			data:       bulkCSV,
			templateID: "missing",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "bad file type",
			fileName:   "people.csv",
			data:       bulkCSV,
			templateID: tmpl.ID,
			fileType:   "odt",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.upload(t, "POST", "/api/v1/documents/bulk", tt.fileName, []byte(tt.data), map[string]string{
				"templateId": tt.templateID,
				"fileType":   tt.fileType,
			})
			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantError == "" {
				return
			}
			var resp ValidationErrorResponse
			decode(t, w, &resp)
			if resp.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", resp.Error, tt.wantError)
			}
			if len(resp.Errors) == 0 || !strings.Contains(resp.Errors[0], "name") {
				t.Errorf("Errors = %v, want mention of name", resp.Errors)
			}
			if strings.Join(resp.AvailableColumns, ",") != "full_name,email" {
				t.Errorf("AvailableColumns = %v", resp.AvailableColumns)
			}
		})
	}

	docs, total, err := env.documents.List(context.Background(), document.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(docs) != 0 {
		t.Errorf("rejected uploads produced %d documents", total)
	}
}

func TestBulkValidate(t *testing.T) {
	env := setupTestServer(t, nil)
	tmpl := env.createTemplate(t, "Offer")

	w := env.upload(t, "POST", "/api/v1/documents/bulk/validate", "people.csv", []byte(bulkCSV), map[string]string{
		"templateId": tmpl.ID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp BulkValidateResponse
	decode(t, w, &resp)

	if resp.Result == nil || resp.IsValid {
		t.Fatalf("Result = %+v, want invalid", resp.Result)
	}
	if resp.TotalRecords != 3 || resp.ValidRowCount != 2 {
		t.Errorf("TotalRecords = %d, ValidRowCount = %d, want 3, 2", resp.TotalRecords, resp.ValidRowCount)
	}

	docs, _, _ := env.documents.List(context.Background(), document.ListFilter{})
	if len(docs) != 0 {
		t.Errorf("dry run produced %d documents", len(docs))
	}
}

func TestSendAndDeleteDocument(t *testing.T) {
	env := setupTestServer(t, nil)
	tmpl := env.createTemplate(t, "Offer")

	generate := func(email string) *document.Document {
		w := env.do(t, "POST", "/api/v1/documents/generate", GenerateRequest{
			TemplateID:        tmpl.ID,
			RecipientName:     "Ana",
			RecipientEmail:    email,
			PlaceholderValues: map[string]string{"name": "Ana"},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("generate: Status = %d, body = %s", w.Code, w.Body.String())
		}
		var res batch.SingleResult
		decode(t, w, &res)
		return res.Document
	}

	withEmail := generate("ana@example.com")
	withoutEmail := generate("")

	w := env.do(t, "POST", "/api/v1/documents/"+withEmail.ID+"/send-email", SendEmailRequest{SenderName: "HR"})
	if w.Code != http.StatusOK {
		t.Fatalf("send: Status = %d, body = %s", w.Code, w.Body.String())
	}
	var res batch.SingleResult
	decode(t, w, &res)
	if res.Email == nil || !res.Email.Success || res.Document.Status != document.StatusSent {
		t.Errorf("send result = %+v", res)
	}

	w = env.do(t, "POST", "/api/v1/documents/"+withoutEmail.ID+"/send-email", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("send without email: Status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = env.do(t, "POST", "/api/v1/documents/missing/send-email", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("send missing: Status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = env.do(t, "DELETE", "/api/v1/documents/"+withEmail.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: Status = %d, want %d", w.Code, http.StatusNoContent)
	}
	for _, path := range []string{"", "/download"} {
		w = env.do(t, "GET", "/api/v1/documents/"+withEmail.ID+path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %q after delete: Status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}
