// Package batch generates documents for every row of an uploaded table and
// keeps a per-row account of what succeeded, what failed and why.
package batch

import (
	"time"

	"github.com/foxzi/docforge/internal/render"
)

// Result is the outcome of one bulk generation
type Result struct {
	BatchID      string          `json:"batchId"`
	TemplateID   string          `json:"templateId"`
	FileType     render.Kind     `json:"fileType"`
	TotalRecords int             `json:"totalRecords"`
	SuccessCount int             `json:"successCount"`
	FailureCount int             `json:"failureCount"`
	Documents    []DocumentEntry `json:"documents"`
	Errors       []RowError      `json:"errors"`
	EmailResults []EmailResult   `json:"emailResults"`
	StartedAt    time.Time       `json:"startedAt"`
	FinishedAt   time.Time       `json:"finishedAt"`
}

// DocumentEntry describes a row that produced a document
type DocumentEntry struct {
	RecordIndex    int    `json:"recordIndex"`
	DocumentID     string `json:"documentId"`
	RecipientName  string `json:"recipientName"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	FileName       string `json:"fileName"`
	FileRef        string `json:"fileRef"`
}

// RowError describes a row that did not produce a document
type RowError struct {
	RecordIndex   int    `json:"recordIndex"`
	RecipientName string `json:"recipientName"`
	ErrorMessage  string `json:"error"`
}

// EmailResult is the outcome of mailing one generated document
type EmailResult struct {
	RecordIndex    int    `json:"recordIndex"`
	RecipientEmail string `json:"recipientEmail"`
	Success        bool   `json:"success"`
	MessageID      string `json:"messageId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// EmailFor returns the email outcome for a row, if one was attempted
func (r *Result) EmailFor(index int) (EmailResult, bool) {
	for _, e := range r.EmailResults {
		if e.RecordIndex == index {
			return e, true
		}
	}
	return EmailResult{}, false
}

func (r *Result) addDocument(entry DocumentEntry) {
	r.Documents = append(r.Documents, entry)
	r.SuccessCount++
}

func (r *Result) addError(index int, recipientName, msg string) {
	r.Errors = append(r.Errors, RowError{
		RecordIndex:   index,
		RecipientName: recipientName,
		ErrorMessage:  msg,
	})
	r.FailureCount++
}
