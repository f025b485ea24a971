package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/document"
	"github.com/foxzi/docforge/internal/metrics"
	"github.com/foxzi/docforge/internal/notify"
	"github.com/foxzi/docforge/internal/render"
	"github.com/foxzi/docforge/internal/tabular"
	"github.com/foxzi/docforge/internal/template"
	"github.com/foxzi/docforge/internal/validation"
)

// Columns searched, in order, for the recipient of a row
var (
	nameColumns  = []string{"name", "recipientName", "recipient_name", "fullName", "full_name"}
	emailColumns = []string{"email", "recipientEmail", "recipient_email"}
)

// AuditRecorder stores audit entries
type AuditRecorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// Actor identifies the caller for the audit trail
type Actor struct {
	RemoteAddr string
	UserAgent  string
}

// Request is a bulk generation request
type Request struct {
	Template   *template.Template
	Table      *tabular.Table
	Kind       render.Kind
	SendEmail  bool
	SenderName string
	Actor      Actor
}

// Orchestrator runs bulk generation one row at a time
type Orchestrator struct {
	gen        *Generator
	dispatcher notify.Dispatcher
	audit      AuditRecorder
	results    *ResultStore
	logger     *slog.Logger
	now        func() time.Time
}

// SetResultStore makes the orchestrator keep every finished result
func (o *Orchestrator) SetResultStore(store *ResultStore) {
	o.results = store
}

// NewOrchestrator creates an orchestrator. A nil dispatcher disables email
// and a nil recorder disables the audit trail.
func NewOrchestrator(gen *Generator, dispatcher notify.Dispatcher, recorder AuditRecorder, logger *slog.Logger) *Orchestrator {
	if dispatcher == nil {
		dispatcher = notify.Disabled{}
	}
	return &Orchestrator{
		gen:        gen,
		dispatcher: dispatcher,
		audit:      recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Run validates the table and generates a document per valid row.
// A batch-level validation failure returns *validation.SchemaError and
// processes no rows. Row failures never abort the batch.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Template == nil {
		return nil, template.ErrNotFound
	}
	if !req.Template.Active {
		return nil, template.ErrInactive
	}
	if req.Kind == "" {
		req.Kind = render.KindPDF
	}

	start := o.now()
	verdict := validation.Validate(req.Table, req.Template.Placeholders)
	if serr := verdict.SchemaError(); serr != nil {
		metrics.IncBatches("rejected")
		o.record(ctx, &audit.Entry{
			Action:       audit.ActionBulkGeneration,
			TargetType:   "template",
			TargetID:     req.Template.ID,
			Details:      map[string]any{"errors": serr.Errors},
			ErrorMessage: serr.Error(),
			RemoteAddr:   req.Actor.RemoteAddr,
			UserAgent:    req.Actor.UserAgent,
		})
		return nil, serr
	}

	result := &Result{
		BatchID:      uuid.New().String(),
		TemplateID:   req.Template.ID,
		FileType:     req.Kind,
		TotalRecords: req.Table.Len(),
		Documents:    []DocumentEntry{},
		Errors:       []RowError{},
		EmailResults: []EmailResult{},
		StartedAt:    start,
	}

	logger := o.logger.With("batch_id", result.BatchID, "template_id", req.Template.ID)
	logger.Info("batch started", "rows", result.TotalRecords, "file_type", req.Kind, "send_email", req.SendEmail)

	for i, row := range req.Table.Rows {
		if ctx.Err() != nil {
			for _, rest := range req.Table.Rows[i:] {
				result.addError(rest.Index, recipientName(rest), "batch cancelled")
				metrics.IncDocumentsFailed(StageCancelled)
			}
			logger.Warn("batch cancelled", "remaining_rows", len(req.Table.Rows)-i)
			break
		}
		o.processRow(ctx, logger, req, verdict, result, row)
	}

	result.FinishedAt = o.now()

	metrics.IncBatches("completed")
	metrics.ObserveBatch(result.FinishedAt.Sub(start), result.TotalRecords)

	o.record(ctx, &audit.Entry{
		Action:     audit.ActionBulkGeneration,
		TargetType: "batch",
		TargetID:   result.BatchID,
		BatchID:    result.BatchID,
		Details: map[string]any{
			"template_id":   req.Template.ID,
			"template_name": req.Template.Name,
			"file_type":     string(req.Kind),
			"total_records": result.TotalRecords,
			"success_count": result.SuccessCount,
			"failure_count": result.FailureCount,
			"send_email":    req.SendEmail,
		},
		Success:    true,
		RemoteAddr: req.Actor.RemoteAddr,
		UserAgent:  req.Actor.UserAgent,
	})

	if o.results != nil {
		if err := o.results.Save(context.WithoutCancel(ctx), result); err != nil {
			logger.Error("failed to store batch result", "error", err)
		}
	}

	logger.Info("batch finished",
		"success", result.SuccessCount,
		"failed", result.FailureCount,
		"emails", len(result.EmailResults),
		"duration", result.FinishedAt.Sub(start))

	return result, nil
}

// processRow moves one row through its states:
// pending, then failed or rendered, then optionally emailing.
func (o *Orchestrator) processRow(ctx context.Context, logger *slog.Logger, req Request, verdict *validation.Result, result *Result, row tabular.Row) {
	name := recipientName(row)
	email := firstValue(row, emailColumns)

	if !verdict.RowValid(row.Index) {
		result.addError(row.Index, name, strings.Join(verdict.RowErrors[row.Index], "; "))
		metrics.IncDocumentsFailed(StageValidation)
		return
	}

	doc, rendered, err := o.gen.Generate(ctx, Job{
		Template:       req.Template,
		Values:         row.Values,
		Kind:           req.Kind,
		RecipientName:  name,
		RecipientEmail: email,
		BatchID:        result.BatchID,
		RowIndex:       row.Index,
	})
	if err != nil {
		logger.Warn("row failed", "row", row.Index, "recipient", name, "error", err)
		result.addError(row.Index, name, err.Error())
		metrics.IncDocumentsFailed(stageOf(err))
		o.record(ctx, &audit.Entry{
			Action:         audit.ActionDocumentGenerated,
			TargetType:     "document",
			BatchID:        result.BatchID,
			RecipientEmail: email,
			Details:        map[string]any{"row": row.Index, "recipient_name": name},
			ErrorMessage:   err.Error(),
			RemoteAddr:     req.Actor.RemoteAddr,
			UserAgent:      req.Actor.UserAgent,
		})
		return
	}

	result.addDocument(DocumentEntry{
		RecordIndex:    row.Index,
		DocumentID:     doc.ID,
		RecipientName:  name,
		RecipientEmail: email,
		FileName:       doc.FileName,
		FileRef:        doc.ArtifactKey,
	})
	metrics.IncDocumentsGenerated(string(req.Kind), string(req.Template.Category))
	o.record(ctx, &audit.Entry{
		Action:         audit.ActionDocumentGenerated,
		TargetType:     "document",
		TargetID:       doc.ID,
		BatchID:        result.BatchID,
		RecipientEmail: email,
		Details:        map[string]any{"row": row.Index, "file_type": doc.FileType, "size": doc.Size},
		Success:        true,
		RemoteAddr:     req.Actor.RemoteAddr,
		UserAgent:      req.Actor.UserAgent,
	})

	if !req.SendEmail || email == "" {
		return
	}

	er := o.deliver(ctx, doc, rendered, req.SenderName, req.Actor)
	er.RecordIndex = row.Index
	result.EmailResults = append(result.EmailResults, er)
}

// deliver mails a generated document and records the outcome on it.
// Delivery failures never change generation success.
func (o *Orchestrator) deliver(ctx context.Context, doc *document.Document, rendered *render.Document, senderName string, actor Actor) EmailResult {
	er := EmailResult{RecipientEmail: doc.RecipientEmail}

	receipt, err := o.dispatcher.Send(ctx, notify.Notification{
		To:            doc.RecipientEmail,
		RecipientName: doc.RecipientName,
		Document:      rendered,
		TemplateName:  doc.TemplateName,
		SenderName:    senderName,
	})
	if err != nil {
		er.Error = err.Error()
		doc.EmailError = er.Error
		metrics.IncEmailsFailed(notify.ErrorType(err))
		o.logger.Warn("email failed", "document_id", doc.ID, "to", doc.RecipientEmail, "error", err)
	} else {
		sentAt := o.now()
		er.Success = true
		er.MessageID = receipt.MessageID
		doc.Status = document.StatusSent
		doc.EmailSent = true
		doc.EmailSentAt = &sentAt
		doc.EmailMessageID = receipt.MessageID
		doc.EmailError = ""
		metrics.IncEmailsSent()
	}

	if err := o.gen.documents.Update(context.WithoutCancel(ctx), doc); err != nil {
		o.logger.Error("failed to update document after email", "document_id", doc.ID, "error", err)
	}

	o.record(ctx, &audit.Entry{
		Action:         audit.ActionDocumentSent,
		TargetType:     "document",
		TargetID:       doc.ID,
		BatchID:        doc.BatchID,
		RecipientEmail: doc.RecipientEmail,
		Details:        map[string]any{"message_id": er.MessageID},
		Success:        er.Success,
		ErrorMessage:   er.Error,
		RemoteAddr:     actor.RemoteAddr,
		UserAgent:      actor.UserAgent,
	})

	return er
}

func (o *Orchestrator) record(ctx context.Context, entry *audit.Entry) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.Error("failed to record audit entry", "action", entry.Action, "error", err)
	}
}

// recipientName picks the first non-empty name column, falling back to
// Recipient_<index>
func recipientName(row tabular.Row) string {
	if name := firstValue(row, nameColumns); name != "" {
		return name
	}
	return fmt.Sprintf("Recipient_%d", row.Index)
}

func firstValue(row tabular.Row, columns []string) string {
	for _, c := range columns {
		if v := strings.TrimSpace(row.Get(c)); v != "" {
			return v
		}
	}
	return ""
}

func stageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageRender
}
