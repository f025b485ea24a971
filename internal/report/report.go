// Package report exports batch results and the audit trail as CSV or XLSX.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/batch"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a format name, defaulting to CSV
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported report format %q", s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

var batchHeader = []string{"row", "recipient_name", "recipient_email", "status", "document_id", "file_name", "error", "email_status"}

// BatchRecords flattens a result into one record per row, in row order
func BatchRecords(r *batch.Result) [][]string {
	type line struct {
		index  int
		record []string
	}
	lines := make([]line, 0, r.TotalRecords)

	for _, d := range r.Documents {
		emailStatus := ""
		if er, ok := r.EmailFor(d.RecordIndex); ok {
			if er.Success {
				emailStatus = "sent"
			} else {
				emailStatus = "failed: " + er.Error
			}
		}
		lines = append(lines, line{d.RecordIndex, []string{
			strconv.Itoa(d.RecordIndex), d.RecipientName, d.RecipientEmail,
			"generated", d.DocumentID, d.FileName, "", emailStatus,
		}})
	}
	for _, e := range r.Errors {
		lines = append(lines, line{e.RecordIndex, []string{
			strconv.Itoa(e.RecordIndex), e.RecipientName, "",
			"failed", "", "", e.ErrorMessage, "",
		}})
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].index < lines[j].index })

	records := make([][]string, len(lines))
	for i, l := range lines {
		records[i] = l.record
	}
	return records
}

// Batch writes the per-row report of a batch
func Batch(r *batch.Result, format Format) ([]byte, error) {
	records := BatchRecords(r)
	if format == FormatXLSX {
		return writeXLSX("Batch", batchHeader, records)
	}
	return writeCSV(batchHeader, records)
}

// BatchCSV writes the batch report as CSV
func BatchCSV(r *batch.Result) ([]byte, error) {
	return Batch(r, FormatCSV)
}

// BatchXLSX writes the batch report as a workbook
func BatchXLSX(r *batch.Result) ([]byte, error) {
	return Batch(r, FormatXLSX)
}

var auditHeader = []string{"id", "created_at", "action", "target_type", "target_id", "batch_id", "recipient_email", "success", "error_message", "remote_addr", "user_agent"}

// AuditRecords flattens audit entries in the given order
func AuditRecords(entries []*audit.Entry) [][]string {
	records := make([][]string, 0, len(entries))
	for _, e := range entries {
		records = append(records, []string{
			e.ID,
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Action),
			e.TargetType,
			e.TargetID,
			e.BatchID,
			e.RecipientEmail,
			strconv.FormatBool(e.Success),
			e.ErrorMessage,
			e.RemoteAddr,
			e.UserAgent,
		})
	}
	return records
}

// Audit writes audit entries
func Audit(entries []*audit.Entry, format Format) ([]byte, error) {
	records := AuditRecords(entries)
	if format == FormatXLSX {
		return writeXLSX("Audit", auditHeader, records)
	}
	return writeCSV(auditHeader, records)
}

// AuditCSV writes audit entries as CSV
func AuditCSV(entries []*audit.Entry) ([]byte, error) {
	return Audit(entries, FormatCSV)
}

// AuditXLSX writes audit entries as a workbook
func AuditXLSX(entries []*audit.Entry) ([]byte, error) {
	return Audit(entries, FormatXLSX)
}

func writeCSV(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	return buf.Bytes(), nil
}

func writeXLSX(sheet string, header []string, records [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return nil, err
	}

	for i, rec := range records {
		for col, v := range rec {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellStr(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
