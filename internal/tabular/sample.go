package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/foxzi/docforge/internal/template"
)

const sampleSheet = "Data"

// SampleValue returns an example cell value for a placeholder
func SampleValue(p template.Placeholder) string {
	switch p.Type {
	case template.TypeEmail:
		return "example@company.com"
	case template.TypeDate:
		return "2024-01-01"
	case template.TypeNumber:
		return "123"
	default:
		if p.Example != "" {
			return p.Example
		}
		return "Sample " + p.Name
	}
}

// SampleCSV builds a header plus one example row for the placeholders
func SampleCSV(placeholders []template.Placeholder) ([]byte, error) {
	header := make([]string, len(placeholders))
	row := make([]string, len(placeholders))
	for i, p := range placeholders {
		header[i] = p.Name
		row[i] = SampleValue(p)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll([][]string{header, row}); err != nil {
		return nil, fmt.Errorf("failed to write sample CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// SampleXLSX builds a single-sheet workbook with the same content as SampleCSV
func SampleXLSX(placeholders []template.Placeholder) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sampleSheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	for i, p := range placeholders {
		headerCell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		valueCell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sampleSheet, headerCell, p.Name); err != nil {
			return nil, err
		}
		if err := f.SetCellStr(sampleSheet, valueCell, SampleValue(p)); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write sample workbook: %w", err)
	}
	return buf.Bytes(), nil
}
