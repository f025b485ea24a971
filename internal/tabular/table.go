// Package tabular parses uploaded CSV and spreadsheet files into tables
// with a header-declared column set.
package tabular

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is an input file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// FormatFromFilename resolves the format from a file extension
func FormatFromFilename(name string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch Format(ext) {
	case FormatCSV, FormatXLSX, FormatXLS:
		return Format(ext), nil
	}
	return "", &ParseError{Cause: fmt.Sprintf("unsupported file type %q (only CSV and Excel files are allowed)", filepath.Ext(name))}
}

// Row is a single data row. Index is 1-based and counts data rows only.
type Row struct {
	Index  int
	Values map[string]string
}

// Get returns the value for a column, or empty string if absent
func (r Row) Get(column string) string {
	return r.Values[column]
}

// Table is a parsed dataset. Columns are declared by the header row
// and do not depend on which cells a particular row carries.
type Table struct {
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the header declared the column
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Len returns the number of data rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ParseError is returned when an input file cannot be turned into a table
type ParseError struct {
	Cause string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse file: %s: %v", e.Cause, e.Err)
	}
	return fmt.Sprintf("failed to parse file: %s", e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// buildTable turns raw records into a Table. The first record is the header.
// With dropBlank set, rows whose every cell is empty are left out; CSV keeps
// them because only truly empty lines are blank there.
func buildTable(records [][]string, dropBlank bool) *Table {
	header := records[0]
	columns := make([]string, 0, len(header))
	positions := make([]int, 0, len(header))
	seen := make(map[string]bool, len(header))

	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		columns = append(columns, name)
		positions = append(positions, i)
	}

	table := &Table{Columns: columns}
	for _, rec := range records[1:] {
		if dropBlank && isBlank(rec) {
			continue
		}
		values := make(map[string]string, len(columns))
		for j, col := range columns {
			pos := positions[j]
			if pos < len(rec) {
				values[col] = strings.TrimSpace(rec[pos])
			} else {
				values[col] = ""
			}
		}
		table.Rows = append(table.Rows, Row{
			Index:  len(table.Rows) + 1,
			Values: values,
		})
	}

	return table
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
