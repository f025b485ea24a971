// Package validation checks parsed tables against a template's declared
// placeholder schema.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/foxzi/docforge/internal/tabular"
	"github.com/foxzi/docforge/internal/template"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// DateLayouts lists the date formats tried before falling back to
// dateparse. Month-first wins for ambiguous numeric dates, and the
// two-digit-year dash form is how spreadsheets display dates by default.
var DateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-1-2",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006",
	"1-2-2006",
	"1-2-06",
	"1/2/06",
	"2006/1/2",
	"02-Jan-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// Result is the verdict for a whole table
type Result struct {
	IsValid          bool             `json:"isValid"`
	Errors           []string         `json:"errors"`
	ValidRowCount    int              `json:"validRowCount"`
	AvailableColumns []string         `json:"availableColumns"`
	Fatal            bool             `json:"-"`
	RowErrors        map[int][]string `json:"-"`
}

// RowValid reports whether the row with the given index passed every check
func (r *Result) RowValid(index int) bool {
	return len(r.RowErrors[index]) == 0
}

// SchemaError returns the batch-level rejection, or nil if the batch may proceed
func (r *Result) SchemaError() *SchemaError {
	if !r.Fatal {
		return nil
	}
	return &SchemaError{Errors: r.Errors, AvailableColumns: r.AvailableColumns}
}

// SchemaError rejects input before any row is processed
type SchemaError struct {
	Errors           []string
	AvailableColumns []string
	Missing          []string
}

func (e *SchemaError) Error() string {
	return "data validation failed: " + strings.Join(e.Errors, "; ")
}

// Validate checks the table against the schema. Batch-level failures are
// fatal and skip row checks; row failures only mark the affected rows.
func Validate(table *tabular.Table, schema []template.Placeholder) *Result {
	result := &Result{
		Errors:    []string{},
		RowErrors: make(map[int][]string),
	}
	if table != nil {
		result.AvailableColumns = append([]string{}, table.Columns...)
	}

	if table.Len() == 0 {
		result.Errors = append(result.Errors, "No data found in file")
		result.Fatal = true
		return result
	}

	var missing []string
	for _, p := range schema {
		if p.Required && !table.HasColumn(p.Name) {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		result.Errors = append(result.Errors, "Missing required columns: "+strings.Join(missing, ", "))
		result.Fatal = true
		return result
	}

	for _, row := range table.Rows {
		msgs := checkValues(row.Values, schema)
		if len(msgs) == 0 {
			result.ValidRowCount++
			continue
		}
		prefixed := make([]string, len(msgs))
		for i, m := range msgs {
			prefixed[i] = fmt.Sprintf("Row %d: %s", row.Index, m)
		}
		result.RowErrors[row.Index] = prefixed
		result.Errors = append(result.Errors, prefixed...)
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// ValidateValues runs the row checks against a single set of values
func ValidateValues(values map[string]string, schema []template.Placeholder) []string {
	resolved := make(map[string]string, len(schema))
	for _, p := range schema {
		if v, ok := template.Lookup(values, p.Name); ok {
			resolved[p.Name] = v
		}
	}
	return checkValues(resolved, schema)
}

func checkValues(values map[string]string, schema []template.Placeholder) []string {
	var msgs []string

	for _, p := range schema {
		if p.Required && strings.TrimSpace(values[p.Name]) == "" {
			msgs = append(msgs, fmt.Sprintf("Missing value for required field '%s'", p.Name))
		}
	}

	for _, kind := range []template.ValueType{template.TypeEmail, template.TypeDate, template.TypeNumber} {
		for _, p := range schema {
			if p.ValueType() != kind {
				continue
			}
			v := strings.TrimSpace(values[p.Name])
			if v == "" {
				continue
			}
			if !validValue(kind, v) {
				msgs = append(msgs, fmt.Sprintf("Invalid %s format for '%s': %s", kind, p.Name, v))
			}
		}
	}

	return msgs
}

func validValue(kind template.ValueType, v string) bool {
	switch kind {
	case template.TypeEmail:
		return IsEmail(v)
	case template.TypeDate:
		_, ok := ParseDate(v)
		return ok
	case template.TypeNumber:
		return IsNumber(v)
	}
	return true
}

// IsNumber reports whether v is a finite decimal number
func IsNumber(v string) bool {
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsEmail reports whether v looks like an email address
func IsEmail(v string) bool {
	return emailPattern.MatchString(v)
}

// ParseDate parses v with the first matching layout, then lets dateparse
// recognise anything else
func ParseDate(v string) (time.Time, bool) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	if t, err := dateparse.ParseIn(v, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}
