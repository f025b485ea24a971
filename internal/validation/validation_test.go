package validation

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/foxzi/docforge/internal/tabular"
	"github.com/foxzi/docforge/internal/template"
)

func mustParse(t *testing.T, data string) *tabular.Table {
	t.Helper()
	table, err := tabular.Parse([]byte(data), tabular.FormatCSV)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return table
}

var letterSchema = []template.Placeholder{
	{Name: "name", Required: true},
	{Name: "email", Type: template.TypeEmail, Required: true},
	{Name: "start", Type: template.TypeDate},
	{Name: "salary", Type: template.TypeNumber},
}

func TestValidate_MissingRequiredColumn(t *testing.T) {
	table := mustParse(t, "name,start\nAlice,2024-01-01\n")

	result := Validate(table, letterSchema)
	if result.IsValid {
		t.Fatal("IsValid = true, want false")
	}
	if !result.Fatal {
		t.Error("missing column should be fatal")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "email") {
		t.Errorf("Errors = %v, want message naming email", result.Errors)
	}
	if len(result.RowErrors) != 0 {
		t.Error("row checks should not run after a fatal error")
	}
	if result.SchemaError() == nil {
		t.Error("SchemaError() = nil, want error")
	}
}

func TestValidate_NoRows(t *testing.T) {
	result := Validate(mustParse(t, "name,email\n"), letterSchema)
	if !result.Fatal || result.Errors[0] != "No data found in file" {
		t.Errorf("result = %+v", result)
	}
	if got := result.AvailableColumns; !reflect.DeepEqual(got, []string{"name", "email"}) {
		t.Errorf("AvailableColumns = %v", got)
	}
}

func TestValidate_EmptyName(t *testing.T) {
	table := mustParse(t, "name,email\nAlice,a@x.com\n,bob@x.com\n")
	schema := []template.Placeholder{
		{Name: "name", Required: true},
		{Name: "email", Type: template.TypeEmail},
	}

	result := Validate(table, schema)

	want := []string{"Row 2: Missing value for required field 'name'"}
	if !reflect.DeepEqual(result.Errors, want) {
		t.Errorf("Errors = %v, want %v", result.Errors, want)
	}
	if result.IsValid {
		t.Error("IsValid = true, want false")
	}
	if result.Fatal {
		t.Error("Fatal = true, want false")
	}
	if result.ValidRowCount != 1 {
		t.Errorf("ValidRowCount = %d, want 1", result.ValidRowCount)
	}
	if !result.RowValid(1) || result.RowValid(2) {
		t.Errorf("RowErrors = %v", result.RowErrors)
	}
	if result.SchemaError() != nil {
		t.Error("row failures should not produce a SchemaError")
	}
}

func TestValidate_MessageOrder(t *testing.T) {
	table := mustParse(t, "name,email,start,salary\n,not-an-email,someday,lots\n")

	result := Validate(table, letterSchema)

	want := []string{
		"Row 1: Missing value for required field 'name'",
		"Row 1: Invalid email format for 'email': not-an-email",
		"Row 1: Invalid date format for 'start': someday",
		"Row 1: Invalid number format for 'salary': lots",
	}
	if !reflect.DeepEqual(result.Errors, want) {
		t.Errorf("Errors = %v\nwant %v", result.Errors, want)
	}
}

func TestValidate_AcceptedValues(t *testing.T) {
	dates := []string{
		"2024-03-01",
		"03/01/2024",
		"2024/03/01",
		"01-Mar-2024",
		"March 1, 2024",
		"Mar 1, 2024",
		"2024-03-01 09:30:00",
		"2024-03-01T09:30:00Z",
		"01-15-24",
		"1/5/2024",
		"2024-1-5",
		"Jan 15 2024",
		"15 January 2024",
		"2024-01-15T10:00:00",
		"2009-08-08T2:8:8",
	}

	for _, d := range dates {
		t.Run(d, func(t *testing.T) {
			table := &tabular.Table{
				Columns: []string{"name", "email", "start", "salary"},
				Rows: []tabular.Row{{Index: 1, Values: map[string]string{
					"name": "Alice", "email": "alice@example.com", "start": d, "salary": " 1200.50 ",
				}}},
			}
			result := Validate(table, letterSchema)
			if !result.IsValid {
				t.Errorf("Errors = %v", result.Errors)
			}
		})
	}
}

func TestValidate_RejectedValues(t *testing.T) {
	tests := []struct {
		name   string
		start  string
		salary string
		want   string
	}{
		{"nan salary", "2024-03-01", "NaN", "Invalid number format for 'salary': NaN"},
		{"infinite salary", "2024-03-01", "+Inf", "Invalid number format for 'salary': +Inf"},
		{"overflowing salary", "2024-03-01", "1e400", "Invalid number format for 'salary': 1e400"},
		{"word salary", "2024-03-01", "lots", "Invalid number format for 'salary': lots"},
		{"impossible month", "2024-13-45", "1", "Invalid date format for 'start': 2024-13-45"},
		{"word date", "someday", "1", "Invalid date format for 'start': someday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := &tabular.Table{
				Columns: []string{"name", "email", "start", "salary"},
				Rows: []tabular.Row{{Index: 1, Values: map[string]string{
					"name": "Alice", "email": "alice@example.com", "start": tt.start, "salary": tt.salary,
				}}},
			}
			result := Validate(table, letterSchema)
			if result.IsValid {
				t.Fatal("IsValid = true, want false")
			}
			if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], tt.want) {
				t.Errorf("Errors = %v, want one containing %q", result.Errors, tt.want)
			}
		})
	}
}

func TestValidate_SpreadsheetDateCells(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{"name", "email", "start", "salary"},
		{"Alice", "alice@example.com", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 1200.5},
		{"Bob", "bob@example.com", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 900},
		{"Carol", "carol@example.com", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), 950},
	}
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName() error = %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	table, err := tabular.Parse(buf.Bytes(), tabular.FormatXLSX)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	result := Validate(table, letterSchema)
	if !result.IsValid {
		t.Errorf("Errors = %v", result.Errors)
	}
	if result.ValidRowCount != 3 {
		t.Errorf("ValidRowCount = %d, want 3", result.ValidRowCount)
	}
}

func TestValidateValues(t *testing.T) {
	msgs := ValidateValues(map[string]string{"Name": "Alice", "email": "bad"}, letterSchema)
	want := []string{"Invalid email format for 'email': bad"}
	if !reflect.DeepEqual(msgs, want) {
		t.Errorf("ValidateValues() = %v, want %v", msgs, want)
	}
}

func TestIsEmail(t *testing.T) {
	tests := map[string]bool{
		"a@b.co":           true,
		"first.last@x.org": true,
		"no-at.example":    false,
		"a@b":              false,
		"a b@c.com":        false,
	}
	for in, want := range tests {
		if got := IsEmail(in); got != want {
			t.Errorf("IsEmail(%q) = %v, want %v", in, got, want)
		}
	}
}
