package tabular

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfname, email ,role\n" +
		"Alice,alice@example.com,Engineer\n" +
		"\n" +
		",,\n" +
		"Bob\n")

	table, err := Parse(data, FormatCSV)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantCols := []string{"name", "email", "role"}
	if strings.Join(table.Columns, ",") != strings.Join(wantCols, ",") {
		t.Errorf("Columns = %v, want %v", table.Columns, wantCols)
	}
	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}

	// A row of delimiters is data, only empty lines are skipped
	delimiters := table.Rows[1]
	if delimiters.Index != 2 || delimiters.Get("name") != "" || len(delimiters.Values) != 3 {
		t.Errorf("delimiter row = %+v, want index 2 with empty values", delimiters)
	}

	bob := table.Rows[2]
	if bob.Index != 3 {
		t.Errorf("Bob index = %d, want 3", bob.Index)
	}
	if bob.Get("name") != "Bob" {
		t.Errorf("Bob name = %q", bob.Get("name"))
	}
	if v, ok := bob.Values["email"]; !ok || v != "" {
		t.Errorf("short row should carry empty email, got %q (present=%v)", v, ok)
	}
	if !table.HasColumn("role") || table.HasColumn("Role") {
		t.Error("HasColumn() should match declared header exactly")
	}
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	table, err := Parse([]byte("name,email\n"), FormatCSV)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
	if !table.HasColumn("email") {
		t.Error("header-only file should still declare columns")
	}
}

func TestParseCSV_DuplicateAndEmptyHeaders(t *testing.T) {
	table, err := Parse([]byte("name,,name\nA,B,C\n"), FormatCSV)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []string{"name", "column_2"}
	if strings.Join(table.Columns, ",") != strings.Join(want, ",") {
		t.Errorf("Columns = %v, want %v", table.Columns, want)
	}
	if table.Rows[0].Get("name") != "A" {
		t.Errorf("first duplicate should win, got %q", table.Rows[0].Get("name"))
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"only blank lines", "\n\n"},
		{"malformed quote", "name\n\"unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), FormatCSV)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Parse() error = %v, want *ParseError", err)
			}
			if !strings.HasPrefix(err.Error(), "failed to parse file") {
				t.Errorf("error = %q", err)
			}
		})
	}
}

func buildWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("CoordinatesToCellName() error = %v", err)
			}
			if err := f.SetCellStr("Sheet1", cell, v); err != nil {
				t.Fatalf("SetCellStr() error = %v", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	return buf.Bytes()
}

func TestParseSpreadsheet(t *testing.T) {
	data := buildWorkbook(t, [][]string{
		{"name", "email"},
		{"Alice", "alice@example.com"},
		{"Bob", ""},
	})

	table, err := Parse(data, FormatXLSX)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	if table.Rows[0].Get("email") != "alice@example.com" {
		t.Errorf("email = %q", table.Rows[0].Get("email"))
	}
	if table.Rows[1].Get("email") != "" {
		t.Errorf("Bob email = %q, want empty", table.Rows[1].Get("email"))
	}
}

func TestParseSpreadsheet_DateCells(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	cells := []struct {
		cell  string
		value any
	}{
		{"A1", "name"}, {"B1", "joined"}, {"C1", "score"},
		{"A2", "Alice"}, {"B2", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}, {"C2", 12.5},
		{"A3", "Bob"}, {"B3", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}, {"C3", 7},
		{"A4", "Carol"}, {"B4", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}, {"C4", 3},
	}
	for _, c := range cells {
		if err := f.SetCellValue("Sheet1", c.cell, c.value); err != nil {
			t.Fatalf("SetCellValue(%s) error = %v", c.cell, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	table, err := Parse(buf.Bytes(), FormatXLSX)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name   string
		joined string
		score  string
	}{
		{"Alice", "2024-01-15", "12.5"},
		{"Bob", "2024-02-01", "7"},
		{"Carol", "2024-01-15 10:30:00", "3"},
	}
	if table.Len() != len(tests) {
		t.Fatalf("Len() = %d, want %d", table.Len(), len(tests))
	}
	for i, tt := range tests {
		row := table.Rows[i]
		if row.Get("name") != tt.name {
			t.Errorf("row %d name = %q, want %q", i, row.Get("name"), tt.name)
		}
		if row.Get("joined") != tt.joined {
			t.Errorf("%s joined = %q, want %q", tt.name, row.Get("joined"), tt.joined)
		}
		if row.Get("score") != tt.score {
			t.Errorf("%s score = %q, want %q", tt.name, row.Get("score"), tt.score)
		}
	}
}

func TestIsDateFormat(t *testing.T) {
	custom := func(code string) *string { return &code }

	tests := []struct {
		name  string
		style excelize.Style
		want  bool
	}{
		{"general", excelize.Style{NumFmt: 0}, false},
		{"mm-dd-yy", excelize.Style{NumFmt: 14}, true},
		{"m/d/yy h:mm", excelize.Style{NumFmt: 22}, true},
		{"time only", excelize.Style{NumFmt: 20}, false},
		{"custom iso", excelize.Style{CustomNumFmt: custom("yyyy-mm-dd")}, true},
		{"custom quoted day", excelize.Style{CustomNumFmt: custom(`0.00 "days"`)}, false},
		{"custom currency", excelize.Style{CustomNumFmt: custom("[$USD-409] #,##0.00")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDateFormat(&tt.style); got != tt.want {
				t.Errorf("isDateFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSpreadsheet_Empty(t *testing.T) {
	data := buildWorkbook(t, nil)

	_, err := Parse(data, FormatXLSX)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if !strings.Contains(err.Error(), "Excel file is empty") {
		t.Errorf("error = %q", err)
	}
}

func TestParseSpreadsheet_Corrupt(t *testing.T) {
	_, err := Parse([]byte("not a workbook"), FormatXLSX)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
}

func TestParseCSV_DelimiterOnlyRows(t *testing.T) {
	table, err := Parse([]byte("name,email\n,\n,\n"), FormatCSV)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
}

func TestParseSpreadsheet_DropsEmptyRows(t *testing.T) {
	data := buildWorkbook(t, [][]string{
		{"name", "email"},
		{"", ""},
		{"Alice", "alice@example.com"},
	})

	table, err := Parse(data, FormatXLSX)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Len() != 1 || table.Rows[0].Index != 1 {
		t.Fatalf("Rows = %+v, want only Alice at index 1", table.Rows)
	}
}

// testdata/recipients.xls is written by testdata/gen_recipients_xls.py
func TestParseLegacySpreadsheet(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "recipients.xls"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	table, err := Parse(data, FormatXLS)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []string{"name", "email", "age"}
	if strings.Join(table.Columns, ",") != strings.Join(want, ",") {
		t.Errorf("Columns = %v, want %v", table.Columns, want)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}

	tests := []struct {
		index int
		name  string
		email string
		age   string
	}{
		{1, "Alice", "alice@example.com", "42"},
		{2, "Zoë", "zoe@example.com", "36.5"},
	}
	for i, tt := range tests {
		row := table.Rows[i]
		if row.Index != tt.index {
			t.Errorf("row %d index = %d, want %d", i, row.Index, tt.index)
		}
		if row.Get("name") != tt.name || row.Get("email") != tt.email || row.Get("age") != tt.age {
			t.Errorf("row %d = %v, want %s/%s/%s", i, row.Values, tt.name, tt.email, tt.age)
		}
	}
}

func TestParseLegacySpreadsheet_Corrupt(t *testing.T) {
	valid, err := os.ReadFile(filepath.Join("testdata", "recipients.xls"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	// Point the workbook chain past the end of the file
	broken := append([]byte(nil), valid...)
	copy(broken[512+4*4:], []byte{0x40, 0x00, 0x00, 0x00})

	tests := []struct {
		name string
		data []byte
	}{
		{"not a compound file", []byte("not a workbook")},
		{"xlsx bytes", buildWorkbook(t, [][]string{{"name"}})},
		{"broken sector chain", broken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data, FormatXLS)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Parse() error = %v, want *ParseError", err)
			}
		})
	}
}

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"people.csv", FormatCSV, false},
		{"People.XLSX", FormatXLSX, false},
		{"legacy.xls", FormatXLS, false},
		{"notes.txt", "", true},
		{"noext", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFromFilename(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FormatFromFilename() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FormatFromFilename() = %q, want %q", got, tt.want)
			}
		})
	}
}
