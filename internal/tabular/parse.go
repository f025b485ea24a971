package tabular

import (
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/richardlehane/mscfb"
	"github.com/xuri/excelize/v2"
)

// Parse converts file contents into a Table
func Parse(data []byte, format Format) (*Table, error) {
	switch format {
	case FormatCSV:
		return parseCSV(data)
	case FormatXLSX:
		return parseSpreadsheet(data)
	case FormatXLS:
		return parseLegacySpreadsheet(data)
	default:
		return nil, &ParseError{Cause: "unsupported format " + string(format)}
	}
}

// ParseReader reads r fully and parses it
func ParseReader(r io.Reader, format Format) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Cause: "failed to read file", Err: err}
	}
	return Parse(data, format)
}

func parseCSV(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Cause: "malformed CSV", Err: err}
		}
		// Skip blank lines before the header as well as after it
		if len(records) == 0 && isBlank(rec) {
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, &ParseError{Cause: "CSV file has no header row"}
	}

	return buildTable(records, false), nil
}

func parseSpreadsheet(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Cause: "failed to open Excel file", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Cause: "Excel file is empty"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Cause: "failed to read sheet " + sheets[0], Err: err}
	}
	if err := normalizeDates(f, sheets[0], rows); err != nil {
		return nil, &ParseError{Cause: "failed to read sheet " + sheets[0], Err: err}
	}

	return spreadsheetTable(rows)
}

// normalizeDates replaces the display text of date-formatted cells with an
// ISO date so that "mm-dd-yy" or "mmm-yy" displays keep their full value.
func normalizeDates(f *excelize.File, sheet string, rows [][]string) error {
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return err
	}
	props, err := f.GetWorkbookProps()
	if err != nil {
		return err
	}
	date1904 := props.Date1904 != nil && *props.Date1904

	dateStyles := make(map[int]bool)
	for r := range rows {
		if r >= len(raw) {
			break
		}
		for c, shown := range rows[r] {
			if c >= len(raw[r]) || raw[r][c] == shown {
				continue
			}
			serial, err := strconv.ParseFloat(raw[r][c], 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			styleID, err := f.GetCellStyle(sheet, cell)
			if err != nil {
				return err
			}
			isDate, ok := dateStyles[styleID]
			if !ok {
				style, err := f.GetStyle(styleID)
				if err != nil {
					return err
				}
				isDate = isDateFormat(style)
				dateStyles[styleID] = isDate
			}
			if !isDate {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, date1904)
			if err != nil {
				continue
			}
			rows[r][c] = formatCellDate(t)
		}
	}
	return nil
}

func formatCellDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

// isDateFormat reports whether a style displays a calendar date. Time-only
// formats keep their display text.
func isDateFormat(style *excelize.Style) bool {
	if style.CustomNumFmt != nil {
		code := stripLiterals(*style.CustomNumFmt)
		return strings.ContainsAny(code, "yYdD")
	}
	switch n := style.NumFmt; {
	case n >= 14 && n <= 17, n == 22, n >= 27 && n <= 36, n >= 50 && n <= 58:
		return true
	}
	return false
}

// stripLiterals drops quoted text, escaped characters and bracketed
// sections such as colours or currency tags from a number format code
func stripLiterals(code string) string {
	var b strings.Builder
	quoted, bracket := false, false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case quoted:
			quoted = ch != '"'
		case bracket:
			bracket = ch != ']'
		case ch == '"':
			quoted = true
		case ch == '[':
			bracket = true
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func spreadsheetTable(rows [][]string) (*Table, error) {
	// Leading empty rows are not a header
	for len(rows) > 0 && isBlank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, &ParseError{Cause: "Excel file is empty"}
	}
	return buildTable(rows, true), nil
}

const (
	cfbSectorShift = 9
	cfbSectorSize  = 1 << cfbSectorShift
	fatEntrySize   = 4
	workbookStream = "Workbook"
	biff5Stream    = "Book"
)

// parseLegacySpreadsheet reads a BIFF (.xls) workbook. The compound file is
// checked with mscfb first since the BIFF reader aborts the process on
// sector chains it cannot follow.
func parseLegacySpreadsheet(data []byte) (*Table, error) {
	if err := checkCompoundFile(data); err != nil {
		return nil, &ParseError{Cause: "failed to open Excel file", Err: err}
	}

	rows, err := readLegacyRows(data)
	if err != nil {
		return nil, &ParseError{Cause: "failed to open Excel file", Err: err}
	}
	return spreadsheetTable(rows)
}

func checkCompoundFile(data []byte) error {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return err
	}

	// The BIFF reader only knows 512-byte sectors and trusts the header
	// FAT count to cover every sector in the file.
	if binary.LittleEndian.Uint16(data[30:32]) != cfbSectorShift {
		return errors.New("unsupported sector size")
	}
	fats := uint64(binary.LittleEndian.Uint32(data[44:48]))
	sectors := uint64(len(data)-1) / cfbSectorSize
	if fats*cfbSectorSize/fatEntrySize < sectors {
		return errors.New("sector allocation table does not cover the file")
	}

	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Name != workbookStream && entry.Name != biff5Stream {
			continue
		}
		// Reading the whole stream walks its sector chain
		if _, err := io.Copy(io.Discard, entry); err != nil {
			return fmt.Errorf("workbook stream: %w", err)
		}
		return nil
	}
	return errors.New("no workbook stream")
}

func readLegacyRows(data []byte) (rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, nil
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, nil
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := legacyRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		rec := make([]string, row.LastCol())
		for c := range rec {
			rec[c] = row.Col(c)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// legacyRow returns nil for rows the sheet does not store
func legacyRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
