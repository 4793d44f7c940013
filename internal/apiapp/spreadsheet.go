package apiapp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/phillip-england/caresuite/internal/attendance"
	"github.com/phillip-england/caresuite/internal/clocktime"
	"github.com/xuri/excelize/v2"
)

const (
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportSheetName   = "Attendance"
	maxImportFileSize = 10 << 20
)

var exportHeaders = []any{"Staff", "Date", "Time In", "Time Out", "Hours", "Status", "Note"}

type importSkip struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type importColumns struct {
	staff, date, timeIn, timeOut, note int
}

func (s *server) exportAttendance(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAttendanceFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.store.listAttendance(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unable to load attendance")
		return
	}
	data, err := buildAttendanceWorkbook(records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unable to build spreadsheet")
		return
	}

	name := "attendance.xlsx"
	if filter.Date != "" {
		name = "attendance-" + filter.Date + ".xlsx"
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func buildAttendanceWorkbook(records []attendance.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheetName); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(exportSheetName, "A1", &exportHeaders); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(exportSheetName, 1, 1, bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheetName, "A", "A", 28); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheetName, "G", "G", 40); err != nil {
		return nil, err
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		status := attendance.StatusPending
		if rec.Approved() {
			status = attendance.StatusApproved
		}
		hours := ""
		if d := rec.Duration(); d > 0 {
			hours = strconv.FormatFloat(math.Round(d.Hours()*100)/100, 'f', 2, 64)
		}
		row := []any{
			rec.StaffName,
			rec.ShiftDate.Format(attendance.DateLayout),
			clocktime.Format(rec.ClockIn),
			clocktime.Format(rec.ClockOut),
			hours,
			status,
			rec.Note,
		}
		if err := f.SetSheetRow(exportSheetName, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *server) importAttendance(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportFileSize+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "attendance spreadsheet is required")
		return
	}
	defer file.Close()

	rows, err := readRowsFromSpreadsheet(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, skipped, err := parseAttendanceRows(rows)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	imported := 0
	for _, entry := range entries {
		if err := withSQLiteRetry(func() error {
			_, err := s.store.createAttendance(r.Context(), entry.NewEntry)
			return err
		}); err != nil {
			writeError(w, http.StatusInternalServerError, "unable to persist attendance: "+err.Error())
			return
		}
		imported++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "attendance imported",
		"imported": imported,
		"skipped":  skipped,
	})
}

type importedEntry struct {
	attendance.NewEntry
	Row int
}

// parseAttendanceRows reads a header row and the shifts below it. Typed times
// pass through the same normalizer and validator as the editors, so a cell is
// accepted exactly when a manager could have typed it.
func parseAttendanceRows(rows [][]string) ([]importedEntry, []importSkip, error) {
	if len(rows) == 0 {
		return nil, nil, errors.New("worksheet is empty")
	}
	cols, err := findImportColumns(rows[0])
	if err != nil {
		return nil, nil, err
	}

	entries := make([]importedEntry, 0, len(rows)-1)
	skipped := make([]importSkip, 0)
	for i, row := range rows[1:] {
		rowNumber := i + 2
		if rowIsBlank(row) {
			continue
		}
		staff := cellValue(row, cols.staff)
		if staff == "" {
			skipped = append(skipped, importSkip{Row: rowNumber, Reason: attendance.ErrStaffRequired.Error()})
			continue
		}
		shiftDate, ok := parseSheetDate(cellValue(row, cols.date))
		if !ok {
			skipped = append(skipped, importSkip{Row: rowNumber, Reason: "date must be a calendar date"})
			continue
		}
		clockIn, err := parseSheetTime(cellValue(row, cols.timeIn))
		if err != nil {
			skipped = append(skipped, importSkip{Row: rowNumber, Reason: "time in: " + err.Error()})
			continue
		}
		clockOut, err := parseSheetTime(cellValue(row, cols.timeOut))
		if err != nil {
			skipped = append(skipped, importSkip{Row: rowNumber, Reason: "time out: " + err.Error()})
			continue
		}
		entry, err := attendance.BuildEntry(staff, shiftDate, clockIn, clockOut, cellValue(row, cols.note))
		if err != nil {
			skipped = append(skipped, importSkip{Row: rowNumber, Reason: err.Error()})
			continue
		}
		if err := validateShiftTimes(entry.ClockIn, entry.ClockOut); err != nil {
			skipped = append(skipped, importSkip{Row: rowNumber, Reason: err.Error()})
			continue
		}
		entries = append(entries, importedEntry{NewEntry: entry, Row: rowNumber})
	}
	return entries, skipped, nil
}

func findImportColumns(header []string) (importColumns, error) {
	cols := importColumns{staff: -1, date: -1, timeIn: -1, timeOut: -1, note: -1}
	for idx, raw := range header {
		switch normalizeHeader(raw) {
		case "staff", "staff name", "name", "employee":
			cols.staff = idx
		case "date", "shift date":
			cols.date = idx
		case "time in", "clock in", "in":
			cols.timeIn = idx
		case "time out", "clock out", "out":
			cols.timeOut = idx
		case "note", "notes":
			cols.note = idx
		}
	}
	var missing []string
	if cols.staff < 0 {
		missing = append(missing, "Staff")
	}
	if cols.date < 0 {
		missing = append(missing, "Date")
	}
	if cols.timeIn < 0 {
		missing = append(missing, "Time In")
	}
	if cols.timeOut < 0 {
		missing = append(missing, "Time Out")
	}
	if len(missing) > 0 {
		return importColumns{}, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseSheetDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if serial >= 20000 && serial <= 80000 {
			if parsed, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), true
			}
		}
		return time.Time{}, false
	}
	for _, layout := range []string{
		attendance.DateLayout,
		"1/2/2006",
		"01/02/2006",
		"1/2/06",
		"01/02/06",
		"1-2-2006",
		"01-02-2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2006/01/02",
	} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// parseSheetTime turns a time cell into an HH:MM fragment. Day fractions and
// 12-hour clock text are converted first; anything else is treated as typed
// input.
func parseSheetTime(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if fraction, err := strconv.ParseFloat(value, 64); err == nil && strings.Contains(value, ".") {
		if fraction < 0 || fraction >= 1 {
			return "", errors.New(clocktime.MessageIncomplete)
		}
		parsed, err := excelize.ExcelDateToTime(fraction, false)
		if err != nil {
			return "", err
		}
		return parsed.Round(time.Minute).Format(clocktime.FragmentLayout), nil
	}
	upper := strings.ToUpper(value)
	if strings.HasSuffix(upper, "AM") || strings.HasSuffix(upper, "PM") {
		for _, layout := range []string{"3:04 PM", "3:04PM", "03:04 PM", "3:04:05 PM", "3 PM", "3PM"} {
			if parsed, err := time.Parse(layout, upper); err == nil {
				return parsed.Format(clocktime.FragmentLayout), nil
			}
		}
		return "", errors.New(clocktime.MessageIncomplete)
	}
	if parsed, err := time.Parse("15:04:05", value); err == nil {
		return parsed.Format(clocktime.FragmentLayout), nil
	}

	fragment := clocktime.NormalizeValue(value)
	if result := clocktime.Validate(fragment); result.Invalid() || result.Status == clocktime.Incomplete {
		return "", errors.New(result.Message())
	}
	return fragment, nil
}

func readRowsFromSpreadsheet(reader io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(io.LimitReader(reader, maxImportFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImportFileSize {
		return nil, errors.New("spreadsheet is too large")
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, err
		}
		if workbook.NumSheets() == 0 {
			return nil, errors.New("no worksheet found")
		}
		rows := workbook.ReadAllCells(100000)
		if len(rows) == 0 {
			return nil, errors.New("worksheet is empty")
		}
		return rows, nil
	case ".xlsx", ".xlsm":
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, errors.New("no worksheet found")
		}
		rows, err := file.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, errors.New("worksheet is empty")
		}
		return rows, nil
	default:
		return nil, errors.New("spreadsheet must be .xlsx or .xls")
	}
}

func normalizeHeader(header string) string {
	return strings.Join(strings.Fields(strings.ToLower(header)), " ")
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func rowIsBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
