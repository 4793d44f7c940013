package clientapp

import (
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phillip-england/caresuite/internal/apiclient"
	"github.com/phillip-england/caresuite/internal/attendance"
	"github.com/phillip-england/caresuite/internal/clocktime"
	"github.com/phillip-england/caresuite/internal/overrides"
)

type pageData struct {
	Error   string
	Message string
	CSRF    string

	Date       string
	Status     string
	Rows       []attendanceRow
	DirtyCount int
}

type attendanceRow struct {
	ID         string
	StaffName  string
	ShiftDate  string
	ClockIn    timeCell
	ClockOut   timeCell
	Hours      string
	Note       string
	Approved   bool
	ApprovedAt string
	Dirty      bool
}

type timeCell struct {
	Field   string
	Value   string
	Display string
	Message string
}

var templateFuncs = template.FuncMap{
	"statusLabel": func(approved bool) string {
		if approved {
			return "Approved"
		}
		return "Pending"
	},
}

func (s *server) attendancePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := sessionFromContext(r.Context())
	data := pageData{
		Error:   r.URL.Query().Get("error"),
		Message: r.URL.Query().Get("message"),
		Date:    strings.TrimSpace(r.URL.Query().Get("date")),
		Status:  strings.TrimSpace(r.URL.Query().Get("status")),
	}
	if data.Date == "" {
		data.Date = s.now().Format(attendance.DateLayout)
	}
	if _, err := time.Parse(attendance.DateLayout, data.Date); err != nil {
		data.Error = "Date must use YYYY-MM-DD"
		data.Date = s.now().Format(attendance.DateLayout)
	}

	csrfToken, err := sess.client.CSRFToken(r.Context())
	if err != nil {
		http.Redirect(w, r, "/?error=Session+expired", http.StatusFound)
		return
	}
	data.CSRF = csrfToken

	sess.editor.SetFilter(attendance.Filter{Date: data.Date, Status: data.Status})
	sess.resetInputs()
	if err := sess.editor.Load(r.Context()); err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			http.Redirect(w, r, "/?error=Session+expired", http.StatusFound)
			return
		}
		log.Printf("load attendance failed: %v", err)
		if data.Error == "" {
			data.Error = "Unable to load attendance"
		}
	}
	data.Rows = buildAttendanceRows(sess.editor)
	data.DirtyCount = len(sess.editor.DirtyIDs())

	if err := renderHTMLTemplate(w, s.attendanceTmpl, data); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
		log.Printf("attendance template render failed: %v", err)
	}
}

func buildAttendanceRows(editor *attendance.Editor) []attendanceRow {
	records := editor.Records()
	rows := make([]attendanceRow, 0, len(records))
	for _, rec := range records {
		row := attendanceRow{
			ID:        rec.ID,
			StaffName: rec.StaffName,
			ShiftDate: rec.ShiftDate.Format("Jan 2, 2006"),
			ClockIn:   buildTimeCell(editor, rec.ID, overrides.ClockIn),
			ClockOut:  buildTimeCell(editor, rec.ID, overrides.ClockOut),
			Note:      rec.Note,
			Approved:  rec.Approved(),
			Dirty:     editor.Dirty(rec.ID),
		}
		if d := rec.Duration(); d > 0 {
			row.Hours = fmt.Sprintf("%.2f", d.Hours())
		}
		if rec.ApprovedAt != nil {
			row.ApprovedAt = rec.ApprovedAt.Local().Format("Jan 2, 2006 3:04 PM")
		}
		rows = append(rows, row)
	}
	return rows
}

func buildTimeCell(editor *attendance.Editor, id string, field overrides.Field) timeCell {
	value := editor.Value(id, field)
	cell := timeCell{Field: string(field), Value: value, Display: formatPunchClockDisplay(value)}
	if editor.Dirty(id) {
		cell.Message = editor.Blur(id, field).Message()
	}
	return cell
}

func (s *server) attendanceRoutes(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/attendance/"), "/")
	parts := strings.Split(trimmed, "/")
	sess := sessionFromContext(r.Context())

	if len(parts) == 1 && parts[0] == "export" {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.exportAttendance(w, r, sess)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.csrfValid(r, sess) {
		if wantsJSON(r) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "csrf validation failed"})
			return
		}
		redirectWith(w, r, sess.editor.Filter().Date, "error", "Missing csrf token")
		return
	}

	if len(parts) == 1 {
		switch parts[0] {
		case "new":
			s.createAttendance(w, r, sess)
			return
		case "import":
			s.importAttendance(w, r, sess)
			return
		case "normalize":
			normalizeFragment(w, r)
			return
		}
	}

	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	id, err := url.PathUnescape(parts[0])
	if err != nil || strings.TrimSpace(id) == "" {
		http.NotFound(w, r)
		return
	}
	if _, ok := s.lookupRecord(r, sess, id); !ok {
		if wantsJSON(r) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "attendance record not found"})
			return
		}
		redirectWith(w, r, sess.editor.Filter().Date, "error", "Attendance record not found")
		return
	}

	switch parts[1] {
	case "input":
		s.inputTime(w, r, sess, id)
	case "blur":
		s.blurTime(w, r, sess, id)
	case "save":
		s.saveAttendance(w, r, sess, id)
	case "discard":
		sess.editor.Discard(id)
		redirectWith(w, r, sess.editor.Filter().Date, "message", "Changes discarded")
	case "approve":
		s.approveAttendance(w, r, sess, id)
	default:
		http.NotFound(w, r)
	}
}

// lookupRecord finds a record in the session's editor, loading once when the
// editor has not seen it yet.
func (s *server) lookupRecord(r *http.Request, sess *adminSession, id string) (attendance.Record, bool) {
	if rec, ok := sess.editor.Record(id); ok {
		return rec, true
	}
	if err := sess.editor.Load(r.Context()); err != nil {
		return attendance.Record{}, false
	}
	return sess.editor.Record(id)
}

func (s *server) inputTime(w http.ResponseWriter, r *http.Request, sess *adminSession, id string) {
	field, ok := overrides.ParseField(r.FormValue("field"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown field"})
		return
	}
	// Keystrokes normalize against the stored edit, so one that arrives after
	// a later keystroke must not be applied.
	seq, _ := strconv.ParseInt(r.FormValue("seq"), 10, 64)
	if !sess.acceptInput(id, field, seq) {
		writeJSON(w, http.StatusOK, map[string]any{
			"value": sess.editor.Value(id, field),
			"dirty": sess.editor.Dirty(id),
			"stale": true,
		})
		return
	}
	value := sess.editor.Input(id, field, r.FormValue("value"))
	writeJSON(w, http.StatusOK, map[string]any{
		"value": value,
		"dirty": sess.editor.Dirty(id),
	})
}

func (s *server) blurTime(w http.ResponseWriter, r *http.Request, sess *adminSession, id string) {
	field, ok := overrides.ParseField(r.FormValue("field"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown field"})
		return
	}
	result := sess.editor.Blur(id, field)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  result.Status.String(),
		"message": result.Message(),
	})
}

func (s *server) saveAttendance(w http.ResponseWriter, r *http.Request, sess *adminSession, id string) {
	date := sess.editor.Filter().Date
	if !sess.editor.Dirty(id) {
		redirectWith(w, r, date, "message", "No changes to save")
		return
	}
	if err := sess.editor.Save(r.Context(), id); err != nil {
		redirectWith(w, r, date, "error", saveErrorMessage(err))
		return
	}
	redirectWith(w, r, date, "message", "Attendance saved")
}

func (s *server) approveAttendance(w http.ResponseWriter, r *http.Request, sess *adminSession, id string) {
	date := sess.editor.Filter().Date
	if err := sess.editor.Approve(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, attendance.ErrUnsavedChanges), errors.Is(err, attendance.ErrAlreadyApproved):
			redirectWith(w, r, date, "error", capitalize(err.Error()))
		default:
			redirectWith(w, r, date, "error", saveErrorMessage(err))
		}
		return
	}
	redirectWith(w, r, date, "message", "Attendance approved")
}

func (s *server) createAttendance(w http.ResponseWriter, r *http.Request, sess *adminSession) {
	date := strings.TrimSpace(r.FormValue("shift_date"))
	shiftDate, err := time.Parse(attendance.DateLayout, date)
	if err != nil {
		redirectWith(w, r, sess.editor.Filter().Date, "error", "Date must use YYYY-MM-DD")
		return
	}
	entry, err := attendance.BuildEntry(
		r.FormValue("staff_name"),
		shiftDate,
		clocktime.NormalizeValue(r.FormValue("time_in")),
		clocktime.NormalizeValue(r.FormValue("time_out")),
		r.FormValue("note"),
	)
	if err != nil {
		redirectWith(w, r, date, "error", capitalize(err.Error()))
		return
	}
	if _, err := sess.editor.Create(r.Context(), entry); err != nil {
		redirectWith(w, r, date, "error", saveErrorMessage(err))
		return
	}
	redirectWith(w, r, date, "message", "Attendance added")
}

func (s *server) importAttendance(w http.ResponseWriter, r *http.Request, sess *adminSession) {
	date := sess.editor.Filter().Date
	file, header, err := r.FormFile("file")
	if err != nil {
		redirectWith(w, r, date, "error", "Choose a spreadsheet to import")
		return
	}
	defer file.Close()

	result, err := sess.client.ImportAttendance(r.Context(), header.Filename, file)
	if err != nil {
		redirectWith(w, r, date, "error", saveErrorMessage(err))
		return
	}
	message := fmt.Sprintf("Imported %d shifts", result.Imported)
	if len(result.Skipped) > 0 {
		notes := make([]string, 0, len(result.Skipped))
		for _, skip := range result.Skipped {
			notes = append(notes, fmt.Sprintf("row %d: %s", skip.Row, skip.Reason))
		}
		message += fmt.Sprintf("; skipped %d (%s)", len(result.Skipped), strings.Join(notes, "; "))
	}
	redirectWith(w, r, date, "message", message)
}

func (s *server) exportAttendance(w http.ResponseWriter, r *http.Request, sess *adminSession) {
	filter := attendance.Filter{
		Date:   strings.TrimSpace(r.URL.Query().Get("date")),
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
	}
	data, name, err := sess.client.ExportAttendance(r.Context(), filter)
	if err != nil {
		redirectWith(w, r, filter.Date, "error", saveErrorMessage(err))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(data)
}

// normalizeFragment serves the new-entry form, which has no record to hold
// its edits: the browser sends the previous value along with the raw one.
func normalizeFragment(w http.ResponseWriter, r *http.Request) {
	value := clocktime.Normalize(r.FormValue("previous"), r.FormValue("value"))
	writeJSON(w, http.StatusOK, map[string]string{"value": value})
}

func saveErrorMessage(err error) string {
	var fieldErr *attendance.FieldError
	if errors.As(err, &fieldErr) {
		return capitalize(fieldErr.Error())
	}
	var statusErr *apiclient.StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return capitalize(statusErr.Message)
	}
	var saveErr *attendance.SaveError
	if errors.As(err, &saveErr) && saveErr.Retryable() {
		return "Unable to reach the attendance service; your changes are kept, try again"
	}
	if errors.Is(err, attendance.ErrNoBaseDate) {
		return "This record has no date to attach a time to"
	}
	return "Unable to save attendance"
}

func formatPunchClockDisplay(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if parsed, err := time.Parse(clocktime.FragmentLayout, trimmed); err == nil {
		return parsed.Format("3:04 PM")
	}
	return trimmed
}

func capitalize(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
