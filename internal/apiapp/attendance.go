package apiapp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phillip-england/caresuite/internal/attendance"
)

var (
	errClockOutBeforeIn = errors.New("time out must be after time in")
	errApprovedLocked   = errors.New("approved records cannot be edited")
)

func (s *server) attendanceHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listAttendance(w, r)
	case http.MethodPost:
		s.createAttendance(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) attendanceByIDHandler(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/attendance/"), "/")
	if trimmed == "" {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(trimmed, "/")

	if len(parts) == 1 {
		switch parts[0] {
		case "export":
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			s.exportAttendance(w, r)
			return
		case "import":
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			s.importAttendance(w, r)
			return
		}
	}

	id, err := url.PathUnescape(parts[0])
	if err != nil || strings.TrimSpace(id) == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getAttendance(w, r, id)
		case http.MethodPatch:
			s.updateAttendance(w, r, id)
		case http.MethodDelete:
			s.deleteAttendance(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "approve" {
		if r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.approveAttendance(w, r, id)
		return
	}

	http.NotFound(w, r)
}

func (s *server) listAttendance(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *server) createAttendance(w http.ResponseWriter, r *http.Request) {
	var entry attendance.NewEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validateNewEntry(entry); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var rec attendance.Record
	if err := withSQLiteRetry(func() error {
		var err error
		rec, err = s.store.createAttendance(r.Context(), entry)
		return err
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "unable to create attendance")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *server) getAttendance(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.store.getAttendance(r.Context(), id)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusNotFound, "attendance record not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "unable to load attendance")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) updateAttendance(w http.ResponseWriter, r *http.Request, id string) {
	var payload attendance.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	payload.ID = id

	current, err := s.store.getAttendance(r.Context(), id)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusNotFound, "attendance record not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "unable to load attendance")
		return
	}
	if current.Approved() {
		writeError(w, http.StatusConflict, errApprovedLocked.Error())
		return
	}
	if err := validateShiftTimes(payload.ClockIn, payload.ClockOut); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rec attendance.Record
	if err := withSQLiteRetry(func() error {
		var err error
		rec, err = s.store.updateAttendanceTimes(r.Context(), payload)
		return err
	}); err != nil {
		switch {
		case errors.Is(err, errNotFound):
			writeError(w, http.StatusNotFound, "attendance record not found")
			return
		case errors.Is(err, errApprovedLocked):
			writeError(w, http.StatusConflict, errApprovedLocked.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "unable to update attendance")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) approveAttendance(w http.ResponseWriter, r *http.Request, id string) {
	var rec attendance.Record
	err := withSQLiteRetry(func() error {
		var err error
		rec, err = s.store.approveAttendance(r.Context(), id)
		return err
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rec)
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, "attendance record not found")
	case errors.Is(err, attendance.ErrAlreadyApproved):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "unable to approve attendance")
	}
}

func (s *server) deleteAttendance(w http.ResponseWriter, r *http.Request, id string) {
	if err := withSQLiteRetry(func() error {
		return s.store.deleteAttendance(r.Context(), id)
	}); err != nil {
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusNotFound, "attendance record not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "unable to delete attendance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "attendance deleted"})
}

func parseAttendanceFilter(query url.Values) (attendance.Filter, error) {
	filter := attendance.Filter{
		Date:   strings.TrimSpace(query.Get("date")),
		Status: strings.ToLower(strings.TrimSpace(query.Get("status"))),
	}
	if filter.Date != "" {
		if _, err := time.Parse(attendance.DateLayout, filter.Date); err != nil {
			return attendance.Filter{}, errors.New("date must use YYYY-MM-DD")
		}
	}
	switch filter.Status {
	case "", attendance.StatusPending, attendance.StatusApproved:
	default:
		return attendance.Filter{}, errors.New("status must be pending or approved")
	}
	return filter, nil
}

func validateNewEntry(entry attendance.NewEntry) error {
	if strings.TrimSpace(entry.StaffName) == "" {
		return attendance.ErrStaffRequired
	}
	if entry.ShiftDate.IsZero() {
		return attendance.ErrDateRequired
	}
	return validateShiftTimes(entry.ClockIn, entry.ClockOut)
}

func validateShiftTimes(clockIn, clockOut *time.Time) error {
	if clockIn != nil && clockOut != nil && clockOut.Before(*clockIn) {
		return errClockOutBeforeIn
	}
	return nil
}
