package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phillip-england/caresuite/internal/attendance"
)

type fakeAPI struct {
	t         *testing.T
	csrfCalls int
	lastPatch string
	lastQuery string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/auth/login" {
		http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "sess-1"})
		_ = json.NewEncoder(w).Encode(map[string]string{"csrfToken": "csrf-1"})
		return
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value != "sess-1" {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
		return
	}
	if r.Method != http.MethodGet && r.Header.Get(CSRFHeaderName) != "csrf-1" {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "csrf validation failed"})
		return
	}
	switch {
	case r.URL.Path == "/api/auth/csrf":
		f.csrfCalls++
		_ = json.NewEncoder(w).Encode(map[string]string{"csrfToken": "csrf-1"})
	case r.URL.Path == "/api/admin/attendance" && r.Method == http.MethodGet:
		f.lastQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `{"count":1,"records":[{"id":"a1","staffName":"Ann","shiftDate":"2024-01-10","clockIn":"2024-01-10T08:00:00.000Z","clockOut":null,"note":"","approvedAt":null}]}`)
	case r.URL.Path == "/api/admin/attendance/a1" && r.Method == http.MethodPatch:
		body, _ := io.ReadAll(r.Body)
		f.lastPatch = string(body)
		_, _ = io.WriteString(w, `{"id":"a1","staffName":"Ann","shiftDate":"2024-01-10","clockIn":"2024-01-10T09:15:00.000Z","clockOut":null,"note":"","approvedAt":null}`)
	case r.URL.Path == "/api/admin/attendance/a2" && r.Method == http.MethodPatch:
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "time out must be after time in"})
	case r.URL.Path == "/api/admin/attendance/missing":
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "attendance record not found"})
	case r.URL.Path == "/api/admin/attendance/export":
		w.Header().Set("Content-Disposition", `attachment; filename="attendance-2024-01-10.xlsx"`)
		_, _ = io.WriteString(w, "xlsx-bytes")
	case r.URL.Path == "/api/admin/attendance/import":
		file, header, err := r.FormFile("file")
		if err != nil {
			f.t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "shifts.xlsx" || string(data) != "sheet" {
			f.t.Errorf("unexpected upload %q %q", header.Filename, data)
		}
		_, _ = io.WriteString(w, `{"imported":3,"skipped":[{"row":4,"reason":"bad"}]}`)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func newFake(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	fake := &fakeAPI{t: t}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client := New(srv.URL + "/")
	if err := client.Login(context.Background(), "admin", "password-long-enough"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return fake, client
}

func TestLoginStoresSession(t *testing.T) {
	fake, client := newFake(t)
	if client.SessionID() != "sess-1" {
		t.Fatalf("expected session id, got %q", client.SessionID())
	}
	token, err := client.CSRFToken(context.Background())
	if err != nil || token != "csrf-1" {
		t.Fatalf("expected cached csrf token, got %q %v", token, err)
	}
	if fake.csrfCalls != 0 {
		t.Fatalf("expected token from login, fetched %d times", fake.csrfCalls)
	}
}

func TestWithSessionFetchesCSRF(t *testing.T) {
	fake, client := newFake(t)
	other := client.WithSession(client.SessionID())
	if _, err := other.UpdateAttendance(context.Background(), attendance.Payload{ID: "a1"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if fake.csrfCalls != 1 {
		t.Fatalf("expected one csrf fetch, got %d", fake.csrfCalls)
	}
}

func TestListAttendanceSendsFilter(t *testing.T) {
	fake, client := newFake(t)
	records, err := client.ListAttendance(context.Background(), attendance.Filter{Date: "2024-01-10", Status: "pending"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if fake.lastQuery != "date=2024-01-10&status=pending" {
		t.Fatalf("unexpected query %q", fake.lastQuery)
	}
	if len(records) != 1 || records[0].ClockIn == nil || records[0].ClockOut != nil {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestUpdateAttendanceSendsISO(t *testing.T) {
	fake, client := newFake(t)
	in := time.Date(2024, 1, 10, 9, 15, 0, 0, time.UTC)
	rec, err := client.UpdateAttendance(context.Background(), attendance.Payload{ID: "a1", ClockIn: &in})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if fake.lastPatch != `{"clockIn":"2024-01-10T09:15:00.000Z","clockOut":null}` {
		t.Fatalf("unexpected body %s", fake.lastPatch)
	}
	if rec.ClockIn == nil || !rec.ClockIn.Equal(in) {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestStatusErrorClassification(t *testing.T) {
	_, client := newFake(t)
	ctx := context.Background()

	_, err := client.UpdateAttendance(ctx, attendance.Payload{ID: "a2"})
	if !errors.Is(err, attendance.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if err.Error() != "time out must be after time in" {
		t.Fatalf("expected server message, got %q", err.Error())
	}

	_, err = client.GetAttendance(ctx, "missing")
	if !errors.Is(err, attendance.ErrUnknownRecord) {
		t.Fatalf("expected ErrUnknownRecord, got %v", err)
	}

	for status, rejected := range map[int]bool{
		http.StatusBadRequest:          true,
		http.StatusConflict:            true,
		http.StatusUnauthorized:        false,
		http.StatusTooManyRequests:     false,
		http.StatusInternalServerError: false,
		http.StatusBadGateway:          false,
	} {
		if got := errors.Is(&StatusError{Status: status}, attendance.ErrRejected); got != rejected {
			t.Fatalf("status %d: expected rejected=%v", status, rejected)
		}
	}
}

func TestMutationWithoutSession(t *testing.T) {
	client := New("http://127.0.0.1:0")
	if err := client.DeleteAttendance(context.Background(), "a1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestExportAndImport(t *testing.T) {
	_, client := newFake(t)
	ctx := context.Background()

	data, name, err := client.ExportAttendance(ctx, attendance.Filter{Date: "2024-01-10"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if string(data) != "xlsx-bytes" || name != "attendance-2024-01-10.xlsx" {
		t.Fatalf("unexpected export %q %q", data, name)
	}

	result, err := client.ImportAttendance(ctx, "shifts.xlsx", strings.NewReader("sheet"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Imported != 3 || len(result.Skipped) != 1 || result.Skipped[0].Row != 4 {
		t.Fatalf("unexpected result %+v", result)
	}
}
