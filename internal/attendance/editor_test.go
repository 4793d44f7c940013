package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/phillip-england/caresuite/internal/clocktime"
	"github.com/phillip-england/caresuite/internal/overrides"
)

type fakeAdapter struct {
	records   map[string]Record
	order     []string
	updates   []Payload
	lists     int
	listErr   error
	updateErr error
}

func newFakeAdapter(records ...Record) *fakeAdapter {
	a := &fakeAdapter{records: map[string]Record{}}
	for _, rec := range records {
		a.records[rec.ID] = rec
		a.order = append(a.order, rec.ID)
	}
	return a
}

func (a *fakeAdapter) ListAttendance(ctx context.Context, filter Filter) ([]Record, error) {
	a.lists++
	if a.listErr != nil {
		return nil, a.listErr
	}
	out := make([]Record, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.records[id])
	}
	return out, nil
}

func (a *fakeAdapter) UpdateAttendance(ctx context.Context, payload Payload) (Record, error) {
	a.updates = append(a.updates, payload)
	if a.updateErr != nil {
		return Record{}, a.updateErr
	}
	rec := a.records[payload.ID]
	rec.ClockIn = payload.ClockIn
	rec.ClockOut = payload.ClockOut
	a.records[payload.ID] = rec
	return rec, nil
}

func (a *fakeAdapter) ApproveAttendance(ctx context.Context, id string) (Record, error) {
	rec := a.records[id]
	now := time.Date(2024, time.January, 11, 8, 0, 0, 0, time.UTC)
	rec.ApprovedAt = &now
	a.records[id] = rec
	return rec, nil
}

func (a *fakeAdapter) CreateAttendance(ctx context.Context, entry NewEntry) (Record, error) {
	rec := Record{ID: "rec-new", StaffName: entry.StaffName, ShiftDate: entry.ShiftDate, ClockIn: entry.ClockIn, ClockOut: entry.ClockOut}
	a.records[rec.ID] = rec
	a.order = append(a.order, rec.ID)
	return rec, nil
}

func ts(value string) *time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return &parsed
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func loadedEditor(t *testing.T, adapter *fakeAdapter) *Editor {
	t.Helper()
	e := NewEditor(adapter, Filter{})
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return e
}

func TestEditorShowsBaselineUntilTouched(t *testing.T) {
	adapter := newFakeAdapter(Record{ID: "rec-1", ShiftDate: day(2024, 1, 10), ClockIn: ts("2024-01-10T08:05:00Z")})
	e := loadedEditor(t, adapter)

	if got := e.Value("rec-1", overrides.ClockIn); got != "08:05" {
		t.Fatalf("expected baseline 08:05, got %q", got)
	}
	if got := e.Value("rec-1", overrides.ClockOut); got != "" {
		t.Fatalf("expected empty clock out, got %q", got)
	}
	if e.Dirty("rec-1") {
		t.Fatalf("expected clean record")
	}
}

func TestEditorInputNormalizesEachKeystroke(t *testing.T) {
	adapter := newFakeAdapter(Record{ID: "rec-1", ShiftDate: day(2024, 1, 10)})
	e := loadedEditor(t, adapter)

	want := []string{"1", "15", "15:3", "15:38"}
	for i, raw := range []string{"1", "15", "153", "1538"} {
		if got := e.Input("rec-1", overrides.ClockIn, raw); got != want[i] {
			t.Fatalf("keystroke %d: expected %q, got %q", i, want[i], got)
		}
	}
	if !e.Dirty("rec-1") {
		t.Fatalf("expected record to be dirty after typing")
	}
	if got := e.Input("rec-1", overrides.ClockIn, "15:3"); got != "15:3" {
		t.Fatalf("expected backspace to pass through, got %q", got)
	}
}

func TestEditorBlurInvalidHourKeepsEditAndSkipsAdapter(t *testing.T) {
	adapter := newFakeAdapter(Record{ID: "rec-1", ShiftDate: day(2024, 1, 10)})
	e := loadedEditor(t, adapter)

	e.Input("rec-1", overrides.ClockIn, "2500")
	result := e.Blur("rec-1", overrides.ClockIn)
	if result.Status != clocktime.InvalidHour {
		t.Fatalf("expected invalid hour, got %v", result.Status)
	}
	if got := e.Value("rec-1", overrides.ClockIn); got != "25:00" {
		t.Fatalf("expected edit to stay in place, got %q", got)
	}

	err := e.Save(context.Background(), "rec-1")
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != overrides.ClockIn {
		t.Fatalf("expected clock-in field error, got %v", err)
	}
	if !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
	if !strings.Contains(err.Error(), clocktime.MessageInvalidHour) {
		t.Fatalf("expected hour message, got %q", err.Error())
	}
	if len(adapter.updates) != 0 {
		t.Fatalf("expected no adapter call, got %d", len(adapter.updates))
	}
	if !e.Dirty("rec-1") {
		t.Fatalf("expected edit to be retained")
	}
}

func TestEditorSaveComposesOnBaselineDateAndClears(t *testing.T) {
	adapter := newFakeAdapter(Record{
		ID:        "rec-1",
		ShiftDate: day(2024, 1, 10),
		ClockIn:   ts("2024-01-10T00:00:00Z"),
		ClockOut:  ts("2024-01-10T17:30:45Z"),
	})
	e := loadedEditor(t, adapter)

	e.Input("rec-1", overrides.ClockIn, "09:15")
	if err := e.Save(context.Background(), "rec-1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(adapter.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(adapter.updates))
	}

	body, err := json.Marshal(adapter.updates[0])
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	want := `{"clockIn":"2024-01-10T09:15:00.000Z","clockOut":"2024-01-10T17:30:45.000Z"}`
	if string(body) != want {
		t.Fatalf("unexpected payload\nwant %s\ngot  %s", want, body)
	}
	if e.Dirty("rec-1") {
		t.Fatalf("expected override to be cleared after save")
	}
	if got := e.Value("rec-1", overrides.ClockIn); got != "09:15" {
		t.Fatalf("expected refreshed baseline 09:15, got %q", got)
	}
	if adapter.lists < 2 {
		t.Fatalf("expected baseline refresh after save")
	}
}

func TestEditorEmptyFieldClearsTime(t *testing.T) {
	adapter := newFakeAdapter(Record{
		ID:        "rec-1",
		ShiftDate: day(2024, 1, 10),
		ClockIn:   ts("2024-01-10T09:00:00Z"),
		ClockOut:  ts("2024-01-10T17:00:00Z"),
	})
	e := loadedEditor(t, adapter)

	e.Input("rec-1", overrides.ClockOut, "")
	payload, err := e.Payload("rec-1")
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.ClockOut != nil {
		t.Fatalf("expected clock out to be cleared, got %v", payload.ClockOut)
	}
	body, _ := json.Marshal(payload)
	if !strings.Contains(string(body), `"clockOut":null`) {
		t.Fatalf("expected null clock out in %s", body)
	}
}

func TestEditorIncompleteBlocksSave(t *testing.T) {
	adapter := newFakeAdapter(Record{ID: "rec-1", ShiftDate: day(2024, 1, 10)})
	e := loadedEditor(t, adapter)

	e.Input("rec-1", overrides.ClockIn, "930")
	if got := e.Value("rec-1", overrides.ClockIn); got != "93:0" {
		t.Fatalf("unexpected fragment %q", got)
	}
	e.Input("rec-1", overrides.ClockIn, "9:3")
	err := e.Save(context.Background(), "rec-1")
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if len(adapter.updates) != 0 {
		t.Fatalf("expected no adapter call")
	}
}

func TestEditorSaveFailureKeepsOverride(t *testing.T) {
	adapter := newFakeAdapter(Record{ID: "rec-1", ShiftDate: day(2024, 1, 10)})
	adapter.updateErr = errors.New("connection refused")
	e := loadedEditor(t, adapter)

	e.Input("rec-1", overrides.ClockIn, "0800")
	err := e.Save(context.Background(), "rec-1")
	var saveErr *SaveError
	if !errors.As(err, &saveErr) {
		t.Fatalf("expected SaveError, got %v", err)
	}
	if !saveErr.Retryable() {
		t.Fatalf("expected network failure to be retryable")
	}
	if got := e.Value("rec-1", overrides.ClockIn); got != "08:00" {
		t.Fatalf("expected edit to survive failure, got %q", got)
	}

	adapter.updateErr = nil
	if err := e.Save(context.Background(), "rec-1"); err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if e.Dirty("rec-1") {
		t.Fatalf("expected clean record after retry")
	}
}

func TestSaveErrorRejectedIsNotRetryable(t *testing.T) {
	err := &SaveError{ID: "rec-1", Err: errors.Join(ErrRejected, errors.New("clock out is before clock in"))}
	if err.Retryable() {
		t.Fatalf("expected rejected save to be final")
	}
}

func TestEditorUsesShiftDateWhenFieldEmpty(t *testing.T) {
	adapter := newFakeAdapter(Record{ID: "rec-1", ShiftDate: day(2024, 2, 29)})
	e := loadedEditor(t, adapter)

	e.Input("rec-1", overrides.ClockOut, "2130")
	payload, err := e.Payload("rec-1")
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.ClockOut == nil || payload.ClockOut.Format(time.RFC3339) != "2024-02-29T21:30:00Z" {
		t.Fatalf("unexpected clock out %v", payload.ClockOut)
	}
	if payload.ClockIn != nil {
		t.Fatalf("expected untouched clock in to stay empty")
	}
}

func TestEditorUnknownRecord(t *testing.T) {
	e := loadedEditor(t, newFakeAdapter())
	if err := e.Save(context.Background(), "missing"); !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("expected ErrUnknownRecord, got %v", err)
	}
}

func TestEditorApproveRefusesDirtyRecord(t *testing.T) {
	adapter := newFakeAdapter(Record{ID: "rec-1", ShiftDate: day(2024, 1, 10), ClockIn: ts("2024-01-10T09:00:00Z")})
	e := loadedEditor(t, adapter)

	e.Input("rec-1", overrides.ClockIn, "10:00")
	if err := e.Approve(context.Background(), "rec-1"); !errors.Is(err, ErrUnsavedChanges) {
		t.Fatalf("expected ErrUnsavedChanges, got %v", err)
	}
	e.Discard("rec-1")
	if err := e.Approve(context.Background(), "rec-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	rec, _ := e.Record("rec-1")
	if !rec.Approved() {
		t.Fatalf("expected record to be approved")
	}
	if err := e.Approve(context.Background(), "rec-1"); !errors.Is(err, ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved, got %v", err)
	}
}

func TestBuildEntryComposesOnChosenDate(t *testing.T) {
	entry, err := BuildEntry(" Ada Lovelace ", day(2024, 3, 5), "07:45", "", "covered late shift")
	if err != nil {
		t.Fatalf("build entry: %v", err)
	}
	if entry.StaffName != "Ada Lovelace" {
		t.Fatalf("unexpected staff name %q", entry.StaffName)
	}
	if entry.ClockIn == nil || entry.ClockIn.Format(time.RFC3339) != "2024-03-05T07:45:00Z" {
		t.Fatalf("unexpected clock in %v", entry.ClockIn)
	}
	if entry.ClockOut != nil {
		t.Fatalf("expected empty clock out")
	}

	if _, err := BuildEntry("Ada", day(2024, 3, 5), "12:60", "", ""); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
	if _, err := BuildEntry("", day(2024, 3, 5), "", "", ""); !errors.Is(err, ErrStaffRequired) {
		t.Fatalf("expected ErrStaffRequired, got %v", err)
	}
	if _, err := BuildEntry("Ada", time.Time{}, "", "", ""); !errors.Is(err, ErrDateRequired) {
		t.Fatalf("expected ErrDateRequired, got %v", err)
	}
}

func TestEditorCreateReloads(t *testing.T) {
	adapter := newFakeAdapter()
	e := loadedEditor(t, adapter)

	entry, err := BuildEntry("Ada", day(2024, 3, 5), "0745", "1600", "")
	if err != nil {
		t.Fatalf("build entry: %v", err)
	}
	if _, err := e.Create(context.Background(), entry); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(e.Records()) != 1 {
		t.Fatalf("expected created record in list, got %d", len(e.Records()))
	}
}

func TestEditorLogsFailedReload(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	adapter := newFakeAdapter(Record{ID: "rec-1", ShiftDate: day(2024, 1, 10)})
	e := loadedEditor(t, adapter)
	adapter.listErr = errors.New("connection reset")

	e.Input("rec-1", overrides.ClockIn, "0800")
	if err := e.Save(context.Background(), "rec-1"); err != nil {
		t.Fatalf("save should succeed once the update lands: %v", err)
	}
	if got := e.Value("rec-1", overrides.ClockIn); got != "08:00" {
		t.Fatalf("expected applied record kept, got %q", got)
	}
	if err := e.Approve(context.Background(), "rec-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := e.Create(context.Background(), NewEntry{StaffName: "Ada", ShiftDate: day(2024, 1, 10)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	out := logs.String()
	for _, action := range []string{"save", "approve", "create"} {
		if !strings.Contains(out, "reload after "+action) || !strings.Contains(out, "connection reset") {
			t.Fatalf("expected %s reload failure logged, got %q", action, out)
		}
	}
}

func TestRecordJSONRoundTrip(t *testing.T) {
	rec := Record{
		ID:        "rec-1",
		StaffName: "Ada",
		ShiftDate: day(2024, 1, 10),
		ClockIn:   ts("2024-01-10T09:15:00Z"),
	}
	body, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"clockOut":null`) || !strings.Contains(string(body), `"shiftDate":"2024-01-10"`) {
		t.Fatalf("unexpected json %s", body)
	}
	var decoded Record
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ClockIn == nil || !decoded.ClockIn.Equal(*rec.ClockIn) || decoded.ClockOut != nil {
		t.Fatalf("unexpected decoded record %+v", decoded)
	}
}

func TestPayloadRejectsMalformedTimestamp(t *testing.T) {
	var p Payload
	if err := json.Unmarshal([]byte(`{"clockIn":"9:15","clockOut":null}`), &p); err == nil {
		t.Fatalf("expected error for bare time")
	}
}
