package attendance

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/phillip-england/caresuite/internal/clocktime"
	"github.com/phillip-england/caresuite/internal/overrides"
)

// Editor drives one attendance screen: baseline records from the adapter,
// per-record edits in an override store, and validated saves.
type Editor struct {
	adapter   Adapter
	overrides *overrides.Store

	mu      sync.RWMutex
	filter  Filter
	records map[string]Record
	order   []string
}

func NewEditor(adapter Adapter, filter Filter) *Editor {
	return &Editor{
		adapter:   adapter,
		overrides: overrides.NewStore(),
		filter:    filter,
		records:   map[string]Record{},
	}
}

func (e *Editor) Filter() Filter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.filter
}

// SetFilter changes the listed records on the next Load. Pending edits are
// kept; a record that drops out of the list keeps its entry until discarded.
func (e *Editor) SetFilter(filter Filter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filter = filter
}

func (e *Editor) Load(ctx context.Context) error {
	records, err := e.adapter.ListAttendance(ctx, e.Filter())
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = make(map[string]Record, len(records))
	e.order = make([]string, 0, len(records))
	for _, rec := range records {
		if _, seen := e.records[rec.ID]; !seen {
			e.order = append(e.order, rec.ID)
		}
		e.records[rec.ID] = rec
	}
	return nil
}

func (e *Editor) Records() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Record, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.records[id])
	}
	return out
}

func (e *Editor) Record(id string) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[id]
	return rec, ok
}

// Value is what the field shows: the pending edit if there is one, else the
// stored time as HH:MM.
func (e *Editor) Value(id string, field overrides.Field) string {
	rec, _ := e.Record(id)
	return e.overrides.GetField(id, field, clocktime.Format(rec.Time(field)))
}

// Input applies one keystroke's raw field value and returns the fragment to
// display in its place.
func (e *Editor) Input(id string, field overrides.Field, raw string) string {
	fragment := clocktime.Normalize(e.Value(id, field), raw)
	e.overrides.SetField(id, field, fragment)
	return fragment
}

// Blur validates the field as it stands. It never changes the edit, so an
// invalid value stays in place for correction.
func (e *Editor) Blur(id string, field overrides.Field) clocktime.Result {
	return clocktime.Validate(e.Value(id, field))
}

func (e *Editor) Dirty(id string) bool {
	return e.overrides.IsDirty(id)
}

func (e *Editor) DirtyIDs() []string {
	return e.overrides.DirtyIDs()
}

func (e *Editor) Discard(id string) {
	e.overrides.Clear(id)
}

// Payload composes the update for a record. Untouched fields carry the
// stored timestamp unchanged; edited fields are validated and placed on the
// record's date. An empty edited field clears the stored time.
func (e *Editor) Payload(id string) (Payload, error) {
	rec, ok := e.Record(id)
	if !ok {
		return Payload{}, ErrUnknownRecord
	}
	entry, _ := e.overrides.Entry(id)

	payload := Payload{ID: id, ClockIn: rec.ClockIn, ClockOut: rec.ClockOut}
	for _, field := range []overrides.Field{overrides.ClockIn, overrides.ClockOut} {
		fragment, edited := entry.Field(field)
		if !edited {
			continue
		}
		composed, err := composeField(field, fragment, func() (time.Time, error) {
			return baseDate(rec, field)
		})
		if err != nil {
			return Payload{}, err
		}
		switch field {
		case overrides.ClockIn:
			payload.ClockIn = composed
		case overrides.ClockOut:
			payload.ClockOut = composed
		}
	}
	return payload, nil
}

// Save persists a record's edits. Validation failures return before the
// adapter is called. On success the edits are dropped and the baseline is
// reloaded; on failure a *SaveError is returned and the edits stay.
func (e *Editor) Save(ctx context.Context, id string) error {
	payload, err := e.Payload(id)
	if err != nil {
		return err
	}
	updated, err := e.adapter.UpdateAttendance(ctx, payload)
	if err != nil {
		return &SaveError{ID: id, Err: err}
	}
	e.overrides.Clear(id)
	e.apply(updated)
	e.reload(ctx, "save", id)
	return nil
}

// Approve marks a record approved. Records with pending edits are refused
// so an approval never covers times the manager has not saved.
func (e *Editor) Approve(ctx context.Context, id string) error {
	approver, ok := e.adapter.(Approver)
	if !ok {
		return ErrUnsupported
	}
	rec, found := e.Record(id)
	if !found {
		return ErrUnknownRecord
	}
	if rec.Approved() {
		return ErrAlreadyApproved
	}
	if e.Dirty(id) {
		return ErrUnsavedChanges
	}
	updated, err := approver.ApproveAttendance(ctx, id)
	if err != nil {
		return &SaveError{ID: id, Err: err}
	}
	e.apply(updated)
	e.reload(ctx, "approve", id)
	return nil
}

// BuildEntry composes a manual entry from a chosen date and typed times,
// applying the same rules as Payload.
func BuildEntry(staffName string, shiftDate time.Time, clockIn, clockOut, note string) (NewEntry, error) {
	staffName = strings.TrimSpace(staffName)
	if staffName == "" {
		return NewEntry{}, ErrStaffRequired
	}
	if shiftDate.IsZero() {
		return NewEntry{}, ErrDateRequired
	}
	base := func() (time.Time, error) { return shiftDate, nil }
	in, err := composeField(overrides.ClockIn, clockIn, base)
	if err != nil {
		return NewEntry{}, err
	}
	out, err := composeField(overrides.ClockOut, clockOut, base)
	if err != nil {
		return NewEntry{}, err
	}
	return NewEntry{
		StaffName: staffName,
		ShiftDate: time.Date(shiftDate.Year(), shiftDate.Month(), shiftDate.Day(), 0, 0, 0, 0, shiftDate.Location()),
		ClockIn:   in,
		ClockOut:  out,
		Note:      strings.TrimSpace(note),
	}, nil
}

// Create persists a manual entry through the adapter and reloads.
func (e *Editor) Create(ctx context.Context, entry NewEntry) (Record, error) {
	creator, ok := e.adapter.(Creator)
	if !ok {
		return Record{}, ErrUnsupported
	}
	rec, err := creator.CreateAttendance(ctx, entry)
	if err != nil {
		return Record{}, err
	}
	e.reload(ctx, "create", rec.ID)
	return rec, nil
}

// reload refreshes the baseline after a write that already landed. A failed
// reload leaves the applied record in place until the next Load.
func (e *Editor) reload(ctx context.Context, action, id string) {
	if err := e.Load(ctx); err != nil {
		log.Printf("reload after %s of attendance %s failed: %v", action, id, err)
	}
}

func (e *Editor) apply(rec Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.records[rec.ID]; !ok {
		e.order = append(e.order, rec.ID)
	}
	e.records[rec.ID] = rec
}

func composeField(field overrides.Field, fragment string, base func() (time.Time, error)) (*time.Time, error) {
	result := clocktime.Validate(fragment)
	switch result.Status {
	case clocktime.Empty:
		return nil, nil
	case clocktime.Valid:
	default:
		return nil, &FieldError{Field: field, Result: result}
	}
	date, err := base()
	if err != nil {
		return nil, err
	}
	composed, ok := clocktime.Compose(fragment, date)
	if !ok {
		return nil, &FieldError{Field: field, Result: result}
	}
	return &composed, nil
}

// baseDate picks the calendar date an edited time lands on: the field's own
// stored timestamp, then the shift date, then the other field's timestamp.
func baseDate(rec Record, field overrides.Field) (time.Time, error) {
	if current := rec.Time(field); current != nil {
		return *current, nil
	}
	if !rec.ShiftDate.IsZero() {
		return rec.ShiftDate, nil
	}
	other := overrides.ClockOut
	if field == overrides.ClockOut {
		other = overrides.ClockIn
	}
	if ts := rec.Time(other); ts != nil {
		return *ts, nil
	}
	return time.Time{}, ErrNoBaseDate
}
