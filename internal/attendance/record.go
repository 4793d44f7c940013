package attendance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/phillip-england/caresuite/internal/clocktime"
	"github.com/phillip-england/caresuite/internal/overrides"
)

const DateLayout = "2006-01-02"

type Record struct {
	ID         string
	StaffName  string
	ShiftDate  time.Time
	ClockIn    *time.Time
	ClockOut   *time.Time
	Note       string
	ApprovedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r Record) Time(field overrides.Field) *time.Time {
	switch field {
	case overrides.ClockIn:
		return r.ClockIn
	case overrides.ClockOut:
		return r.ClockOut
	default:
		return nil
	}
}

func (r Record) Approved() bool {
	return r.ApprovedAt != nil
}

// Duration is the worked time, or zero while either end is missing.
func (r Record) Duration() time.Duration {
	if r.ClockIn == nil || r.ClockOut == nil || r.ClockOut.Before(*r.ClockIn) {
		return 0
	}
	return r.ClockOut.Sub(*r.ClockIn)
}

type recordWire struct {
	ID         string  `json:"id"`
	StaffName  string  `json:"staffName"`
	ShiftDate  string  `json:"shiftDate"`
	ClockIn    *string `json:"clockIn"`
	ClockOut   *string `json:"clockOut"`
	Note       string  `json:"note"`
	ApprovedAt *string `json:"approvedAt"`
	CreatedAt  string  `json:"createdAt,omitempty"`
	UpdatedAt  string  `json:"updatedAt,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	wire := recordWire{
		ID:         r.ID,
		StaffName:  r.StaffName,
		ClockIn:    isoPtr(r.ClockIn),
		ClockOut:   isoPtr(r.ClockOut),
		Note:       r.Note,
		ApprovedAt: isoPtr(r.ApprovedAt),
	}
	if !r.ShiftDate.IsZero() {
		wire.ShiftDate = r.ShiftDate.Format(DateLayout)
	}
	if !r.CreatedAt.IsZero() {
		wire.CreatedAt = r.CreatedAt.Format(clocktime.ISOLayout)
	}
	if !r.UpdatedAt.IsZero() {
		wire.UpdatedAt = r.UpdatedAt.Format(clocktime.ISOLayout)
	}
	return json.Marshal(wire)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var wire recordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := Record{ID: wire.ID, StaffName: wire.StaffName, Note: wire.Note}
	var err error
	if strings.TrimSpace(wire.ShiftDate) != "" {
		if out.ShiftDate, err = time.Parse(DateLayout, wire.ShiftDate); err != nil {
			return fmt.Errorf("shiftDate: %w", err)
		}
	}
	if out.ClockIn, err = parseISOPtr(wire.ClockIn); err != nil {
		return fmt.Errorf("clockIn: %w", err)
	}
	if out.ClockOut, err = parseISOPtr(wire.ClockOut); err != nil {
		return fmt.Errorf("clockOut: %w", err)
	}
	if out.ApprovedAt, err = parseISOPtr(wire.ApprovedAt); err != nil {
		return fmt.Errorf("approvedAt: %w", err)
	}
	if created, err := parseISOPtr(&wire.CreatedAt); err == nil && created != nil {
		out.CreatedAt = *created
	}
	if updated, err := parseISOPtr(&wire.UpdatedAt); err == nil && updated != nil {
		out.UpdatedAt = *updated
	}
	*r = out
	return nil
}

// Payload is the body of an update. A nil time clears the stored value.
type Payload struct {
	ID       string
	ClockIn  *time.Time
	ClockOut *time.Time
}

type payloadWire struct {
	ClockIn  *string `json:"clockIn"`
	ClockOut *string `json:"clockOut"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadWire{ClockIn: isoPtr(p.ClockIn), ClockOut: isoPtr(p.ClockOut)})
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var wire payloadWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	clockIn, err := parseISOPtr(wire.ClockIn)
	if err != nil {
		return fmt.Errorf("clockIn must be an ISO-8601 timestamp or null")
	}
	clockOut, err := parseISOPtr(wire.ClockOut)
	if err != nil {
		return fmt.Errorf("clockOut must be an ISO-8601 timestamp or null")
	}
	p.ClockIn = clockIn
	p.ClockOut = clockOut
	return nil
}

// NewEntry is a manually entered shift: a chosen date plus typed times.
type NewEntry struct {
	StaffName string
	ShiftDate time.Time
	ClockIn   *time.Time
	ClockOut  *time.Time
	Note      string
}

type newEntryWire struct {
	StaffName string  `json:"staffName"`
	ShiftDate string  `json:"shiftDate"`
	ClockIn   *string `json:"clockIn"`
	ClockOut  *string `json:"clockOut"`
	Note      string  `json:"note"`
}

func (e NewEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(newEntryWire{
		StaffName: e.StaffName,
		ShiftDate: e.ShiftDate.Format(DateLayout),
		ClockIn:   isoPtr(e.ClockIn),
		ClockOut:  isoPtr(e.ClockOut),
		Note:      e.Note,
	})
}

func (e *NewEntry) UnmarshalJSON(data []byte) error {
	var wire newEntryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	shiftDate, err := time.Parse(DateLayout, strings.TrimSpace(wire.ShiftDate))
	if err != nil {
		return fmt.Errorf("shiftDate must use YYYY-MM-DD")
	}
	clockIn, err := parseISOPtr(wire.ClockIn)
	if err != nil {
		return fmt.Errorf("clockIn must be an ISO-8601 timestamp or null")
	}
	clockOut, err := parseISOPtr(wire.ClockOut)
	if err != nil {
		return fmt.Errorf("clockOut must be an ISO-8601 timestamp or null")
	}
	*e = NewEntry{
		StaffName: strings.TrimSpace(wire.StaffName),
		ShiftDate: shiftDate,
		ClockIn:   clockIn,
		ClockOut:  clockOut,
		Note:      strings.TrimSpace(wire.Note),
	}
	return nil
}

type Filter struct {
	Date   string
	Status string
}

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

func isoPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := t.Format(clocktime.ISOLayout)
	return &value
}

func parseISOPtr(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(*value))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
