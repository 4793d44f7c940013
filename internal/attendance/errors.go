package attendance

import (
	"errors"
	"fmt"

	"github.com/phillip-england/caresuite/internal/clocktime"
	"github.com/phillip-england/caresuite/internal/overrides"
)

var (
	ErrUnknownRecord   = errors.New("attendance record not found")
	ErrIncomplete      = errors.New("time is incomplete")
	ErrInvalidTime     = errors.New("time is out of range")
	ErrNoBaseDate      = errors.New("record has no date to attach a time to")
	ErrStaffRequired   = errors.New("staff member is required")
	ErrDateRequired    = errors.New("shift date is required")
	ErrUnsavedChanges  = errors.New("save or discard changes before approving")
	ErrUnsupported     = errors.New("operation not supported by this adapter")
	ErrRejected        = errors.New("rejected by server")
	ErrAlreadyApproved = errors.New("record is already approved")
)

// FieldError reports a field that cannot be composed into a timestamp.
type FieldError struct {
	Field  overrides.Field
	Result clocktime.Result
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", FieldLabel(e.Field), e.Result.Message())
}

func (e *FieldError) Unwrap() error {
	if e.Result.Status == clocktime.Incomplete {
		return ErrIncomplete
	}
	return ErrInvalidTime
}

// SaveError wraps a failed persistence call. The record's edits are kept.
type SaveError struct {
	ID  string
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save attendance %s: %v", e.ID, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Retryable is false when the server refused the update itself; sending the
// same payload again would fail the same way.
func (e *SaveError) Retryable() bool {
	return !errors.Is(e.Err, ErrRejected)
}

func FieldLabel(field overrides.Field) string {
	switch field {
	case overrides.ClockIn:
		return "time in"
	case overrides.ClockOut:
		return "time out"
	default:
		return string(field)
	}
}
