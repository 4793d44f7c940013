package clocktime

import (
	"fmt"
	"regexp"
	"strconv"
)

type Status int

const (
	Empty Status = iota
	Incomplete
	Valid
	InvalidHour
	InvalidMinute
)

const (
	MessageInvalidHour   = "Hour must be between 00 and 23"
	MessageInvalidMinute = "Minute must be between 00 and 59"
	MessageIncomplete    = "Time must use HH:MM"
)

var completePattern = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2})$`)

// Result is the outcome of validating a fragment. Hour and Minute are only
// meaningful when Status is Valid.
type Result struct {
	Status Status
	Hour   int
	Minute int
}

func Validate(fragment string) Result {
	if fragment == "" {
		return Result{Status: Empty}
	}
	match := completePattern.FindStringSubmatch(fragment)
	if match == nil {
		return Result{Status: Incomplete}
	}
	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])
	if hour < 0 || hour > 23 {
		return Result{Status: InvalidHour}
	}
	if minute < 0 || minute > 59 {
		return Result{Status: InvalidMinute}
	}
	return Result{Status: Valid, Hour: hour, Minute: minute}
}

func (r Result) OK() bool {
	return r.Status == Valid
}

// Invalid reports a complete fragment whose hour or minute is out of range.
func (r Result) Invalid() bool {
	return r.Status == InvalidHour || r.Status == InvalidMinute
}

// Message returns the text shown next to the field, or "" when there is
// nothing to report.
func (r Result) Message() string {
	switch r.Status {
	case InvalidHour:
		return MessageInvalidHour
	case InvalidMinute:
		return MessageInvalidMinute
	case Incomplete:
		return MessageIncomplete
	default:
		return ""
	}
}

func (s Status) String() string {
	switch s {
	case Empty:
		return "empty"
	case Incomplete:
		return "incomplete"
	case Valid:
		return "valid"
	case InvalidHour:
		return "invalid_hour"
	case InvalidMinute:
		return "invalid_minute"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}
