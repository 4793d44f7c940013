package clocktime

import "time"

const (
	FragmentLayout = "15:04"
	// ISOLayout is the wire format for persisted timestamps.
	ISOLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Compose puts the time typed in fragment on the calendar date of base.
// It reports false for an empty fragment (no time) and for anything that
// does not validate. Seconds and sub-second precision are always zero and
// base's location is kept as is.
func Compose(fragment string, base time.Time) (time.Time, bool) {
	if fragment == "" {
		return time.Time{}, false
	}
	result := Validate(fragment)
	if !result.OK() {
		return time.Time{}, false
	}
	return time.Date(base.Year(), base.Month(), base.Day(), result.Hour, result.Minute, 0, 0, base.Location()), true
}

// Format renders a stored timestamp as the fragment shown before any edit.
func Format(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(FragmentLayout)
}

func FormatISO(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(ISOLayout)
}
