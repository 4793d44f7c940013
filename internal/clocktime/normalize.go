package clocktime

import (
	"strings"
	"unicode/utf8"
)

const maxDigits = 4

// Normalize maps the previous fragment and the raw value of a time field
// after one keystroke to the fragment that should be displayed.
func Normalize(previous, raw string) string {
	if raw == "" {
		return ""
	}
	// Deletions pass through untouched so backspacing over an auto-inserted
	// colon is never undone by reformatting.
	if utf8.RuneCountInString(raw) < utf8.RuneCountInString(previous) {
		return raw
	}

	if head, tail, ok := strings.Cut(raw, ":"); ok {
		head = truncateRunes(head, 2)
		tail = truncateRunes(tail, 2)
		if tail == "" {
			return head
		}
		return head + ":" + tail
	}

	digits := onlyDigits(raw)
	switch {
	case len(digits) <= 2:
		return digits
	case len(digits) <= maxDigits:
		return digits[:2] + ":" + digits[2:]
	default:
		return previous
	}
}

// NormalizeValue normalizes a value submitted in one piece, such as a form
// field or a spreadsheet cell. A value that only fits by dropping characters
// comes back trimmed but otherwise unchanged, so Validate rejects it rather
// than it turning into an empty or different time.
func NormalizeValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := strings.ReplaceAll(value, ":", "")
	fragment := Normalize("", value)
	if fragment == "" || onlyDigits(digits) != digits || strings.ReplaceAll(fragment, ":", "") != digits {
		return value
	}
	return fragment
}

func onlyDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
