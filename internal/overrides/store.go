package overrides

import (
	"sort"
	"sync"
)

type Field string

const (
	ClockIn  Field = "clockIn"
	ClockOut Field = "clockOut"
)

func (f Field) Valid() bool {
	return f == ClockIn || f == ClockOut
}

func ParseField(value string) (Field, bool) {
	switch value {
	case "clockIn", "clock_in", "time_in":
		return ClockIn, true
	case "clockOut", "clock_out", "time_out":
		return ClockOut, true
	default:
		return "", false
	}
}

// Entry holds the uncommitted fragments of one record. A nil field has not
// been touched.
type Entry struct {
	ClockIn  *string
	ClockOut *string
}

func (e Entry) Field(field Field) (string, bool) {
	var value *string
	switch field {
	case ClockIn:
		value = e.ClockIn
	case ClockOut:
		value = e.ClockOut
	}
	if value == nil {
		return "", false
	}
	return *value, true
}

// Store keeps in-progress edits keyed by record id. Records without edits
// have no entry at all, so IsDirty is a single lookup.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewStore() *Store {
	return &Store{entries: map[string]Entry{}}
}

func (s *Store) SetField(id string, field Field, fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = map[string]Entry{}
	}
	entry := s.entries[id]
	value := fragment
	switch field {
	case ClockIn:
		entry.ClockIn = &value
	case ClockOut:
		entry.ClockOut = &value
	default:
		return
	}
	s.entries[id] = entry
}

func (s *Store) GetField(id string, field Field, fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, ok := s.entries[id].Field(field); ok {
		return value
	}
	return fallback
}

func (s *Store) Entry(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	return entry, ok
}

func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

func (s *Store) IsDirty(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

func (s *Store) DirtyIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
