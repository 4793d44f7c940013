package overrides

import (
	"sync"
	"testing"
)

func TestUntouchedRecordFallsBackToBaseline(t *testing.T) {
	s := NewStore()
	if s.IsDirty("rec-1") {
		t.Fatalf("expected untouched record to be clean")
	}
	if got := s.GetField("rec-1", ClockIn, "08:00"); got != "08:00" {
		t.Fatalf("expected baseline fallback, got %q", got)
	}
	if s.Len() != 0 {
		t.Fatalf("expected no entries, got %d", s.Len())
	}
}

func TestSetFieldMarksDirtyAndOverridesOnlyThatField(t *testing.T) {
	s := NewStore()
	s.SetField("rec-1", ClockIn, "09:1")

	if !s.IsDirty("rec-1") {
		t.Fatalf("expected record to be dirty")
	}
	if got := s.GetField("rec-1", ClockIn, "08:00"); got != "09:1" {
		t.Fatalf("expected override, got %q", got)
	}
	if got := s.GetField("rec-1", ClockOut, "17:00"); got != "17:00" {
		t.Fatalf("expected untouched field to fall back, got %q", got)
	}
	if s.IsDirty("rec-2") {
		t.Fatalf("expected other records to stay clean")
	}
}

func TestEmptyFragmentIsAnOverride(t *testing.T) {
	s := NewStore()
	s.SetField("rec-1", ClockOut, "")

	if got := s.GetField("rec-1", ClockOut, "17:00"); got != "" {
		t.Fatalf("expected cleared field to override baseline, got %q", got)
	}
	entry, ok := s.Entry("rec-1")
	if !ok || entry.ClockOut == nil || entry.ClockIn != nil {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestClearRemovesEntry(t *testing.T) {
	s := NewStore()
	s.SetField("rec-1", ClockIn, "09:15")
	s.SetField("rec-2", ClockOut, "17:00")
	s.Clear("rec-1")

	if s.IsDirty("rec-1") {
		t.Fatalf("expected rec-1 to be clean after clear")
	}
	ids := s.DirtyIDs()
	if len(ids) != 1 || ids[0] != "rec-2" {
		t.Fatalf("unexpected dirty ids %v", ids)
	}
}

func TestUnknownFieldIgnored(t *testing.T) {
	s := NewStore()
	s.SetField("rec-1", Field("breakStart"), "12:00")
	if s.IsDirty("rec-1") {
		t.Fatalf("expected unknown field to be ignored")
	}
}

func TestParseField(t *testing.T) {
	if f, ok := ParseField("time_in"); !ok || f != ClockIn {
		t.Fatalf("expected time_in to parse as clock in")
	}
	if f, ok := ParseField("clockOut"); !ok || f != ClockOut {
		t.Fatalf("expected clockOut to parse as clock out")
	}
	if _, ok := ParseField("lunch"); ok {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestConcurrentWriters(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SetField("rec-1", ClockIn, "09:00")
			_ = s.IsDirty("rec-1")
		}()
	}
	wg.Wait()
	if got := s.GetField("rec-1", ClockIn, ""); got != "09:00" {
		t.Fatalf("expected 09:00, got %q", got)
	}
}
