package localtime

import (
	"testing"
	"time"

	"routined/pkg/logx"
)

func TestResolverFallsBackToUTC(t *testing.T) {
	t.Parallel()
	r := NewResolver(logx.Nop())

	if loc := r.Location("Not/AZone"); loc != time.UTC {
		t.Fatalf("invalid zone resolved to %v, want UTC", loc)
	}
	if loc := r.Location(""); loc != time.UTC {
		t.Fatalf("empty zone resolved to %v, want UTC", loc)
	}
	loc := r.Location("America/New_York")
	if loc.String() != "America/New_York" {
		t.Fatalf("resolved %v, want America/New_York", loc)
	}
	// cached lookup returns the same pointer
	if again := r.Location("America/New_York"); again != loc {
		t.Fatal("expected cached location")
	}
}

func TestValid(t *testing.T) {
	t.Parallel()
	if !Valid("Asia/Jakarta") {
		t.Fatal("Asia/Jakarta should be valid")
	}
	if Valid("Mars/OlympusMons") || Valid("") {
		t.Fatal("bogus zones should be invalid")
	}
}

func TestDayBoundaries(t *testing.T) {
	t.Parallel()
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}

	// 2026-03-15 22:30 in LA is 2026-03-16 05:30 UTC.
	at := time.Date(2026, 3, 16, 5, 30, 0, 0, time.UTC)

	start := StartOfDay(at, la)
	if got := start.In(la); got.Hour() != 0 || got.Day() != 15 {
		t.Fatalf("StartOfDay = %v, want local midnight Mar 15", got)
	}
	next := NextMidnight(at, la)
	if got := next.In(la); got.Day() != 16 || got.Hour() != 0 {
		t.Fatalf("NextMidnight = %v, want local midnight Mar 16", got)
	}
	if !SameLocalDay(at, start, la) {
		t.Fatal("instant and its day start should share a local day")
	}
	if SameLocalDay(at, next, la) {
		t.Fatal("midnight belongs to the next local day")
	}
}

func TestNextAt(t *testing.T) {
	t.Parallel()
	jk, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatal(err)
	}

	// 03:00 local: today's 05:00 slot is still ahead.
	early := time.Date(2026, 8, 29, 3, 0, 0, 0, jk)
	next := NextAt(early, 5, 0, jk)
	if got := next.In(jk); got.Day() != 29 || got.Hour() != 5 {
		t.Fatalf("NextAt before slot = %v, want today 05:00", got)
	}

	// 05:00 sharp: "strictly after" moves to tomorrow.
	at := time.Date(2026, 8, 29, 5, 0, 0, 0, jk)
	next = NextAt(at, 5, 0, jk)
	if got := next.In(jk); got.Day() != 30 || got.Hour() != 5 {
		t.Fatalf("NextAt on slot = %v, want tomorrow 05:00", got)
	}
}

func TestNextAtAcrossDSTGap(t *testing.T) {
	t.Parallel()
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}

	// US spring-forward 2026-03-08: 02:00-03:00 local does not exist.
	before := time.Date(2026, 3, 8, 1, 0, 0, 0, la)
	next := NextAt(before, 2, 30, la)
	if !next.After(before) {
		t.Fatalf("NextAt across the gap did not move forward: %v", next)
	}
	if got := next.In(la); got.Day() != 8 {
		t.Fatalf("normalized gap slot should stay on Mar 8, got %v", got)
	}
}
