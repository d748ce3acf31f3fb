package storage

import (
	"database/sql"
	"testing"
	"time"
)

// The sqlite driver stores times as strings and compares them byte-wise in
// range queries, so the encoding must sort exactly like the times do. The
// trap is sub-second precision around a day boundary: a whole-second
// midnight must not sort after a fractional instant just past it.
func TestTimeEncodingSortsLikeTime(t *testing.T) {
	t.Parallel()

	midnight := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	ordered := []time.Time{
		midnight.Add(-time.Second),
		midnight.Add(-500 * time.Millisecond),
		midnight,
		midnight.Add(123400000 * time.Nanosecond), // .1234
		midnight.Add(500 * time.Millisecond),
		midnight.Add(time.Second),
		time.Date(2026, 8, 29, 7, 5, 0, 1, time.UTC).In(time.FixedZone("WIB", 7*3600)),
	}

	prev := ""
	for i, tm := range ordered {
		s, ok := fmtTime(tm).(string)
		if !ok {
			t.Fatalf("fmtTime(%v) is not a string", tm)
		}
		if len(s) != len("2026-08-29T00:00:00.000000000Z") {
			t.Fatalf("encoded %q is not fixed-width", s)
		}
		if i > 0 && prev >= s {
			t.Fatalf("order broken: %q (for %v) >= %q", prev, ordered[i-1], s)
		}
		if back := parseTime(sql.NullString{String: s, Valid: true}); !back.Equal(tm) {
			t.Fatalf("round trip: %q parsed back as %v, want %v", s, back, tm)
		}
		prev = s
	}
}

func TestTimeEncodingZeroIsNull(t *testing.T) {
	t.Parallel()
	if v := fmtTime(time.Time{}); v != nil {
		t.Fatalf("zero time encoded as %v, want NULL", v)
	}
	if got := parseTime(sql.NullString{}); !got.IsZero() {
		t.Fatalf("NULL parsed as %v, want zero", got)
	}
}
