package calendar

import (
	"testing"
	"time"
)

func TestDateUsesBusinessWallClock(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 22:30 UTC on Jan 5 is already Jan 6 in Jerusalem (UTC+2).
	instant := time.Date(2026, 1, 5, 22, 30, 0, 0, time.UTC)
	if got := FormatDate(Date(instant, loc)); got != "2026-01-06" {
		t.Fatalf("expected 2026-01-06, got %s", got)
	}
	if got := FormatDate(Date(instant, time.UTC)); got != "2026-01-05" {
		t.Fatalf("expected 2026-01-05, got %s", got)
	}
	if got := ClockOf(instant, loc); got != 30 {
		t.Fatalf("expected 00:30 local, got %d minutes", got)
	}
}

func TestParseAndFormatDate(t *testing.T) {
	d, err := ParseDate(" 2026-03-10 ")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Location() != time.UTC || d.Hour() != 0 {
		t.Fatalf("expected civil date at UTC midnight, got %v", d)
	}
	if FormatDate(AddDays(d, 21)) != "2026-03-31" {
		t.Fatalf("unexpected AddDays result")
	}
	if _, err := ParseDate("10/03/2026"); err != ErrInvalidDate {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestDaysBetweenAcrossDST(t *testing.T) {
	a, _ := ParseDate("2026-03-20")
	b, _ := ParseDate("2026-04-03")
	if n := DaysBetween(a, b); n != 14 {
		t.Fatalf("expected 14 days, got %d", n)
	}
}

func TestClockParsing(t *testing.T) {
	cases := map[string]string{"14:00": "14:00", "9:05": "09:05", "07:30:00": "07:30"}
	for in, want := range cases {
		got, err := NormalizeClock(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeClock(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "24:00", "12:60", "1200", "ab:cd", "12:30:15"} {
		if _, err := NormalizeClock(bad); err == nil {
			t.Fatalf("NormalizeClock(%q) expected error", bad)
		}
	}
}

func TestNextWeekday(t *testing.T) {
	thu, _ := ParseDate("2026-01-08")
	if thu.Weekday() != time.Thursday {
		t.Fatalf("fixture is not a Thursday")
	}
	if got := FormatDate(NextWeekday(thu, time.Tuesday)); got != "2026-01-13" {
		t.Fatalf("expected 2026-01-13, got %s", got)
	}
	if got := NextWeekday(thu, time.Thursday); !got.Equal(thu) {
		t.Fatalf("expected same day, got %s", FormatDate(got))
	}
}
