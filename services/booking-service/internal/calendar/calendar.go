// Package calendar does civil-date arithmetic for one business location.
//
// A civil date is a time.Time at midnight UTC. It is derived from the
// business's wall clock once and then compared, shifted and serialized
// without any further zone conversion, so a date never drifts across
// midnight between computation and storage.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidDate  = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidClock = errors.New("invalid time of day, expected HH:MM")
)

// Date returns the civil date of t as seen on the wall clock in loc.
func Date(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// DaysBetween returns b-a in whole days; both must be civil dates.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// ParseClock parses "HH:MM" (24h) into minutes after midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, ErrInvalidClock
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, ErrInvalidClock
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, ErrInvalidClock
	}
	return hh*60 + mm, nil
}

// NormalizeClock accepts "H:MM", "HH:MM" or "HH:MM:SS" and returns "HH:MM".
func NormalizeClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if parts := strings.Split(s, ":"); len(parts) == 3 && parts[2] == "00" {
		s = parts[0] + ":" + parts[1]
	}
	if len(s) == 4 && s[1] == ':' {
		s = "0" + s
	}
	minutes, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatClock(minutes), nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ClockOf returns the minutes after midnight of t on the wall clock in loc.
func ClockOf(t time.Time, loc *time.Location) int {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Hour()*60 + t.Minute()
}

// NextWeekday returns the first date on or after d that falls on weekday.
func NextWeekday(d time.Time, weekday time.Weekday) time.Time {
	diff := (int(weekday) - int(d.Weekday()) + 7) % 7
	return AddDays(d, diff)
}
