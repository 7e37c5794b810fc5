package recurring

import (
	"time"

	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
)

// NearestOccurrence returns the next date falling on dayOfWeek as seen in
// loc. Today counts only while its slot at clockMinutes is still ahead.
func NearestOccurrence(now time.Time, loc *time.Location, dayOfWeek, clockMinutes int) time.Time {
	today := calendar.Date(now, loc)
	next := calendar.NextWeekday(today, time.Weekday(dayOfWeek))
	if next.Equal(today) && calendar.ClockOf(now, loc) >= clockMinutes {
		next = calendar.AddDays(next, 7)
	}
	return next
}

// FirstOccurrence returns the first date the rule covers from now on: on or
// after both the nearest weekday and the start date, on an interval week
// counted from the start date. ok is false when the end date comes first.
func FirstOccurrence(rule model.RecurringRule, now time.Time, loc *time.Location) (first time.Time, ok bool, err error) {
	clock, err := calendar.ParseClock(rule.TimeOfDay)
	if err != nil {
		return time.Time{}, false, err
	}
	d := NearestOccurrence(now, loc, rule.DayOfWeek, clock)
	if rule.StartDate != nil {
		anchor := calendar.NextWeekday(*rule.StartDate, time.Weekday(rule.DayOfWeek))
		if anchor.After(d) {
			d = anchor
		} else if off := (calendar.DaysBetween(anchor, d) / 7) % intervalOf(rule); off != 0 {
			d = calendar.AddDays(d, 7*(intervalOf(rule)-off))
		}
	}
	if rule.EndDate != nil && d.After(*rule.EndDate) {
		return time.Time{}, false, nil
	}
	return d, true, nil
}

func intervalOf(rule model.RecurringRule) int {
	if rule.RepeatIntervalWeeks < 1 {
		return 1
	}
	return rule.RepeatIntervalWeeks
}

// Occurrences lists the dates to materialize for rule over the next weeks
// weekly slots, starting at the nearest occurrence. Dates outside the rule's
// bounds and weeks that do not fall on the repeat interval are left out.
func Occurrences(rule model.RecurringRule, now time.Time, loc *time.Location, weeks int) ([]time.Time, error) {
	clock, err := calendar.ParseClock(rule.TimeOfDay)
	if err != nil {
		return nil, err
	}
	first := NearestOccurrence(now, loc, rule.DayOfWeek, clock)

	interval := intervalOf(rule)
	anchor := first
	if rule.StartDate != nil {
		anchor = calendar.NextWeekday(*rule.StartDate, time.Weekday(rule.DayOfWeek))
	}

	var dates []time.Time
	for w := 0; w < weeks; w++ {
		d := calendar.AddDays(first, 7*w)
		if rule.StartDate != nil && d.Before(*rule.StartDate) {
			continue
		}
		if rule.EndDate != nil && d.After(*rule.EndDate) {
			continue
		}
		if (calendar.DaysBetween(anchor, d)/7)%interval != 0 {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}
