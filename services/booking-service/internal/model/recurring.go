package model

import "time"

// RecurringRule books the same client into the same weekly slot every
// RepeatIntervalWeeks weeks, counted from StartDate.
type RecurringRule struct {
	ID                  string
	BusinessID          string
	ClientName          string
	ClientPhone         string
	DayOfWeek           int
	TimeOfDay           string
	ServiceName         string
	RepeatIntervalWeeks int
	StartDate           *time.Time
	EndDate             *time.Time
	StaffID             string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
