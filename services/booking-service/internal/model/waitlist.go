package model

import "time"

type TimePeriod string

const (
	PeriodMorning   TimePeriod = "morning"
	PeriodAfternoon TimePeriod = "afternoon"
	PeriodEvening   TimePeriod = "evening"
	PeriodAny       TimePeriod = "any"
)

func (p TimePeriod) Valid() bool {
	switch p {
	case PeriodMorning, PeriodAfternoon, PeriodEvening, PeriodAny:
		return true
	}
	return false
}

// Covers reports whether a slot starting at minutes after midnight falls in p.
// Morning ends at 12:00 and afternoon at 17:00.
func (p TimePeriod) Covers(minutes int) bool {
	switch p {
	case PeriodAny:
		return true
	case PeriodMorning:
		return minutes < 12*60
	case PeriodAfternoon:
		return minutes >= 12*60 && minutes < 17*60
	case PeriodEvening:
		return minutes >= 17*60
	}
	return false
}

type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistContacted WaitlistStatus = "contacted"
	WaitlistBooked    WaitlistStatus = "booked"
	WaitlistCancelled WaitlistStatus = "cancelled"
)

func (s WaitlistStatus) Valid() bool {
	switch s {
	case WaitlistWaiting, WaitlistContacted, WaitlistBooked, WaitlistCancelled:
		return true
	}
	return false
}

type WaitlistEntry struct {
	ID            string
	BusinessID    string
	ClientName    string
	ClientPhone   string
	ServiceName   string
	RequestedDate time.Time
	TimePeriod    TimePeriod
	StaffID       string
	Status        WaitlistStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
