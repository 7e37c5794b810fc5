package model

import "time"

// Appointment is one concrete bookable slot. An available slot has no
// client; a booked slot carries the client and service it was booked for.
type Appointment struct {
	ID              string
	BusinessID      string
	SlotDate        time.Time
	SlotTime        string
	StaffID         string
	IsAvailable     bool
	ClientName      string
	ClientPhone     string
	ServiceName     string
	DurationMinutes int
	RecurringRuleID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SlotKey identifies a slot; storage enforces one row per key.
type SlotKey struct {
	BusinessID string
	Date       time.Time
	Time       string
	StaffID    string
}

func (a Appointment) Key() SlotKey {
	return SlotKey{BusinessID: a.BusinessID, Date: a.SlotDate, Time: a.SlotTime, StaffID: a.StaffID}
}

// Booking is what gets stamped onto a slot when it is taken.
type Booking struct {
	ClientName      string
	ClientPhone     string
	ServiceName     string
	RecurringRuleID string
}
