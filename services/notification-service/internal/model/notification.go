package model

import "time"

// Notification types shown in the in-app inbox.
const (
	TypeWaitlistJoined       = "waitlist_joined"
	TypeSlotOpened           = "slot_opened"
	TypeRecurringCreated     = "recurring_created"
	TypeAppointmentCancelled = "appointment_cancelled"
	TypeGeneral              = "general"
)

type Notification struct {
	ID         string
	BusinessID string
	UserPhone  string
	Title      string
	Body       string
	Type       string
	Data       map[string]string
	IsRead     bool
	ReadAt     *time.Time
	CreatedAt  time.Time
}

type PushToken struct {
	BusinessID string
	UserPhone  string
	Token      string
	Platform   string
}
