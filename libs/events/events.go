// Package events holds the topics and payloads shared by booking-service
// producers and notification-service consumers.
package events

const (
	TopicWaitlistJoined       = "booking.waitlist.joined.v1"
	TopicSlotOpened           = "booking.slot.opened.v1"
	TopicRecurringCreated     = "booking.recurring.created.v1"
	TopicAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Audience selects who receives a staff-facing notification.
const (
	AudienceStaff  = "staff"
	AudienceAdmins = "admins"
	AudienceClient = "client"
)

// WaitlistJoined announces a new waitlist entry to staff. When StaffID is
// empty the admins of the business are notified instead.
type WaitlistJoined struct {
	BusinessID    string `json:"business_id"`
	EntryID       string `json:"entry_id"`
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone"`
	ServiceName   string `json:"service_name"`
	RequestedDate string `json:"requested_date"`
	TimePeriod    string `json:"time_period"`
	StaffID       string `json:"staff_id,omitempty"`
	Audience      string `json:"audience"`
}

// SlotOpened tells a waiting client that a matching slot became free.
type SlotOpened struct {
	BusinessID  string `json:"business_id"`
	EntryID     string `json:"entry_id"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	ServiceName string `json:"service_name"`
	SlotDate    string `json:"slot_date"`
	SlotTime    string `json:"slot_time"`
	StaffID     string `json:"staff_id,omitempty"`
}

type RecurringCreated struct {
	BusinessID   string `json:"business_id"`
	RuleID       string `json:"rule_id"`
	ClientName   string `json:"client_name"`
	ClientPhone  string `json:"client_phone"`
	ServiceName  string `json:"service_name"`
	DayOfWeek    int    `json:"day_of_week"`
	TimeOfDay    string `json:"time_of_day"`
	IntervalWeek int    `json:"repeat_interval_weeks"`
	StaffID      string `json:"staff_id,omitempty"`
	FirstDate    string `json:"first_date"`
}

type AppointmentCancelled struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone"`
	ServiceName   string `json:"service_name"`
	SlotDate      string `json:"slot_date"`
	SlotTime      string `json:"slot_time"`
	StaffID       string `json:"staff_id,omitempty"`
	CancelledBy   string `json:"cancelled_by"`
}
