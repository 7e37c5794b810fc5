// Package notify turns booking changes into outbox events that
// notification-service fans out to staff and clients.
package notify

import (
	"context"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/events"
	"github.com/itaybe6/barber-English-sub002/libs/outbox"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
)

type Emitter struct {
	db     outbox.Execer
	outbox *outbox.Repository
}

// NewEmitter writes through db, normally the pool. Calls that must commit
// with a state change take their own Execer instead.
func NewEmitter(db outbox.Execer, repo *outbox.Repository) *Emitter {
	return &Emitter{db: db, outbox: repo}
}

func (e *Emitter) emit(ctx context.Context, db outbox.Execer, aggregateType, aggregateID, eventType, businessID string, payload any) error {
	evt, err := outbox.NewEvent(aggregateType, aggregateID, eventType, businessID, payload)
	if err != nil {
		return err
	}
	return e.outbox.Insert(ctx, db, evt)
}

func (e *Emitter) WaitlistJoined(ctx context.Context, entry model.WaitlistEntry) error {
	audience := events.AudienceAdmins
	if entry.StaffID != "" {
		audience = events.AudienceStaff
	}
	return e.emit(ctx, e.db, "waitlist_entry", entry.ID, events.TopicWaitlistJoined, entry.BusinessID, events.WaitlistJoined{
		BusinessID:    entry.BusinessID,
		EntryID:       entry.ID,
		ClientName:    entry.ClientName,
		ClientPhone:   entry.ClientPhone,
		ServiceName:   entry.ServiceName,
		RequestedDate: calendar.FormatDate(entry.RequestedDate),
		TimePeriod:    string(entry.TimePeriod),
		StaffID:       entry.StaffID,
		Audience:      audience,
	})
}

func (e *Emitter) SlotOpened(ctx context.Context, entry model.WaitlistEntry, slot model.Appointment) error {
	return e.emit(ctx, e.db, "waitlist_entry", entry.ID, events.TopicSlotOpened, entry.BusinessID, events.SlotOpened{
		BusinessID:  entry.BusinessID,
		EntryID:     entry.ID,
		ClientName:  entry.ClientName,
		ClientPhone: entry.ClientPhone,
		ServiceName: entry.ServiceName,
		SlotDate:    calendar.FormatDate(slot.SlotDate),
		SlotTime:    slot.SlotTime,
		StaffID:     slot.StaffID,
	})
}

func (e *Emitter) RecurringCreated(ctx context.Context, rule model.RecurringRule, first time.Time) error {
	return e.emit(ctx, e.db, "recurring_rule", rule.ID, events.TopicRecurringCreated, rule.BusinessID, events.RecurringCreated{
		BusinessID:   rule.BusinessID,
		RuleID:       rule.ID,
		ClientName:   rule.ClientName,
		ClientPhone:  rule.ClientPhone,
		ServiceName:  rule.ServiceName,
		DayOfWeek:    rule.DayOfWeek,
		TimeOfDay:    rule.TimeOfDay,
		IntervalWeek: rule.RepeatIntervalWeeks,
		StaffID:      rule.StaffID,
		FirstDate:    calendar.FormatDate(first),
	})
}

// AppointmentCancelled is written inside the cancelling transaction.
func (e *Emitter) AppointmentCancelled(ctx context.Context, tx outbox.Execer, appt model.Appointment, cancelledBy string) error {
	return e.emit(ctx, tx, "appointment", appt.ID, events.TopicAppointmentCancelled, appt.BusinessID, events.AppointmentCancelled{
		BusinessID:    appt.BusinessID,
		AppointmentID: appt.ID,
		ClientName:    appt.ClientName,
		ClientPhone:   appt.ClientPhone,
		ServiceName:   appt.ServiceName,
		SlotDate:      calendar.FormatDate(appt.SlotDate),
		SlotTime:      appt.SlotTime,
		StaffID:       appt.StaffID,
		CancelledBy:   cancelledBy,
	})
}
