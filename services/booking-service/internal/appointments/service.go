// Package appointments manages concrete slots: opening a staff member's day,
// booking an open slot and cancelling a booking.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/outbox"
	"github.com/itaybe6/barber-English-sub002/libs/phone"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/availability"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already booked")
	ErrNotBooked           = errors.New("appointment is not booked")
)

type Store interface {
	InsertAvailable(ctx context.Context, slots []model.Appointment) (int64, error)
	ListByDate(ctx context.Context, businessID string, f storage.SlotFilter) ([]model.Appointment, error)
	Book(ctx context.Context, businessID, id string, b model.Booking) (model.Appointment, error)
	CancelBooked(ctx context.Context, businessID, id string, within func(pgx.Tx, model.Appointment) error) (model.Appointment, error)
}

type Notifier interface {
	AppointmentCancelled(ctx context.Context, tx outbox.Execer, appt model.Appointment, cancelledBy string) error
}

// Waitlist is told about every slot a cancellation reopens.
type Waitlist interface {
	NotifySlotOpened(ctx context.Context, slot model.Appointment) (int, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, name, businessID string, fn func(context.Context) error) bool
}

type Config struct {
	Location        *time.Location
	PhoneRegion     string
	DurationMinutes int
	Now             func() time.Time
}

type Service struct {
	store    Store
	notifier Notifier
	waitlist Waitlist
	dispatch Dispatcher
	logger   *slog.Logger
	loc      *time.Location
	region   string
	duration int
	now      func() time.Time
}

func NewService(store Store, notifier Notifier, waitlist Waitlist, dispatch Dispatcher, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DurationMinutes <= 0 {
		cfg.DurationMinutes = 30
	}
	return &Service{
		store:    store,
		notifier: notifier,
		waitlist: waitlist,
		dispatch: dispatch,
		logger:   logger,
		loc:      cfg.Location,
		region:   cfg.PhoneRegion,
		duration: cfg.DurationMinutes,
		now:      cfg.Now,
	}
}

// GenerateInput opens a staff member's day. Open and Close are HH:MM;
// StepMinutes defaults to the duration.
type GenerateInput struct {
	Date            time.Time
	StaffID         string
	Open            string
	Close           string
	DurationMinutes int
	StepMinutes     int
}

// Generate creates open slots for one day. Slots overlapping a booking or
// already started are left out and existing rows are kept as they are.
func (s *Service) Generate(ctx context.Context, businessID string, in GenerateInput) ([]model.Appointment, int64, error) {
	open, err := calendar.ParseClock(in.Open)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open must be HH:MM", ErrInvalidRequest)
	}
	closing, err := calendar.ParseClock(in.Close)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: close must be HH:MM", ErrInvalidRequest)
	}
	if closing <= open {
		return nil, 0, fmt.Errorf("%w: close must be after open", ErrInvalidRequest)
	}
	if in.Date.IsZero() {
		return nil, 0, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	duration := in.DurationMinutes
	if duration <= 0 {
		duration = s.duration
	}
	step := in.StepMinutes
	if step <= 0 {
		step = duration
	}

	today := calendar.Date(s.now(), s.loc)
	notBefore := 0
	switch {
	case in.Date.Before(today):
		return nil, 0, fmt.Errorf("%w: date is in the past", ErrInvalidRequest)
	case in.Date.Equal(today):
		notBefore = calendar.ClockOf(s.now(), s.loc) + 1
	}

	staffID := strings.TrimSpace(in.StaffID)
	existing, err := s.store.ListByDate(ctx, businessID, storage.SlotFilter{Date: in.Date, StaffID: staffID})
	if err != nil {
		return nil, 0, fmt.Errorf("list slots: %w", err)
	}
	var busy []availability.Interval
	for _, a := range existing {
		if a.IsAvailable {
			continue
		}
		start, err := calendar.ParseClock(a.SlotTime)
		if err != nil {
			continue
		}
		busy = append(busy, availability.Interval{Start: start, End: start + durationOr(a.DurationMinutes, s.duration)})
	}

	starts := availability.Starts(availability.Window{Open: open, Close: closing}, duration, step, busy, notBefore)
	slots := make([]model.Appointment, 0, len(starts))
	for _, m := range starts {
		slots = append(slots, model.Appointment{
			BusinessID:      businessID,
			SlotDate:        in.Date,
			SlotTime:        calendar.FormatClock(m),
			StaffID:         staffID,
			IsAvailable:     true,
			DurationMinutes: duration,
		})
	}
	inserted, err := s.store.InsertAvailable(ctx, slots)
	if err != nil {
		return nil, inserted, fmt.Errorf("insert slots: %w", err)
	}
	return slots, inserted, nil
}

func (s *Service) List(ctx context.Context, businessID string, f storage.SlotFilter) ([]model.Appointment, error) {
	return s.store.ListByDate(ctx, businessID, f)
}

type BookInput struct {
	ClientName  string
	ClientPhone string
	ServiceName string
}

// Book takes an open slot. Only one of two racing clients gets it.
func (s *Service) Book(ctx context.Context, businessID, id string, in BookInput) (model.Appointment, error) {
	b := model.Booking{
		ClientName:  strings.TrimSpace(in.ClientName),
		ServiceName: strings.TrimSpace(in.ServiceName),
	}
	if b.ClientName == "" || b.ServiceName == "" {
		return model.Appointment{}, fmt.Errorf("%w: client_name and service_name are required", ErrInvalidRequest)
	}
	p, err := phone.Normalize(in.ClientPhone, s.region)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: client_phone is not a valid phone number", ErrInvalidRequest)
	}
	b.ClientPhone = p

	appt, err := s.store.Book(ctx, businessID, id, b)
	switch {
	case errors.Is(err, storage.ErrConflict):
		return model.Appointment{}, ErrSlotTaken
	case errors.Is(err, storage.ErrNotFound):
		return model.Appointment{}, ErrAppointmentNotFound
	case err != nil:
		return model.Appointment{}, fmt.Errorf("book slot: %w", err)
	}
	return appt, nil
}

// Cancel reopens a booked slot. The cancellation event commits with the
// release; waiting clients are told afterwards in the background.
func (s *Service) Cancel(ctx context.Context, businessID, id, cancelledBy string) (model.Appointment, error) {
	booked, err := s.store.CancelBooked(ctx, businessID, id, func(tx pgx.Tx, appt model.Appointment) error {
		if s.notifier == nil {
			return nil
		}
		return s.notifier.AppointmentCancelled(ctx, tx, appt, cancelledBy)
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return model.Appointment{}, ErrAppointmentNotFound
	case errors.Is(err, storage.ErrNotBooked):
		return model.Appointment{}, ErrNotBooked
	case err != nil:
		return model.Appointment{}, fmt.Errorf("cancel appointment: %w", err)
	}

	opened := booked
	opened.IsAvailable = true
	opened.ClientName, opened.ClientPhone, opened.ServiceName, opened.RecurringRuleID = "", "", "", ""
	if s.waitlist != nil && s.dispatch != nil {
		s.dispatch.Dispatch(ctx, "waitlist.slot_opened", businessID, func(ctx context.Context) error {
			_, err := s.waitlist.NotifySlotOpened(ctx, opened)
			return err
		})
	}
	s.logger.Info("appointment cancelled",
		"business_id", businessID,
		"appointment_id", id,
		"date", calendar.FormatDate(booked.SlotDate),
		"time", booked.SlotTime,
		"cancelled_by", cancelledBy,
	)
	return opened, nil
}

func durationOr(minutes, fallback int) int {
	if minutes <= 0 {
		return fallback
	}
	return minutes
}
