// Package waitlist registers clients who want a day that is fully booked and
// tells them when a matching slot opens up.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/phone"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/storage"
)

type Store interface {
	FindWaiting(ctx context.Context, businessID, phone string, date time.Time) (model.WaitlistEntry, bool, error)
	Insert(ctx context.Context, e model.WaitlistEntry) (model.WaitlistEntry, error)
	List(ctx context.Context, businessID string, f storage.WaitlistFilter) ([]model.WaitlistEntry, error)
	ListWaitingForDate(ctx context.Context, businessID string, date time.Time) ([]model.WaitlistEntry, error)
	UpdateStatus(ctx context.Context, businessID, id string, status model.WaitlistStatus) (model.WaitlistEntry, error)
	MarkContacted(ctx context.Context, businessID string, ids []string) ([]string, error)
	Delete(ctx context.Context, businessID, id string) error
}

type Notifier interface {
	WaitlistJoined(ctx context.Context, entry model.WaitlistEntry) error
	SlotOpened(ctx context.Context, entry model.WaitlistEntry, slot model.Appointment) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, name, businessID string, fn func(context.Context) error) bool
}

type Config struct {
	Location    *time.Location
	PhoneRegion string
	Now         func() time.Time
}

type Service struct {
	store    Store
	notifier Notifier
	dispatch Dispatcher
	logger   *slog.Logger
	loc      *time.Location
	region   string
	now      func() time.Time
}

func NewService(store Store, notifier Notifier, dispatch Dispatcher, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    store,
		notifier: notifier,
		dispatch: dispatch,
		logger:   logger,
		loc:      cfg.Location,
		region:   cfg.PhoneRegion,
		now:      cfg.Now,
	}
}

type EntryInput struct {
	ClientName    string
	ClientPhone   string
	ServiceName   string
	RequestedDate time.Time
	TimePeriod    model.TimePeriod
	StaffID       string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEntry, fmt.Sprintf(format, args...))
}

func (s *Service) buildEntry(businessID string, in EntryInput) (model.WaitlistEntry, error) {
	e := model.WaitlistEntry{
		BusinessID:    strings.TrimSpace(businessID),
		ClientName:    strings.TrimSpace(in.ClientName),
		ServiceName:   strings.TrimSpace(in.ServiceName),
		RequestedDate: in.RequestedDate,
		TimePeriod:    model.TimePeriod(strings.ToLower(strings.TrimSpace(string(in.TimePeriod)))),
		StaffID:       strings.TrimSpace(in.StaffID),
		Status:        model.WaitlistWaiting,
	}
	if e.BusinessID == "" {
		return e, invalid("business_id is required")
	}
	if e.ClientName == "" {
		return e, invalid("client_name is required")
	}
	if e.ServiceName == "" {
		return e, invalid("service_name is required")
	}
	if !e.TimePeriod.Valid() {
		return e, invalid("time_period must be one of morning, afternoon, evening, any")
	}
	if e.RequestedDate.IsZero() {
		return e, invalid("requested_date is required")
	}
	if e.RequestedDate.Before(calendar.Date(s.now(), s.loc)) {
		return e, invalid("requested_date is in the past")
	}
	normalized, err := phone.Normalize(in.ClientPhone, s.region)
	if err != nil {
		return e, invalid("client_phone is not a valid phone number")
	}
	e.ClientPhone = normalized
	return e, nil
}

// Register adds a client to the waitlist of a date. A phone may hold a
// single waiting entry per date; the partial unique index settles races
// the lookup misses. Staff are told asynchronously and a failed
// notification never fails the registration.
func (s *Service) Register(ctx context.Context, businessID string, in EntryInput) (model.WaitlistEntry, error) {
	entry, err := s.buildEntry(businessID, in)
	if err != nil {
		return model.WaitlistEntry{}, err
	}

	_, exists, err := s.store.FindWaiting(ctx, entry.BusinessID, entry.ClientPhone, entry.RequestedDate)
	if err != nil {
		return model.WaitlistEntry{}, fmt.Errorf("check waiting entry: %w", err)
	}
	if exists {
		return model.WaitlistEntry{}, ErrAlreadyWaiting
	}

	created, err := s.store.Insert(ctx, entry)
	if errors.Is(err, storage.ErrConflict) {
		return model.WaitlistEntry{}, ErrAlreadyWaiting
	}
	if err != nil {
		return model.WaitlistEntry{}, fmt.Errorf("insert waitlist entry: %w", err)
	}

	if s.dispatch != nil && s.notifier != nil {
		s.dispatch.Dispatch(ctx, "waitlist.joined", created.BusinessID, func(ctx context.Context) error {
			return s.notifier.WaitlistJoined(ctx, created)
		})
	}
	return created, nil
}

type ListFilter struct {
	Date   *time.Time
	Status model.WaitlistStatus
	Phone  string
}

func (s *Service) List(ctx context.Context, businessID string, f ListFilter) ([]model.WaitlistEntry, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("unknown status %q", f.Status)
	}
	if f.Phone != "" {
		normalized, err := phone.Normalize(f.Phone, s.region)
		if err != nil {
			return nil, invalid("phone is not a valid phone number")
		}
		f.Phone = normalized
	}
	return s.store.List(ctx, businessID, storage.WaitlistFilter{Date: f.Date, Status: f.Status, Phone: f.Phone})
}

func (s *Service) UpdateStatus(ctx context.Context, businessID, id string, status model.WaitlistStatus) (model.WaitlistEntry, error) {
	if !status.Valid() {
		return model.WaitlistEntry{}, invalid("unknown status %q", status)
	}
	e, err := s.store.UpdateStatus(ctx, businessID, id, status)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return model.WaitlistEntry{}, ErrEntryNotFound
	case errors.Is(err, storage.ErrConflict):
		// Reopening an entry collides with a newer waiting entry for the same date.
		return model.WaitlistEntry{}, ErrAlreadyWaiting
	case err != nil:
		return model.WaitlistEntry{}, fmt.Errorf("update waitlist status: %w", err)
	}
	return e, nil
}

func (s *Service) Delete(ctx context.Context, businessID, id string) error {
	err := s.store.Delete(ctx, businessID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrEntryNotFound
	}
	return err
}

// NotifySlotOpened tells waiting clients that slot became free. Entries
// match when their period covers the slot time and their staff is unset or
// equal to the slot's. Matches move to contacted before anyone is notified,
// so a client is told once even when cancellations race.
func (s *Service) NotifySlotOpened(ctx context.Context, slot model.Appointment) (int, error) {
	clock, err := calendar.ParseClock(slot.SlotTime)
	if err != nil {
		return 0, fmt.Errorf("slot time: %w", err)
	}
	waiting, err := s.store.ListWaitingForDate(ctx, slot.BusinessID, slot.SlotDate)
	if err != nil {
		return 0, fmt.Errorf("list waiting entries: %w", err)
	}

	byID := make(map[string]model.WaitlistEntry)
	var ids []string
	for _, e := range waiting {
		if !e.TimePeriod.Covers(clock) {
			continue
		}
		if e.StaffID != "" && slot.StaffID != "" && e.StaffID != slot.StaffID {
			continue
		}
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	changed, err := s.store.MarkContacted(ctx, slot.BusinessID, ids)
	if err != nil {
		return 0, fmt.Errorf("mark contacted: %w", err)
	}
	for _, id := range changed {
		entry := byID[id]
		entry.Status = model.WaitlistContacted
		if s.dispatch == nil || s.notifier == nil {
			continue
		}
		s.dispatch.Dispatch(ctx, "waitlist.slot_opened", entry.BusinessID, func(ctx context.Context) error {
			return s.notifier.SlotOpened(ctx, entry, slot)
		})
	}
	s.logger.Info("waitlist notified of open slot",
		"business_id", slot.BusinessID,
		"date", calendar.FormatDate(slot.SlotDate),
		"time", slot.SlotTime,
		"matched", len(ids),
		"contacted", len(changed),
	)
	return len(changed), nil
}
