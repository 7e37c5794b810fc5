package recurring

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

type RuleStore interface {
	// FindBySlot matches any staff member when staffID is empty.
	FindBySlot(ctx context.Context, businessID string, dayOfWeek int, timeOfDay, staffID, excludeID string) (model.RecurringRule, bool, error)
	Insert(ctx context.Context, rule model.RecurringRule) (model.RecurringRule, error)
	Update(ctx context.Context, rule model.RecurringRule) (model.RecurringRule, error)
	Get(ctx context.Context, businessID, id string) (model.RecurringRule, error)
	Delete(ctx context.Context, businessID, id string) error
	ListByBusiness(ctx context.Context, businessID string) ([]model.RecurringRule, error)
	ListActivePage(ctx context.Context, afterID string, limit int, today time.Time) ([]model.RecurringRule, error)
}

type SlotStore interface {
	FindSlot(ctx context.Context, key model.SlotKey) (model.Appointment, bool, error)
	// BookedAt reports a taken slot at key; an empty StaffID matches any staff member.
	BookedAt(ctx context.Context, key model.SlotKey) (bool, error)
	InsertBooked(ctx context.Context, appt model.Appointment) (string, error)
	Claim(ctx context.Context, businessID, id string, b model.Booking) (bool, error)
	ReleaseRuleSlots(ctx context.Context, businessID, ruleID string, from time.Time) (int64, error)
}

type Notifier interface {
	RecurringCreated(ctx context.Context, rule model.RecurringRule, first time.Time) error
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
	rules    RuleStore
	slots    SlotStore
	notifier Notifier
	dispatch Dispatcher
	logger   *slog.Logger
	loc      *time.Location
	region   string
	duration int
	now      func() time.Time
}

func NewService(rules RuleStore, slots SlotStore, notifier Notifier, dispatch Dispatcher, logger *slog.Logger, cfg Config) *Service {
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
		rules:    rules,
		slots:    slots,
		notifier: notifier,
		dispatch: dispatch,
		logger:   logger,
		loc:      cfg.Location,
		region:   cfg.PhoneRegion,
		duration: cfg.DurationMinutes,
		now:      cfg.Now,
	}
}

// RuleInput is the editable part of a rule. Zero RepeatIntervalWeeks means weekly.
type RuleInput struct {
	ClientName          string
	ClientPhone         string
	DayOfWeek           int
	TimeOfDay           string
	ServiceName         string
	RepeatIntervalWeeks int
	StartDate           *time.Time
	EndDate             *time.Time
	StaffID             string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRule, fmt.Sprintf(format, args...))
}

func (s *Service) buildRule(businessID string, in RuleInput) (model.RecurringRule, error) {
	rule := model.RecurringRule{
		BusinessID:          strings.TrimSpace(businessID),
		ClientName:          strings.TrimSpace(in.ClientName),
		ServiceName:         strings.TrimSpace(in.ServiceName),
		DayOfWeek:           in.DayOfWeek,
		RepeatIntervalWeeks: in.RepeatIntervalWeeks,
		StartDate:           in.StartDate,
		EndDate:             in.EndDate,
		StaffID:             strings.TrimSpace(in.StaffID),
	}
	if rule.BusinessID == "" {
		return rule, invalid("business_id is required")
	}
	if rule.ClientName == "" {
		return rule, invalid("client_name is required")
	}
	if rule.ServiceName == "" {
		return rule, invalid("service_name is required")
	}
	if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
		return rule, invalid("day_of_week must be between 0 and 6")
	}
	tod, err := calendar.NormalizeClock(in.TimeOfDay)
	if err != nil {
		return rule, invalid("time_of_day must be HH:MM")
	}
	rule.TimeOfDay = tod

	normalized, err := phone.Normalize(in.ClientPhone, s.region)
	if err != nil {
		return rule, invalid("client_phone is not a valid phone number")
	}
	rule.ClientPhone = normalized

	if rule.RepeatIntervalWeeks == 0 {
		rule.RepeatIntervalWeeks = 1
	}
	if rule.RepeatIntervalWeeks < 1 || rule.RepeatIntervalWeeks > 52 {
		return rule, invalid("repeat_interval_weeks must be between 1 and 52")
	}
	if rule.StartDate != nil && rule.EndDate != nil && rule.EndDate.Before(*rule.StartDate) {
		return rule, invalid("end_date must not be before start_date")
	}
	if rule.EndDate != nil && rule.EndDate.Before(calendar.Date(s.now(), s.loc)) {
		return rule, invalid("end_date is in the past")
	}
	return rule, nil
}

// CreateRule registers a weekly rule and books its first occurrence.
// The first writer of a (day, time, staff) slot wins: a second rule for the
// same slot fails with ErrDuplicateRule, whether it loses the pre-check or
// the store's insert guard. A rule without a staff member collides with a
// rule for any staff member at that day and time. A first occurrence
// already booked by someone else fails with ErrSlotBooked and is left
// untouched.
func (s *Service) CreateRule(ctx context.Context, businessID string, in RuleInput) (model.RecurringRule, error) {
	rule, err := s.buildRule(businessID, in)
	if err != nil {
		return model.RecurringRule{}, err
	}

	_, exists, err := s.rules.FindBySlot(ctx, rule.BusinessID, rule.DayOfWeek, rule.TimeOfDay, rule.StaffID, "")
	if err != nil {
		return model.RecurringRule{}, fmt.Errorf("check rule conflict: %w", err)
	}
	if exists {
		return model.RecurringRule{}, ErrDuplicateRule
	}

	first, ok, err := FirstOccurrence(rule, s.now(), s.loc)
	if err != nil {
		return model.RecurringRule{}, invalid("time_of_day must be HH:MM")
	}
	if !ok {
		return model.RecurringRule{}, invalid("end_date is before the first occurrence")
	}
	booked, err := s.slots.BookedAt(ctx, model.SlotKey{BusinessID: rule.BusinessID, Date: first, Time: rule.TimeOfDay, StaffID: rule.StaffID})
	if err != nil {
		return model.RecurringRule{}, fmt.Errorf("check slot conflict: %w", err)
	}
	if booked {
		return model.RecurringRule{}, ErrSlotBooked
	}

	if rule.StartDate == nil {
		rule.StartDate = &first
	}
	created, err := s.rules.Insert(ctx, rule)
	if errors.Is(err, storage.ErrConflict) {
		return model.RecurringRule{}, ErrDuplicateRule
	}
	if err != nil {
		return model.RecurringRule{}, fmt.Errorf("insert rule: %w", err)
	}

	// Later weeks are left to the worker; a failure here is only logged.
	if o, err := s.seedDate(ctx, created, bookingFor(created), first); err == nil {
		s.logger.Info("recurring rule created",
			"rule_id", created.ID,
			"business_id", created.BusinessID,
			"first", calendar.FormatDate(first),
			"seeded", o != outcomeSkipped,
		)
	}

	if s.dispatch != nil && s.notifier != nil {
		s.dispatch.Dispatch(ctx, "recurring.created", created.BusinessID, func(ctx context.Context) error {
			return s.notifier.RecurringCreated(ctx, created, first)
		})
	}
	return created, nil
}

// UpdateRule replaces the editable fields of a rule. Already seeded slots
// are not moved.
func (s *Service) UpdateRule(ctx context.Context, businessID, id string, in RuleInput) (model.RecurringRule, error) {
	existing, err := s.rules.Get(ctx, businessID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.RecurringRule{}, ErrRuleNotFound
	}
	if err != nil {
		return model.RecurringRule{}, fmt.Errorf("load rule: %w", err)
	}

	rule, err := s.buildRule(businessID, in)
	if err != nil {
		return model.RecurringRule{}, err
	}
	rule.ID = existing.ID
	if rule.StartDate == nil {
		rule.StartDate = existing.StartDate
	}

	_, exists, err := s.rules.FindBySlot(ctx, rule.BusinessID, rule.DayOfWeek, rule.TimeOfDay, rule.StaffID, rule.ID)
	if err != nil {
		return model.RecurringRule{}, fmt.Errorf("check rule conflict: %w", err)
	}
	if exists {
		return model.RecurringRule{}, ErrDuplicateRule
	}

	updated, err := s.rules.Update(ctx, rule)
	switch {
	case errors.Is(err, storage.ErrConflict):
		return model.RecurringRule{}, ErrDuplicateRule
	case errors.Is(err, storage.ErrNotFound):
		return model.RecurringRule{}, ErrRuleNotFound
	case err != nil:
		return model.RecurringRule{}, fmt.Errorf("update rule: %w", err)
	}
	return updated, nil
}

// DeleteRule removes a rule. With releaseFuture its upcoming seeded slots
// are reopened; otherwise they stay booked for the client.
func (s *Service) DeleteRule(ctx context.Context, businessID, id string, releaseFuture bool) error {
	if releaseFuture {
		today := calendar.Date(s.now(), s.loc)
		n, err := s.slots.ReleaseRuleSlots(ctx, businessID, id, today)
		if err != nil {
			return fmt.Errorf("release rule slots: %w", err)
		}
		if n > 0 {
			s.logger.Info("released recurring slots", "business_id", businessID, "rule_id", id, "count", n)
		}
	}
	err := s.rules.Delete(ctx, businessID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrRuleNotFound
	}
	return err
}

func (s *Service) GetRule(ctx context.Context, businessID, id string) (model.RecurringRule, error) {
	rule, err := s.rules.Get(ctx, businessID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.RecurringRule{}, ErrRuleNotFound
	}
	return rule, err
}

func (s *Service) ListRules(ctx context.Context, businessID string) ([]model.RecurringRule, error) {
	return s.rules.ListByBusiness(ctx, businessID)
}
