// Package fanout turns booking events into inbox notifications, device
// pushes and text messages.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/events"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/model"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/push"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/sms"
	"github.com/segmentio/kafka-go"
)

type Store interface {
	Insert(ctx context.Context, n model.Notification) (model.Notification, error)
	TokensFor(ctx context.Context, businessID, phone string) ([]string, error)
	DeleteTokens(ctx context.Context, businessID string, tokens []string) error
	StaffPhone(ctx context.Context, businessID, staffID string) (string, bool, error)
	AdminPhones(ctx context.Context, businessID string) ([]string, error)
}

type Service struct {
	store  Store
	push   push.Sender
	sms    sms.Sender
	logger *slog.Logger
}

func New(store Store, pushSender push.Sender, smsSender sms.Sender, logger *slog.Logger) *Service {
	return &Service{store: store, push: pushSender, sms: smsSender, logger: logger}
}

// Outgoing is one notification addressed to a set of phones.
type Outgoing struct {
	BusinessID string
	Phones     []string
	Title      string
	Body       string
	Type       string
	Data       map[string]string
	// SMS also texts every recipient.
	SMS bool
}

// Handle is the Kafka handler. Malformed payloads are logged and dropped;
// an error is only returned when no notification could be stored.
func (s *Service) Handle(ctx context.Context, msg kafka.Message) error {
	out, err := s.build(ctx, msg)
	if err != nil {
		var bad *payloadError
		if errors.As(err, &bad) {
			s.logger.Error("invalid event payload", "topic", msg.Topic, "err", err)
			return nil
		}
		return err
	}
	if len(out.Phones) == 0 {
		s.logger.Warn("event has no recipients", "topic", msg.Topic, "business_id", out.BusinessID)
		return nil
	}
	_, err = s.Deliver(ctx, out)
	return err
}

type payloadError struct{ err error }

func (e *payloadError) Error() string { return e.err.Error() }
func (e *payloadError) Unwrap() error { return e.err }

func decode(msg kafka.Message, v any) error {
	if err := json.Unmarshal(msg.Value, v); err != nil {
		return &payloadError{err: err}
	}
	return nil
}

func (s *Service) build(ctx context.Context, msg kafka.Message) (Outgoing, error) {
	switch msg.Topic {
	case events.TopicWaitlistJoined:
		var p events.WaitlistJoined
		if err := decode(msg, &p); err != nil {
			return Outgoing{}, err
		}
		phones, err := s.staffAudience(ctx, p.BusinessID, p.Audience, p.StaffID)
		if err != nil {
			return Outgoing{}, err
		}
		return Outgoing{
			BusinessID: p.BusinessID,
			Phones:     phones,
			Title:      "New waitlist request",
			Body:       fmt.Sprintf("%s wants %s on %s (%s).", p.ClientName, p.ServiceName, p.RequestedDate, p.TimePeriod),
			Type:       model.TypeWaitlistJoined,
			Data:       map[string]string{"entry_id": p.EntryID, "requested_date": p.RequestedDate, "client_phone": p.ClientPhone},
		}, nil

	case events.TopicSlotOpened:
		var p events.SlotOpened
		if err := decode(msg, &p); err != nil {
			return Outgoing{}, err
		}
		return Outgoing{
			BusinessID: p.BusinessID,
			Phones:     nonEmpty(p.ClientPhone),
			Title:      "A slot opened up",
			Body:       fmt.Sprintf("Hi %s, %s at %s is now free for %s. Book it before someone else does.", p.ClientName, p.SlotDate, p.SlotTime, p.ServiceName),
			Type:       model.TypeSlotOpened,
			Data:       map[string]string{"entry_id": p.EntryID, "slot_date": p.SlotDate, "slot_time": p.SlotTime},
			SMS:        true,
		}, nil

	case events.TopicRecurringCreated:
		var p events.RecurringCreated
		if err := decode(msg, &p); err != nil {
			return Outgoing{}, err
		}
		return Outgoing{
			BusinessID: p.BusinessID,
			Phones:     nonEmpty(p.ClientPhone),
			Title:      "Recurring appointment booked",
			Body:       fmt.Sprintf("%s %s at %s, starting %s.", p.ServiceName, everyWeeks(p.IntervalWeek, p.DayOfWeek), p.TimeOfDay, p.FirstDate),
			Type:       model.TypeRecurringCreated,
			Data:       map[string]string{"rule_id": p.RuleID, "first_date": p.FirstDate},
		}, nil

	case events.TopicAppointmentCancelled:
		var p events.AppointmentCancelled
		if err := decode(msg, &p); err != nil {
			return Outgoing{}, err
		}
		out := Outgoing{
			BusinessID: p.BusinessID,
			Type:       model.TypeAppointmentCancelled,
			Data:       map[string]string{"appointment_id": p.AppointmentID, "slot_date": p.SlotDate, "slot_time": p.SlotTime},
		}
		if p.CancelledBy == events.AudienceClient {
			phones, err := s.staffAudience(ctx, p.BusinessID, events.AudienceStaff, p.StaffID)
			if err != nil {
				return Outgoing{}, err
			}
			out.Phones = phones
			out.Title = "Appointment cancelled"
			out.Body = fmt.Sprintf("%s cancelled %s on %s at %s.", p.ClientName, p.ServiceName, p.SlotDate, p.SlotTime)
			return out, nil
		}
		out.Phones = nonEmpty(p.ClientPhone)
		out.Title = "Your appointment was cancelled"
		out.Body = fmt.Sprintf("Your %s on %s at %s was cancelled by the salon.", p.ServiceName, p.SlotDate, p.SlotTime)
		out.SMS = true
		return out, nil
	}
	return Outgoing{}, &payloadError{err: fmt.Errorf("unexpected topic %q", msg.Topic)}
}

// staffAudience resolves a staff member's phone, falling back to the admins
// when the staff member is unknown or the event targets admins.
func (s *Service) staffAudience(ctx context.Context, businessID, audience, staffID string) ([]string, error) {
	if audience == events.AudienceStaff && staffID != "" {
		phone, ok, err := s.store.StaffPhone(ctx, businessID, staffID)
		if err != nil {
			return nil, err
		}
		if ok {
			return []string{phone}, nil
		}
	}
	return s.store.AdminPhones(ctx, businessID)
}

// Deliver stores one notification per phone and then pushes and texts best
// effort. It returns the stored notifications.
func (s *Service) Deliver(ctx context.Context, out Outgoing) ([]model.Notification, error) {
	var stored []model.Notification
	var errs []error
	for _, phone := range dedupe(out.Phones) {
		n, err := s.store.Insert(ctx, model.Notification{
			BusinessID: out.BusinessID,
			UserPhone:  phone,
			Title:      out.Title,
			Body:       out.Body,
			Type:       out.Type,
			Data:       out.Data,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("store notification for %s: %w", phone, err))
			continue
		}
		stored = append(stored, n)
		s.pushTo(ctx, n)
		if out.SMS && s.sms != nil {
			if err := s.sms.Send(ctx, phone, out.Title+": "+out.Body); err != nil {
				s.logger.Error("sms send failed", "err", err, "business_id", out.BusinessID, "provider", s.sms.ProviderID())
			}
		}
	}
	if len(stored) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		s.logger.Error("notification not stored", "err", err)
	}
	return stored, nil
}

func (s *Service) pushTo(ctx context.Context, n model.Notification) {
	if s.push == nil {
		return
	}
	tokens, err := s.store.TokensFor(ctx, n.BusinessID, n.UserPhone)
	if err != nil {
		s.logger.Error("load push tokens failed", "err", err, "business_id", n.BusinessID)
		return
	}
	if len(tokens) == 0 {
		return
	}
	data := map[string]string{"notification_id": n.ID, "type": n.Type}
	for k, v := range n.Data {
		data[k] = v
	}
	stale, err := s.push.Send(ctx, tokens, push.Message{Title: n.Title, Body: n.Body, Data: data})
	if err != nil {
		s.logger.Error("push send failed", "err", err, "business_id", n.BusinessID, "provider", s.push.ProviderID())
	}
	if len(stale) > 0 {
		if err := s.store.DeleteTokens(ctx, n.BusinessID, stale); err != nil {
			s.logger.Error("delete stale push tokens failed", "err", err)
		}
	}
}

func everyWeeks(interval, dayOfWeek int) string {
	day := "day"
	if dayOfWeek >= 0 && dayOfWeek <= 6 {
		day = time.Weekday(dayOfWeek).String()
	}
	if interval <= 1 {
		return "every " + day
	}
	return fmt.Sprintf("every %d weeks on %s", interval, day)
}

func nonEmpty(phone string) []string {
	if phone == "" {
		return nil
	}
	return []string{phone}
}

func dedupe(phones []string) []string {
	seen := make(map[string]struct{}, len(phones))
	out := phones[:0:0]
	for _, p := range phones {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
