package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/storage"
)

// SeedReport counts what one seeding pass did.
type SeedReport struct {
	Inserted int
	Claimed  int
	Skipped  int
	Failed   int
}

func (r *SeedReport) add(o SeedReport) {
	r.Inserted += o.Inserted
	r.Claimed += o.Claimed
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeClaimed
	outcomeSkipped
)

// Seed materializes the rule's occurrences over the next weeks weekly slots.
// A free date gets a booked row, an open slot is claimed for the client and
// a slot booked by anyone (including this rule on an earlier pass) is left
// alone, so seeding is safe to repeat.
func (s *Service) Seed(ctx context.Context, rule model.RecurringRule, weeks int) SeedReport {
	var report SeedReport
	dates, err := Occurrences(rule, s.now(), s.loc, weeks)
	if err != nil {
		s.logger.Error("recurring seed skipped: bad rule", "rule_id", rule.ID, "business_id", rule.BusinessID, "err", err)
		report.Failed++
		return report
	}

	booking := bookingFor(rule)
	for _, d := range dates {
		o, err := s.seedDate(ctx, rule, booking, d)
		if err != nil {
			report.Failed++
			continue
		}
		switch o {
		case outcomeInserted:
			report.Inserted++
		case outcomeClaimed:
			report.Claimed++
		default:
			report.Skipped++
		}
	}
	return report
}

func bookingFor(rule model.RecurringRule) model.Booking {
	return model.Booking{
		ClientName:      rule.ClientName,
		ClientPhone:     rule.ClientPhone,
		ServiceName:     rule.ServiceName,
		RecurringRuleID: rule.ID,
	}
}

// seedDate materializes one occurrence and logs a failure.
func (s *Service) seedDate(ctx context.Context, rule model.RecurringRule, b model.Booking, d time.Time) (outcome, error) {
	key := model.SlotKey{BusinessID: rule.BusinessID, Date: d, Time: rule.TimeOfDay, StaffID: rule.StaffID}
	o, err := s.seedSlot(ctx, key, b)
	if err != nil {
		s.logger.Error("recurring seed failed",
			"rule_id", rule.ID,
			"business_id", rule.BusinessID,
			"date", calendar.FormatDate(d),
			"time", rule.TimeOfDay,
			"err", err,
		)
	}
	return o, err
}

func (s *Service) seedSlot(ctx context.Context, key model.SlotKey, b model.Booking) (outcome, error) {
	// A lost insert race means the row exists now; look again once.
	for attempt := 0; attempt < 2; attempt++ {
		existing, found, err := s.slots.FindSlot(ctx, key)
		if err != nil {
			return outcomeSkipped, err
		}
		if found {
			if !existing.IsAvailable {
				return outcomeSkipped, nil
			}
			ok, err := s.slots.Claim(ctx, key.BusinessID, existing.ID, b)
			if err != nil {
				return outcomeSkipped, err
			}
			if !ok {
				return outcomeSkipped, nil
			}
			return outcomeClaimed, nil
		}

		_, err = s.slots.InsertBooked(ctx, model.Appointment{
			BusinessID:      key.BusinessID,
			SlotDate:        key.Date,
			SlotTime:        key.Time,
			StaffID:         key.StaffID,
			ClientName:      b.ClientName,
			ClientPhone:     b.ClientPhone,
			ServiceName:     b.ServiceName,
			DurationMinutes: s.duration,
			RecurringRuleID: b.RecurringRuleID,
		})
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return outcomeSkipped, err
		}
		return outcomeInserted, nil
	}
	return outcomeSkipped, nil
}
