package recurring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
)

// Thursday 2026-01-08 10:00 UTC.
var thursdayMorning = time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC)

func haircutInput() RuleInput {
	return RuleInput{
		ClientName:  "Dana Levi",
		ClientPhone: "052-555-1234",
		DayOfWeek:   int(time.Tuesday),
		TimeOfDay:   "14:00",
		ServiceName: "Haircut",
		StaffID:     "S1",
	}
}

func TestCreateRuleSeedsNearestTuesday(t *testing.T) {
	store := newMemStore()
	svc, notifier, dispatcher := newTestService(store, thursdayMorning)

	rule, err := svc.CreateRule(context.Background(), "biz", haircutInput())
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.RepeatIntervalWeeks != 1 {
		t.Fatalf("expected default interval 1, got %d", rule.RepeatIntervalWeeks)
	}
	if rule.StartDate == nil || calendar.FormatDate(*rule.StartDate) != "2026-01-13" {
		t.Fatalf("expected start date anchored to 2026-01-13, got %v", rule.StartDate)
	}
	if rule.ClientPhone != "+972525551234" {
		t.Fatalf("expected normalized phone, got %q", rule.ClientPhone)
	}

	if store.slotCount() != 1 {
		t.Fatalf("expected exactly one seeded slot, got %d", store.slotCount())
	}
	slot, ok := store.slot("biz", "2026-01-13", "14:00", "S1")
	if !ok {
		t.Fatalf("expected slot on the nearest Tuesday")
	}
	if slot.IsAvailable || slot.ServiceName != "Haircut" || slot.ClientName != "Dana Levi" || slot.RecurringRuleID != rule.ID {
		t.Fatalf("unexpected slot %+v", slot)
	}

	if len(dispatcher.names) != 1 || dispatcher.names[0] != "recurring.created" {
		t.Fatalf("expected created notification dispatch, got %v", dispatcher.names)
	}
	if len(notifier.first) != 1 || calendar.FormatDate(notifier.first[0]) != "2026-01-13" {
		t.Fatalf("unexpected notification %v", notifier.first)
	}

	_, err = svc.CreateRule(context.Background(), "biz", haircutInput())
	if !errors.Is(err, ErrDuplicateRule) {
		t.Fatalf("expected ErrDuplicateRule, got %v", err)
	}
	if store.ruleCount() != 1 || store.slotCount() != 1 {
		t.Fatalf("duplicate attempt changed state: rules=%d slots=%d", store.ruleCount(), store.slotCount())
	}
}

func TestCreateRuleOtherStaffIsNotDuplicate(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, thursdayMorning)

	if _, err := svc.CreateRule(context.Background(), "biz", haircutInput()); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	in := haircutInput()
	in.StaffID = "S2"
	if _, err := svc.CreateRule(context.Background(), "biz", in); err != nil {
		t.Fatalf("same slot for another staff member should succeed: %v", err)
	}
	if _, err := svc.CreateRule(context.Background(), "other-biz", haircutInput()); err != nil {
		t.Fatalf("same slot for another business should succeed: %v", err)
	}
}

func TestCreateRuleWithoutStaffTakesWholeSlot(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, thursdayMorning)

	if _, err := svc.CreateRule(context.Background(), "biz", haircutInput()); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	anyStaff := haircutInput()
	anyStaff.StaffID = ""
	if _, err := svc.CreateRule(context.Background(), "biz", anyStaff); !errors.Is(err, ErrDuplicateRule) {
		t.Fatalf("expected ErrDuplicateRule against a staffed rule, got %v", err)
	}
	if store.ruleCount() != 1 {
		t.Fatalf("expected one rule, got %d", store.ruleCount())
	}

	// The insert guard applies the same rule when the pre-check is bypassed.
	store.skipRulePrecheck = true
	if _, err := svc.CreateRule(context.Background(), "biz", anyStaff); !errors.Is(err, ErrDuplicateRule) {
		t.Fatalf("expected insert guard to reject, got %v", err)
	}
	store.skipRulePrecheck = false

	in := haircutInput()
	in.TimeOfDay = "16:00"
	in.StaffID = ""
	if _, err := svc.CreateRule(context.Background(), "biz", in); err != nil {
		t.Fatalf("CreateRule without staff: %v", err)
	}
	in.StaffID = "S1"
	if _, err := svc.CreateRule(context.Background(), "biz", in); err != nil {
		t.Fatalf("a staffed rule is only checked against its own staff: %v", err)
	}
}

func TestCreateRuleWithoutStaffRejectsAnyBookedSlot(t *testing.T) {
	store := newMemStore()
	store.put(model.Appointment{BusinessID: "biz", SlotDate: mustDate("2026-01-13"), SlotTime: "14:00", StaffID: "S2", ClientName: "Someone Else"})
	store.put(model.Appointment{BusinessID: "biz", SlotDate: mustDate("2026-01-13"), SlotTime: "15:00", StaffID: "S2", IsAvailable: true})
	svc, _, _ := newTestService(store, thursdayMorning)

	in := haircutInput()
	in.StaffID = ""
	if _, err := svc.CreateRule(context.Background(), "biz", in); !errors.Is(err, ErrSlotBooked) {
		t.Fatalf("expected ErrSlotBooked, got %v", err)
	}
	if store.ruleCount() != 0 {
		t.Fatalf("rule inserted despite booked slot")
	}

	// An open slot of another staff member is not a booking.
	in.TimeOfDay = "15:00"
	if _, err := svc.CreateRule(context.Background(), "biz", in); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
}

func TestCreateRuleFutureStartDate(t *testing.T) {
	store := newMemStore()
	// Booked on the nearest Tuesday, which the rule does not cover.
	store.put(model.Appointment{BusinessID: "biz", SlotDate: mustDate("2026-01-13"), SlotTime: "14:00", StaffID: "S1", ClientName: "Someone Else"})
	svc, notifier, _ := newTestService(store, thursdayMorning)

	start := mustDate("2026-02-03")
	in := haircutInput()
	in.StartDate = &start
	rule, err := svc.CreateRule(context.Background(), "biz", in)
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.StartDate == nil || !rule.StartDate.Equal(start) {
		t.Fatalf("start date changed: %v", rule.StartDate)
	}
	slot, ok := store.slot("biz", "2026-02-03", "14:00", "S1")
	if !ok || slot.IsAvailable || slot.RecurringRuleID != rule.ID {
		t.Fatalf("expected first occurrence seeded on 2026-02-03, got %+v (found=%v)", slot, ok)
	}
	if other, _ := store.slot("biz", "2026-01-13", "14:00", "S1"); other.ClientName != "Someone Else" {
		t.Fatalf("slot before the start date was touched: %+v", other)
	}
	if len(notifier.first) != 1 || !notifier.first[0].Equal(start) {
		t.Fatalf("expected notification for 2026-02-03, got %v", notifier.first)
	}

	store = newMemStore()
	store.put(model.Appointment{BusinessID: "biz", SlotDate: start, SlotTime: "14:00", StaffID: "S1", ClientName: "Someone Else"})
	svc, _, _ = newTestService(store, thursdayMorning)
	if _, err := svc.CreateRule(context.Background(), "biz", in); !errors.Is(err, ErrSlotBooked) {
		t.Fatalf("expected ErrSlotBooked on the start date, got %v", err)
	}
}

func TestCreateRuleFirstOccurrenceFollowsInterval(t *testing.T) {
	store := newMemStore()
	svc, notifier, _ := newTestService(store, thursdayMorning)

	// Every other Tuesday from 2026-01-06: 01-13 is an off week.
	start := mustDate("2026-01-06")
	in := haircutInput()
	in.StartDate = &start
	in.RepeatIntervalWeeks = 2
	if _, err := svc.CreateRule(context.Background(), "biz", in); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if _, ok := store.slot("biz", "2026-01-13", "14:00", "S1"); ok {
		t.Fatalf("off week was seeded")
	}
	if _, ok := store.slot("biz", "2026-01-20", "14:00", "S1"); !ok {
		t.Fatalf("expected 2026-01-20 to be seeded")
	}
	if len(notifier.first) != 1 || calendar.FormatDate(notifier.first[0]) != "2026-01-20" {
		t.Fatalf("unexpected notification %v", notifier.first)
	}

	end := mustDate("2026-01-15")
	in.EndDate = &end
	in.TimeOfDay = "16:00"
	if _, err := svc.CreateRule(context.Background(), "biz", in); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for a rule with no occurrence, got %v", err)
	}
}

func TestCreateRuleRejectsBookedNearestSlot(t *testing.T) {
	store := newMemStore()
	booked := model.Appointment{
		BusinessID:  "biz",
		SlotDate:    mustDate("2026-01-13"),
		SlotTime:    "14:00",
		StaffID:     "S1",
		ClientName:  "Someone Else",
		ServiceName: "Color",
	}
	store.put(booked)
	svc, _, dispatcher := newTestService(store, thursdayMorning)

	_, err := svc.CreateRule(context.Background(), "biz", haircutInput())
	if !errors.Is(err, ErrSlotBooked) {
		t.Fatalf("expected ErrSlotBooked, got %v", err)
	}
	if store.ruleCount() != 0 {
		t.Fatalf("rule inserted despite booked slot")
	}
	slot, _ := store.slot("biz", "2026-01-13", "14:00", "S1")
	if slot.ClientName != "Someone Else" || slot.ServiceName != "Color" || slot.IsAvailable {
		t.Fatalf("booked slot was mutated: %+v", slot)
	}
	if len(dispatcher.names) != 0 {
		t.Fatalf("no notification expected on conflict")
	}
}

func TestCreateRuleClaimsOpenSlot(t *testing.T) {
	store := newMemStore()
	store.put(model.Appointment{BusinessID: "biz", SlotDate: mustDate("2026-01-13"), SlotTime: "14:00", StaffID: "S1", IsAvailable: true})
	svc, _, _ := newTestService(store, thursdayMorning)

	rule, err := svc.CreateRule(context.Background(), "biz", haircutInput())
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if store.slotCount() != 1 {
		t.Fatalf("expected the open slot to be reused, got %d slots", store.slotCount())
	}
	slot, _ := store.slot("biz", "2026-01-13", "14:00", "S1")
	if slot.IsAvailable || slot.ClientName != "Dana Levi" || slot.RecurringRuleID != rule.ID {
		t.Fatalf("open slot not claimed: %+v", slot)
	}
}

func TestCreateRuleUniqueIndexIsAuthoritative(t *testing.T) {
	store := newMemStore()
	store.skipRulePrecheck = true
	svc, _, _ := newTestService(store, thursdayMorning)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateRule(context.Background(), "biz", haircutInput())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDuplicateRule), errors.Is(err, ErrSlotBooked):
				// Losers either hit the unique index or see the winner's seeded slot.
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || rejected != 7 {
		t.Fatalf("expected 1 winner and 7 rejections, got %d/%d", successes, rejected)
	}
	if store.ruleCount() != 1 {
		t.Fatalf("expected a single rule row, got %d", store.ruleCount())
	}
}

func TestCreateRuleSeedFailureDoesNotFailCreation(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, thursdayMorning)
	// Every slot read made while seeding fails.
	calls := 0
	wrapped := &flakySlots{memStore: store, failAfter: 0, calls: &calls}
	svc.slots = wrapped

	rule, err := svc.CreateRule(context.Background(), "biz", haircutInput())
	if err != nil {
		t.Fatalf("CreateRule must succeed when seeding fails: %v", err)
	}
	if rule.ID == "" || store.slotCount() != 0 {
		t.Fatalf("unexpected state: rule=%+v slots=%d", rule, store.slotCount())
	}
}

type flakySlots struct {
	*memStore
	failAfter int
	calls     *int
}

func (f *flakySlots) FindSlot(ctx context.Context, key model.SlotKey) (model.Appointment, bool, error) {
	*f.calls++
	if *f.calls > f.failAfter {
		return model.Appointment{}, false, errBoom
	}
	return f.memStore.FindSlot(ctx, key)
}

func TestCreateRuleValidation(t *testing.T) {
	svc, _, _ := newTestService(newMemStore(), thursdayMorning)
	past := mustDate("2026-01-01")
	later := mustDate("2026-03-01")
	earlier := mustDate("2026-02-01")

	cases := map[string]func(*RuleInput){
		"day":      func(in *RuleInput) { in.DayOfWeek = 7 },
		"time":     func(in *RuleInput) { in.TimeOfDay = "25:00" },
		"phone":    func(in *RuleInput) { in.ClientPhone = "12" },
		"name":     func(in *RuleInput) { in.ClientName = "  " },
		"service":  func(in *RuleInput) { in.ServiceName = "" },
		"interval": func(in *RuleInput) { in.RepeatIntervalWeeks = -1 },
		"range":    func(in *RuleInput) { in.StartDate, in.EndDate = &later, &earlier },
		"ended":    func(in *RuleInput) { in.EndDate = &past },
	}
	for name, mutate := range cases {
		in := haircutInput()
		mutate(&in)
		if _, err := svc.CreateRule(context.Background(), "biz", in); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("%s: expected ErrInvalidRule, got %v", name, err)
		}
	}
}

func TestUpdateRule(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, thursdayMorning)

	a, err := svc.CreateRule(context.Background(), "biz", haircutInput())
	if err != nil {
		t.Fatalf("CreateRule a: %v", err)
	}
	in := haircutInput()
	in.TimeOfDay = "15:00"
	b, err := svc.CreateRule(context.Background(), "biz", in)
	if err != nil {
		t.Fatalf("CreateRule b: %v", err)
	}

	// Moving b onto a's slot is a duplicate.
	if _, err := svc.UpdateRule(context.Background(), "biz", b.ID, haircutInput()); !errors.Is(err, ErrDuplicateRule) {
		t.Fatalf("expected ErrDuplicateRule, got %v", err)
	}

	// Updating a in place keeps its start date.
	in = haircutInput()
	in.ServiceName = "Beard"
	updated, err := svc.UpdateRule(context.Background(), "biz", a.ID, in)
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if updated.ServiceName != "Beard" || updated.StartDate == nil || !updated.StartDate.Equal(*a.StartDate) {
		t.Fatalf("unexpected update result %+v", updated)
	}

	if _, err := svc.UpdateRule(context.Background(), "biz", "missing", in); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
	if _, err := svc.UpdateRule(context.Background(), "other-biz", a.ID, in); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected tenant isolation, got %v", err)
	}
}

func TestDeleteRuleReleasesFutureSlots(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, thursdayMorning)

	rule, err := svc.CreateRule(context.Background(), "biz", haircutInput())
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if err := svc.DeleteRule(context.Background(), "biz", rule.ID, true); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	slot, _ := store.slot("biz", "2026-01-13", "14:00", "S1")
	if !slot.IsAvailable || slot.ClientName != "" {
		t.Fatalf("seeded slot not released: %+v", slot)
	}
	if err := svc.DeleteRule(context.Background(), "biz", rule.ID, false); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound on second delete, got %v", err)
	}
}

func TestDeleteRuleKeepsSlotsByDefault(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, thursdayMorning)

	rule, _ := svc.CreateRule(context.Background(), "biz", haircutInput())
	if err := svc.DeleteRule(context.Background(), "biz", rule.ID, false); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if len(store.released) != 0 {
		t.Fatalf("slots released without request")
	}
	slot, _ := store.slot("biz", "2026-01-13", "14:00", "S1")
	if slot.IsAvailable {
		t.Fatalf("slot should stay booked")
	}
}
