package recurring

import (
	"context"
	"testing"
	"time"

	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
)

func dates(ds []time.Time) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, calendar.FormatDate(d))
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNearestOccurrence(t *testing.T) {
	tue := int(time.Tuesday)
	cases := []struct {
		name string
		now  time.Time
		want string
	}{
		{"thursday to next tuesday", time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC), "2026-01-13"},
		{"same day before slot", time.Date(2026, 1, 13, 13, 59, 0, 0, time.UTC), "2026-01-13"},
		{"same day at slot", time.Date(2026, 1, 13, 14, 0, 0, 0, time.UTC), "2026-01-20"},
		{"monday", time.Date(2026, 1, 12, 23, 0, 0, 0, time.UTC), "2026-01-13"},
	}
	for _, c := range cases {
		got := calendar.FormatDate(NearestOccurrence(c.now, time.UTC, tue, 14*60))
		if got != c.want {
			t.Fatalf("%s: got %s want %s", c.name, got, c.want)
		}
	}
}

func TestNearestOccurrenceUsesBusinessZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Monday 22:30 UTC is already Tuesday 00:30 in Jerusalem.
	now := time.Date(2026, 1, 12, 22, 30, 0, 0, time.UTC)
	if got := calendar.FormatDate(NearestOccurrence(now, loc, int(time.Tuesday), 14*60)); got != "2026-01-13" {
		t.Fatalf("expected the local Tuesday 2026-01-13, got %s", got)
	}
	// Same instant, a 00:15 slot has already passed locally.
	if got := calendar.FormatDate(NearestOccurrence(now, loc, int(time.Tuesday), 15)); got != "2026-01-20" {
		t.Fatalf("expected 2026-01-20, got %s", got)
	}
}

func biweeklyRule() model.RecurringRule {
	d := mustDate("2026-01-13")
	return model.RecurringRule{
		ID:                  "rule-bi",
		BusinessID:          "biz",
		ClientName:          "Dana Levi",
		ClientPhone:         "+972525551234",
		DayOfWeek:           int(time.Tuesday),
		TimeOfDay:           "14:00",
		ServiceName:         "Haircut",
		RepeatIntervalWeeks: 2,
		StartDate:           &d,
		StaffID:             "S1",
	}
}

func TestOccurrencesIntervalSkipping(t *testing.T) {
	now := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	rule := biweeklyRule()

	got, err := Occurrences(rule, now, time.UTC, 5)
	if err != nil {
		t.Fatalf("Occurrences: %v", err)
	}
	if want := []string{"2026-01-13", "2026-01-27", "2026-02-10"}; !equalStrings(dates(got), want) {
		t.Fatalf("five weekly slots: got %v want %v", dates(got), want)
	}

	got, _ = Occurrences(rule, now, time.UTC, 4)
	if want := []string{"2026-01-13", "2026-01-27"}; !equalStrings(dates(got), want) {
		t.Fatalf("four weekly slots: got %v want %v", dates(got), want)
	}

	// A week later the phase is kept: the off week comes first.
	got, _ = Occurrences(rule, now.AddDate(0, 0, 7), time.UTC, 4)
	if want := []string{"2026-01-27", "2026-02-10"}; !equalStrings(dates(got), want) {
		t.Fatalf("phase drifted: got %v want %v", dates(got), want)
	}
}

func TestOccurrencesAnchorOnOtherWeekday(t *testing.T) {
	// Start date on a Sunday anchors to the following Tuesday.
	start := mustDate("2026-01-11")
	rule := biweeklyRule()
	rule.StartDate = &start
	got, _ := Occurrences(rule, time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC), time.UTC, 3)
	if want := []string{"2026-01-13", "2026-01-27"}; !equalStrings(dates(got), want) {
		t.Fatalf("got %v want %v", dates(got), want)
	}
}

func TestOccurrencesRangeBounding(t *testing.T) {
	now := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	start := mustDate("2026-01-20")
	end := mustDate("2026-01-27")
	rule := model.RecurringRule{DayOfWeek: int(time.Tuesday), TimeOfDay: "14:00", RepeatIntervalWeeks: 1, StartDate: &start, EndDate: &end}

	got, _ := Occurrences(rule, now, time.UTC, 6)
	if want := []string{"2026-01-20", "2026-01-27"}; !equalStrings(dates(got), want) {
		t.Fatalf("got %v want %v", dates(got), want)
	}
}

func TestFirstOccurrence(t *testing.T) {
	now := time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC)
	date := func(s string) *time.Time { d := mustDate(s); return &d }
	cases := []struct {
		name     string
		start    *time.Time
		end      *time.Time
		interval int
		want     string
	}{
		{name: "no bounds", interval: 1, want: "2026-01-13"},
		{name: "future start", start: date("2026-02-03"), interval: 1, want: "2026-02-03"},
		{name: "future start off weekday", start: date("2026-02-01"), interval: 3, want: "2026-02-03"},
		{name: "past start on week", start: date("2025-12-30"), interval: 2, want: "2026-01-13"},
		{name: "past start off week", start: date("2026-01-06"), interval: 2, want: "2026-01-20"},
		{name: "ends first", start: date("2026-01-06"), end: date("2026-01-15"), interval: 2},
	}
	for _, c := range cases {
		rule := model.RecurringRule{DayOfWeek: int(time.Tuesday), TimeOfDay: "14:00", RepeatIntervalWeeks: c.interval, StartDate: c.start, EndDate: c.end}
		got, ok, err := FirstOccurrence(rule, now, time.UTC)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if c.want == "" {
			if ok {
				t.Fatalf("%s: expected no occurrence, got %s", c.name, calendar.FormatDate(got))
			}
			continue
		}
		if !ok || calendar.FormatDate(got) != c.want {
			t.Fatalf("%s: got %s (ok=%v) want %s", c.name, calendar.FormatDate(got), ok, c.want)
		}

		// The seeder's first date agrees.
		seeded, _ := Occurrences(rule, now, time.UTC, 8)
		if len(seeded) == 0 || !seeded[0].Equal(got) {
			t.Fatalf("%s: Occurrences starts at %v", c.name, dates(seeded))
		}
	}
}

func TestSeedIntervalWritesOnlyOnWeeks(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC))

	report := svc.Seed(context.Background(), biweeklyRule(), 5)
	if report.Inserted != 3 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	for _, d := range []string{"2026-01-20", "2026-02-03"} {
		if _, ok := store.slot("biz", d, "14:00", "S1"); ok {
			t.Fatalf("off-week %s was materialized", d)
		}
	}
	for _, d := range []string{"2026-01-13", "2026-01-27", "2026-02-10"} {
		if a, ok := store.slot("biz", d, "14:00", "S1"); !ok || a.IsAvailable {
			t.Fatalf("on-week %s not booked", d)
		}
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC))
	rule := biweeklyRule()
	rule.RepeatIntervalWeeks = 1

	first := svc.Seed(context.Background(), rule, 3)
	second := svc.Seed(context.Background(), rule, 3)
	if first.Inserted != 3 {
		t.Fatalf("unexpected first pass %+v", first)
	}
	if second.Inserted != 0 || second.Claimed != 0 || second.Skipped != 3 {
		t.Fatalf("second pass must only skip, got %+v", second)
	}
	if store.slotCount() != 3 {
		t.Fatalf("expected 3 slots after two passes, got %d", store.slotCount())
	}
}

func TestSeedClaimsOpenAndSkipsForeignBookings(t *testing.T) {
	store := newMemStore()
	store.put(model.Appointment{BusinessID: "biz", SlotDate: mustDate("2026-01-13"), SlotTime: "14:00", StaffID: "S1", IsAvailable: true})
	store.put(model.Appointment{BusinessID: "biz", SlotDate: mustDate("2026-01-20"), SlotTime: "14:00", StaffID: "S1", ClientName: "Walk In", ServiceName: "Color"})
	store.findSlotErr[slotKey(model.SlotKey{BusinessID: "biz", Date: mustDate("2026-01-27"), Time: "14:00", StaffID: "S1"})] = errBoom

	svc, _, _ := newTestService(store, time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC))
	rule := biweeklyRule()
	rule.RepeatIntervalWeeks = 1

	report := svc.Seed(context.Background(), rule, 4)
	if report.Claimed != 1 || report.Skipped != 1 || report.Failed != 1 || report.Inserted != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if a, _ := store.slot("biz", "2026-01-13", "14:00", "S1"); a.IsAvailable || a.ClientName != "Dana Levi" {
		t.Fatalf("open slot not claimed: %+v", a)
	}
	if a, _ := store.slot("biz", "2026-01-20", "14:00", "S1"); a.ClientName != "Walk In" || a.ServiceName != "Color" {
		t.Fatalf("foreign booking overwritten: %+v", a)
	}
	if _, ok := store.slot("biz", "2026-02-03", "14:00", "S1"); !ok {
		t.Fatalf("a failing date must not stop later dates")
	}
}

func TestSeedRetriesAfterLostInsertRace(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC))
	racer := &racingSlots{memStore: store}
	svc.slots = racer

	rule := biweeklyRule()
	report := svc.Seed(context.Background(), rule, 1)
	if report.Claimed != 1 {
		t.Fatalf("expected the concurrently created open slot to be claimed, got %+v", report)
	}
}

// racingSlots creates an open slot right before the first insert, as the
// slot generator would.
type racingSlots struct {
	*memStore
	raced bool
}

func (r *racingSlots) InsertBooked(ctx context.Context, appt model.Appointment) (string, error) {
	if !r.raced {
		r.raced = true
		open := appt
		open.IsAvailable = true
		open.ClientName, open.ClientPhone, open.ServiceName, open.RecurringRuleID = "", "", "", ""
		r.memStore.put(open)
	}
	return r.memStore.InsertBooked(ctx, appt)
}

func TestWorkerRunOncePages(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC))

	for i, tod := range []string{"09:00", "10:00", "11:00"} {
		in := haircutInput()
		in.TimeOfDay = tod
		in.DayOfWeek = int(time.Wednesday)
		if _, err := svc.CreateRule(context.Background(), "biz", in); err != nil {
			t.Fatalf("CreateRule %d: %v", i, err)
		}
	}
	ended := mustDate("2026-01-10")
	store.rules["rule-old"] = model.RecurringRule{ID: "rule-old", BusinessID: "biz", DayOfWeek: 1, TimeOfDay: "09:00", EndDate: &ended}

	w := NewWorker(svc, discardLogger(), WorkerConfig{Weeks: 2, PageSize: 1})
	report, visited, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if visited != 3 {
		t.Fatalf("expected 3 active rules visited, got %d", visited)
	}
	// Creation seeded week one; the pass adds week two for each rule.
	if report.Inserted != 3 || report.Skipped != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
}
