package recurring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/storage"
)

// memStore mimics the slot guards of recurring_appointments and appointments.
type memStore struct {
	mu     sync.Mutex
	nextID int
	rules  map[string]model.RecurringRule
	slots  map[string]model.Appointment

	skipRulePrecheck bool
	findSlotErr      map[string]error
	released         []string
}

func newMemStore() *memStore {
	return &memStore{rules: map[string]model.RecurringRule{}, slots: map[string]model.Appointment{}, findSlotErr: map[string]error{}}
}

func slotKey(k model.SlotKey) string {
	return k.BusinessID + "|" + calendar.FormatDate(k.Date) + "|" + k.Time + "|" + k.StaffID
}

// conflicts reports whether candidate may not share a weekly slot with
// existing. A rule without staff takes the slot for every staff member.
func conflicts(existing, candidate model.RecurringRule) bool {
	if existing.BusinessID != candidate.BusinessID || existing.DayOfWeek != candidate.DayOfWeek || existing.TimeOfDay != candidate.TimeOfDay {
		return false
	}
	return candidate.StaffID == "" || existing.StaffID == candidate.StaffID
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) FindBySlot(_ context.Context, businessID string, dow int, tod, staffID, excludeID string) (model.RecurringRule, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipRulePrecheck {
		return model.RecurringRule{}, false, nil
	}
	want := model.RecurringRule{BusinessID: businessID, DayOfWeek: dow, TimeOfDay: tod, StaffID: staffID}
	for _, r := range m.rules {
		if r.ID != excludeID && conflicts(r, want) {
			return r, true, nil
		}
	}
	return model.RecurringRule{}, false, nil
}

func (m *memStore) Insert(_ context.Context, rule model.RecurringRule) (model.RecurringRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if conflicts(r, rule) {
			return model.RecurringRule{}, storage.ErrConflict
		}
	}
	rule.ID = m.id("rule")
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *memStore) Update(_ context.Context, rule model.RecurringRule) (model.RecurringRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[rule.ID]; !ok {
		return model.RecurringRule{}, storage.ErrNotFound
	}
	for _, r := range m.rules {
		if r.ID != rule.ID && conflicts(r, rule) {
			return model.RecurringRule{}, storage.ErrConflict
		}
	}
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *memStore) Get(_ context.Context, businessID, id string) (model.RecurringRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.BusinessID != businessID {
		return model.RecurringRule{}, storage.ErrNotFound
	}
	return r, nil
}

func (m *memStore) Delete(_ context.Context, businessID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.BusinessID != businessID {
		return storage.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memStore) ListByBusiness(_ context.Context, businessID string) ([]model.RecurringRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RecurringRule
	for _, r := range m.rules {
		if r.BusinessID == businessID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListActivePage(_ context.Context, afterID string, limit int, today time.Time) ([]model.RecurringRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, r := range m.rules {
		if id > afterID && (r.EndDate == nil || !r.EndDate.Before(today)) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]model.RecurringRule, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.rules[id])
	}
	return out, nil
}

func (m *memStore) FindSlot(_ context.Context, key model.SlotKey) (model.Appointment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.findSlotErr[slotKey(key)]; err != nil {
		return model.Appointment{}, false, err
	}
	a, ok := m.slots[slotKey(key)]
	return a, ok, nil
}

func (m *memStore) BookedAt(_ context.Context, key model.SlotKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.slots {
		if a.BusinessID != key.BusinessID || !a.SlotDate.Equal(key.Date) || a.SlotTime != key.Time || a.IsAvailable {
			continue
		}
		if key.StaffID == "" || a.StaffID == key.StaffID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertBooked(_ context.Context, appt model.Appointment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := slotKey(appt.Key())
	if _, exists := m.slots[k]; exists {
		return "", storage.ErrConflict
	}
	appt.ID = m.id("appt")
	appt.IsAvailable = false
	m.slots[k] = appt
	return appt.ID, nil
}

func (m *memStore) Claim(_ context.Context, businessID, id string, b model.Booking) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, a := range m.slots {
		if a.ID == id && a.BusinessID == businessID {
			if !a.IsAvailable {
				return false, nil
			}
			a.IsAvailable = false
			a.ClientName, a.ClientPhone, a.ServiceName, a.RecurringRuleID = b.ClientName, b.ClientPhone, b.ServiceName, b.RecurringRuleID
			m.slots[k] = a
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ReleaseRuleSlots(_ context.Context, businessID, ruleID string, from time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, ruleID)
	var n int64
	for k, a := range m.slots {
		if a.BusinessID == businessID && a.RecurringRuleID == ruleID && !a.SlotDate.Before(from) {
			a.IsAvailable = true
			a.ClientName, a.ClientPhone, a.ServiceName, a.RecurringRuleID = "", "", "", ""
			m.slots[k] = a
			n++
		}
	}
	return n, nil
}

// put stores a slot directly, as if created by another flow.
func (m *memStore) put(a model.Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id("appt")
	m.slots[slotKey(a.Key())] = a
}

func (m *memStore) slot(businessID, date, tod, staffID string) (model.Appointment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, _ := calendar.ParseDate(date)
	a, ok := m.slots[slotKey(model.SlotKey{BusinessID: businessID, Date: d, Time: tod, StaffID: staffID})]
	return a, ok
}

func (m *memStore) slotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func (m *memStore) ruleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rules)
}

type recordingNotifier struct {
	mu    sync.Mutex
	first []time.Time
	err   error
}

func (n *recordingNotifier) RecurringCreated(_ context.Context, _ model.RecurringRule, first time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.first = append(n.first, first)
	return n.err
}

// syncDispatcher runs tasks inline and swallows their errors.
type syncDispatcher struct {
	mu    sync.Mutex
	names []string
}

func (d *syncDispatcher) Dispatch(ctx context.Context, name, _ string, fn func(context.Context) error) bool {
	d.mu.Lock()
	d.names = append(d.names, name)
	d.mu.Unlock()
	_ = fn(ctx)
	return true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDate(s string) time.Time {
	d, err := calendar.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(store *memStore, now time.Time) (*Service, *recordingNotifier, *syncDispatcher) {
	n := &recordingNotifier{}
	d := &syncDispatcher{}
	svc := NewService(store, store, n, d, discardLogger(), Config{
		Location:    time.UTC,
		PhoneRegion: "IL",
		Now:         func() time.Time { return now },
	})
	return svc, n, d
}

var errBoom = errors.New("boom")
