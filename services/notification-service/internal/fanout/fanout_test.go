package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/itaybe6/barber-English-sub002/libs/events"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/model"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/push"
	"github.com/segmentio/kafka-go"
)

type memStore struct {
	inserted  []model.Notification
	tokens    map[string][]string
	deleted   []string
	staff     map[string]string
	admins    []string
	insertErr error
}

func (m *memStore) Insert(_ context.Context, n model.Notification) (model.Notification, error) {
	if m.insertErr != nil {
		return model.Notification{}, m.insertErr
	}
	n.ID = "n-" + n.UserPhone
	m.inserted = append(m.inserted, n)
	return n, nil
}

func (m *memStore) TokensFor(_ context.Context, _, phone string) ([]string, error) {
	return m.tokens[phone], nil
}

func (m *memStore) DeleteTokens(_ context.Context, _ string, tokens []string) error {
	m.deleted = append(m.deleted, tokens...)
	return nil
}

func (m *memStore) StaffPhone(_ context.Context, _, staffID string) (string, bool, error) {
	p, ok := m.staff[staffID]
	return p, ok, nil
}

func (m *memStore) AdminPhones(context.Context, string) ([]string, error) {
	return m.admins, nil
}

type recPush struct {
	sent  [][]string
	msgs  []push.Message
	stale []string
}

func (p *recPush) ProviderID() string { return "rec" }

func (p *recPush) Send(_ context.Context, tokens []string, msg push.Message) ([]string, error) {
	p.sent = append(p.sent, tokens)
	p.msgs = append(p.msgs, msg)
	return p.stale, nil
}

type recSMS struct {
	to   []string
	body []string
	err  error
}

func (s *recSMS) ProviderID() string { return "rec" }

func (s *recSMS) Send(_ context.Context, to, body string) error {
	s.to = append(s.to, to)
	s.body = append(s.body, body)
	return s.err
}

func newService(store *memStore) (*Service, *recPush, *recSMS) {
	p := &recPush{}
	s := &recSMS{}
	return New(store, p, s, slog.New(slog.NewTextHandler(io.Discard, nil))), p, s
}

func message(t *testing.T, topic string, v any) kafka.Message {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Topic: topic, Value: b}
}

func TestWaitlistJoinedGoesToStaffMember(t *testing.T) {
	store := &memStore{
		staff:  map[string]string{"staff-1": "+972503111111"},
		admins: []string{"+972509999999"},
		tokens: map[string][]string{"+972503111111": {"tok-a"}},
	}
	svc, p, s := newService(store)

	err := svc.Handle(context.Background(), message(t, events.TopicWaitlistJoined, events.WaitlistJoined{
		BusinessID: "biz", EntryID: "e1", ClientName: "Dana", ServiceName: "Cut",
		RequestedDate: "2025-03-10", TimePeriod: "morning", StaffID: "staff-1", Audience: events.AudienceStaff,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.inserted) != 1 || store.inserted[0].UserPhone != "+972503111111" {
		t.Fatalf("expected one notification for staff member, got %+v", store.inserted)
	}
	if store.inserted[0].Type != model.TypeWaitlistJoined {
		t.Fatalf("unexpected type %q", store.inserted[0].Type)
	}
	if len(p.sent) != 1 || p.sent[0][0] != "tok-a" {
		t.Fatalf("expected push to staff token, got %v", p.sent)
	}
	if p.msgs[0].Data["notification_id"] != "n-+972503111111" || p.msgs[0].Data["entry_id"] != "e1" {
		t.Fatalf("unexpected push data %v", p.msgs[0].Data)
	}
	if len(s.to) != 0 {
		t.Fatalf("staff notifications should not be texted, got %v", s.to)
	}
}

func TestWaitlistJoinedFallsBackToAdmins(t *testing.T) {
	store := &memStore{admins: []string{"+972509999999", "+972508888888", "+972509999999"}}
	svc, _, _ := newService(store)

	err := svc.Handle(context.Background(), message(t, events.TopicWaitlistJoined, events.WaitlistJoined{
		BusinessID: "biz", EntryID: "e1", StaffID: "gone", Audience: events.AudienceStaff,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("expected one notification per distinct admin, got %d", len(store.inserted))
	}
}

func TestSlotOpenedTextsClient(t *testing.T) {
	store := &memStore{}
	svc, p, s := newService(store)

	err := svc.Handle(context.Background(), message(t, events.TopicSlotOpened, events.SlotOpened{
		BusinessID: "biz", EntryID: "e1", ClientName: "Dana", ClientPhone: "+972502345678",
		ServiceName: "Cut", SlotDate: "2025-03-10", SlotTime: "09:00",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.inserted) != 1 || store.inserted[0].UserPhone != "+972502345678" {
		t.Fatalf("unexpected notifications %+v", store.inserted)
	}
	if len(p.sent) != 0 {
		t.Fatalf("no tokens registered, push should be skipped")
	}
	if len(s.to) != 1 || s.to[0] != "+972502345678" || !strings.Contains(s.body[0], "09:00") {
		t.Fatalf("unexpected sms %v %v", s.to, s.body)
	}
}

func TestCancelledByClientNotifiesStaff(t *testing.T) {
	store := &memStore{staff: map[string]string{"staff-1": "+972503111111"}}
	svc, _, s := newService(store)

	err := svc.Handle(context.Background(), message(t, events.TopicAppointmentCancelled, events.AppointmentCancelled{
		BusinessID: "biz", AppointmentID: "a1", ClientName: "Dana", ClientPhone: "+972502345678",
		SlotDate: "2025-03-10", SlotTime: "09:00", StaffID: "staff-1", CancelledBy: events.AudienceClient,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.inserted) != 1 || store.inserted[0].UserPhone != "+972503111111" {
		t.Fatalf("expected staff notification, got %+v", store.inserted)
	}
	if len(s.to) != 0 {
		t.Fatalf("unexpected sms %v", s.to)
	}
}

func TestCancelledBySalonTextsClient(t *testing.T) {
	store := &memStore{}
	svc, _, s := newService(store)

	err := svc.Handle(context.Background(), message(t, events.TopicAppointmentCancelled, events.AppointmentCancelled{
		BusinessID: "biz", AppointmentID: "a1", ClientPhone: "+972502345678", CancelledBy: events.AudienceAdmins,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.inserted) != 1 || len(s.to) != 1 {
		t.Fatalf("expected client notification and sms, got %d/%d", len(store.inserted), len(s.to))
	}
}

func TestRecurringCreatedDescribesInterval(t *testing.T) {
	store := &memStore{}
	svc, _, _ := newService(store)

	err := svc.Handle(context.Background(), message(t, events.TopicRecurringCreated, events.RecurringCreated{
		BusinessID: "biz", RuleID: "r1", ClientPhone: "+972502345678", ServiceName: "Cut",
		DayOfWeek: 2, TimeOfDay: "10:30", IntervalWeek: 2, FirstDate: "2025-03-11",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.inserted) != 1 || !strings.Contains(store.inserted[0].Body, "every 2 weeks on Tuesday") {
		t.Fatalf("unexpected body %+v", store.inserted)
	}
}

func TestStalePushTokensAreDeleted(t *testing.T) {
	store := &memStore{tokens: map[string][]string{"+972502345678": {"good", "bad"}}}
	svc, p, _ := newService(store)
	p.stale = []string{"bad"}

	_, err := svc.Deliver(context.Background(), Outgoing{
		BusinessID: "biz", Phones: []string{"+972502345678"}, Title: "t", Body: "b", Type: model.TypeGeneral,
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "bad" {
		t.Fatalf("expected stale token removed, got %v", store.deleted)
	}
}

func TestSMSFailureDoesNotFailDelivery(t *testing.T) {
	store := &memStore{}
	svc, _, s := newService(store)
	s.err = errors.New("gateway down")

	got, err := svc.Deliver(context.Background(), Outgoing{
		BusinessID: "biz", Phones: []string{"+972502345678"}, Title: "t", Body: "b", SMS: true,
	})
	if err != nil || len(got) != 1 {
		t.Fatalf("expected stored notification despite sms failure, got %d err=%v", len(got), err)
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	store := &memStore{}
	svc, _, _ := newService(store)

	err := svc.Handle(context.Background(), kafka.Message{Topic: events.TopicSlotOpened, Value: []byte("{")})
	if err != nil {
		t.Fatalf("expected malformed payload to be dropped, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestStoreFailureIsReturned(t *testing.T) {
	store := &memStore{insertErr: errors.New("db down")}
	svc, _, _ := newService(store)

	err := svc.Handle(context.Background(), message(t, events.TopicSlotOpened, events.SlotOpened{
		BusinessID: "biz", ClientPhone: "+972502345678",
	}))
	if err == nil {
		t.Fatalf("expected error so the event is retried")
	}
}
