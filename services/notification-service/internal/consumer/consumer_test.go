package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/itaybe6/barber-English-sub002/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type memInbox struct {
	mu        sync.Mutex
	seen      map[string]bool
	forgotten []string
}

func (m *memInbox) Record(_ context.Context, id, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memInbox) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
	m.forgotten = append(m.forgotten, id)
	return nil
}

func message(offset int64, eventID string) kafka.Message {
	return kafka.Message{
		Topic:   "booking.slot.opened.v1",
		Offset:  offset,
		Headers: kafkax.EventMeta{EventID: eventID, EventType: "booking.slot.opened.v1", BusinessID: "biz"}.Headers(),
	}
}

func TestConsumerDedupesAndReleasesFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		message(1, "e1"),
		message(2, "e1"),
		message(3, "e2"),
		{Topic: "booking.slot.opened.v1", Offset: 4},
	}}
	inbox := &memInbox{seen: map[string]bool{}}

	var handled []string
	c := NewWithReader(slog.New(slog.NewTextHandler(io.Discard, nil)), inbox, reader, func(_ context.Context, msg kafka.Message) error {
		id := kafkax.ExtractEventMeta(msg).EventID
		handled = append(handled, id)
		if id == "e2" {
			return errors.New("push provider down")
		}
		return nil
	})
	c.Run(ctx)

	if len(handled) != 2 || handled[0] != "e1" || handled[1] != "e2" {
		t.Fatalf("expected e1 once and e2 once, got %v", handled)
	}
	if len(inbox.forgotten) != 1 || inbox.forgotten[0] != "e2" {
		t.Fatalf("expected failed event to be released, got %v", inbox.forgotten)
	}
	if len(reader.committed) != 4 {
		t.Fatalf("expected every message committed, got %v", reader.committed)
	}
	if !reader.closed {
		t.Fatalf("reader not closed")
	}
}
