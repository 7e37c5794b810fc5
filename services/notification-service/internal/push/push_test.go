package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
)

type fakeMulticaster struct {
	calls [][]string
	fail  map[string]error
	err   error
}

func (f *fakeMulticaster) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.calls = append(f.calls, m.Tokens)
	if f.err != nil {
		return nil, f.err
	}
	resp := &messaging.BatchResponse{}
	for _, tok := range m.Tokens {
		if err, ok := f.fail[tok]; ok {
			resp.FailureCount++
			resp.Responses = append(resp.Responses, &messaging.SendResponse{Error: err})
			continue
		}
		resp.SuccessCount++
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + tok})
	}
	return resp, nil
}

func TestFCMSenderBatchesTokens(t *testing.T) {
	client := &fakeMulticaster{}
	s := NewFCMSenderWithClient(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tokens := make([]string, 0, 1201)
	for i := 0; i < 1201; i++ {
		tokens = append(tokens, fmt.Sprintf("t%d", i))
	}
	stale, err := s.Send(context.Background(), tokens, Message{Title: "hi", Body: "there"})
	if err != nil || len(stale) != 0 {
		t.Fatalf("unexpected stale=%v err=%v", stale, err)
	}
	if len(client.calls) != 3 || len(client.calls[0]) != 500 || len(client.calls[2]) != 201 {
		t.Fatalf("expected batches of 500/500/201, got %d calls", len(client.calls))
	}
}

func TestFCMSenderReportsTransportError(t *testing.T) {
	client := &fakeMulticaster{err: errors.New("unavailable")}
	s := NewFCMSenderWithClient(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := s.Send(context.Background(), []string{"a"}, Message{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNoopSender(t *testing.T) {
	stale, err := NewNoopSender().Send(context.Background(), []string{"a"}, Message{})
	if err != nil || stale != nil {
		t.Fatalf("noop must succeed silently")
	}
}
