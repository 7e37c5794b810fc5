package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestWebhookSenderPostsMessage(t *testing.T) {
	var got outbound
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(WebhookConfig{URL: srv.URL, Token: "secret", From: "Salon"})
	if err := s.Send(context.Background(), " +972525551234 ", "A slot opened"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got.To != "+972525551234" || got.From != "Salon" || got.Body != "A slot opened" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestWebhookSenderTruncatesLongBodies(t *testing.T) {
	var got outbound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	body := strings.Repeat("ש", 300)
	if err := NewWebhookSender(WebhookConfig{URL: srv.URL}).Send(context.Background(), "+1", body); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := utf8.RuneCountInString(got.Body); n != maxBodyRunes {
		t.Fatalf("expected %d runes, got %d", maxBodyRunes, n)
	}
}

func TestWebhookSenderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(WebhookConfig{URL: srv.URL}).Send(context.Background(), "+1", "x")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected gateway error with detail, got %v", err)
	}
	if err := NewWebhookSender(WebhookConfig{}).Send(context.Background(), "+1", "x"); err == nil {
		t.Fatalf("expected error without url")
	}
	if err := NewWebhookSender(WebhookConfig{URL: srv.URL}).Send(context.Background(), " ", "x"); err == nil {
		t.Fatalf("expected error without recipient")
	}
}
