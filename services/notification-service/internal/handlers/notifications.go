package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	"github.com/itaybe6/barber-English-sub002/libs/phone"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/fanout"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/model"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/storage"
)

type Store interface {
	ListForPhone(ctx context.Context, businessID, phone string, unreadOnly bool, limit int) ([]model.Notification, error)
	UnreadCount(ctx context.Context, businessID, phone string) (int, error)
	MarkRead(ctx context.Context, businessID, phone, id string) error
	MarkAllRead(ctx context.Context, businessID, phone string) (int64, error)
	UpsertToken(ctx context.Context, t model.PushToken) error
	DeleteTokens(ctx context.Context, businessID string, tokens []string) error
}

type Deliverer interface {
	Deliver(ctx context.Context, out fanout.Outgoing) ([]model.Notification, error)
}

type NotificationHandler struct {
	store       Store
	deliver     Deliverer
	logger      *slog.Logger
	phoneRegion string
}

func NewNotificationHandler(store Store, deliver Deliverer, logger *slog.Logger, phoneRegion string) *NotificationHandler {
	return &NotificationHandler{store: store, deliver: deliver, logger: logger, phoneRegion: phoneRegion}
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type notificationResponse struct {
	ID        string            `json:"id"`
	UserPhone string            `json:"user_phone"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Type      string            `json:"type"`
	Data      map[string]string `json:"data,omitempty"`
	IsRead    bool              `json:"is_read"`
	ReadAt    string            `json:"read_at,omitempty"`
	CreatedAt string            `json:"created_at"`
}

func toResponse(n model.Notification) notificationResponse {
	out := notificationResponse{
		ID:        n.ID,
		UserPhone: n.UserPhone,
		Title:     n.Title,
		Body:      n.Body,
		Type:      n.Type,
		Data:      n.Data,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
	if n.ReadAt != nil {
		out.ReadAt = n.ReadAt.UTC().Format(time.RFC3339)
	}
	return out
}

// userPhone reads and normalizes the phone query parameter.
func (h *NotificationHandler) userPhone(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, err := phone.Normalize(r.URL.Query().Get("phone"), h.phoneRegion)
	if err != nil {
		http.Error(w, "phone: "+err.Error(), http.StatusBadRequest)
		return "", false
	}
	return p, true
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := h.userPhone(w, r)
	if !ok {
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}
	unread := strings.EqualFold(r.URL.Query().Get("unread"), "true")

	list, err := h.store.ListForPhone(r.Context(), httpx.BusinessIDFromContext(r.Context()), p, unread, limit)
	if err != nil {
		h.logger.Error("list notifications failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toResponse(n))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	p, ok := h.userPhone(w, r)
	if !ok {
		return
	}
	n, err := h.store.UnreadCount(r.Context(), httpx.BusinessIDFromContext(r.Context()), p)
	if err != nil {
		h.logger.Error("unread count failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	p, ok := h.userPhone(w, r)
	if !ok {
		return
	}
	err := h.store.MarkRead(r.Context(), httpx.BusinessIDFromContext(r.Context()), p, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case err != nil:
		h.logger.Error("mark read failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, ok := h.userPhone(w, r)
	if !ok {
		return
	}
	n, err := h.store.MarkAllRead(r.Context(), httpx.BusinessIDFromContext(r.Context()), p)
	if err != nil {
		h.logger.Error("mark all read failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

type createRequest struct {
	Phones []string          `json:"phones"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Type   string            `json:"type"`
	Data   map[string]string `json:"data"`
	SMS    bool              `json:"sms"`
}

// Create lets staff send a notification to specific users.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if req.Title == "" || req.Body == "" {
		http.Error(w, "title and body are required", http.StatusBadRequest)
		return
	}
	if len(req.Phones) == 0 {
		http.Error(w, "phones is required", http.StatusBadRequest)
		return
	}
	phones := make([]string, 0, len(req.Phones))
	for _, raw := range req.Phones {
		p, err := phone.Normalize(raw, h.phoneRegion)
		if err != nil {
			http.Error(w, "phone "+raw+": "+err.Error(), http.StatusBadRequest)
			return
		}
		phones = append(phones, p)
	}
	if req.Type == "" {
		req.Type = model.TypeGeneral
	}

	stored, err := h.deliver.Deliver(r.Context(), fanout.Outgoing{
		BusinessID: httpx.BusinessIDFromContext(r.Context()),
		Phones:     phones,
		Title:      req.Title,
		Body:       req.Body,
		Type:       req.Type,
		Data:       req.Data,
		SMS:        req.SMS,
	})
	if err != nil {
		h.logger.Error("create notification failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]notificationResponse, 0, len(stored))
	for _, n := range stored {
		out = append(out, toResponse(n))
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"notifications": out})
}

type tokenRequest struct {
	Phone    string `json:"phone"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (h *NotificationHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	switch platform {
	case "ios", "android", "web":
	case "":
		platform = "unknown"
	default:
		http.Error(w, "platform must be ios, android or web", http.StatusBadRequest)
		return
	}
	p, err := phone.Normalize(req.Phone, h.phoneRegion)
	if err != nil {
		http.Error(w, "phone: "+err.Error(), http.StatusBadRequest)
		return
	}
	err = h.store.UpsertToken(r.Context(), model.PushToken{
		BusinessID: httpx.BusinessIDFromContext(r.Context()),
		UserPhone:  p,
		Token:      req.Token,
		Platform:   platform,
	})
	if err != nil {
		h.logger.Error("register push token failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.PathValue("token"))
	if token == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := h.store.DeleteTokens(r.Context(), httpx.BusinessIDFromContext(r.Context()), []string{token}); err != nil {
		h.logger.Error("unregister push token failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
