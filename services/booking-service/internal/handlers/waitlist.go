package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/waitlist"
)

type WaitlistService interface {
	Register(ctx context.Context, businessID string, in waitlist.EntryInput) (model.WaitlistEntry, error)
	List(ctx context.Context, businessID string, f waitlist.ListFilter) ([]model.WaitlistEntry, error)
	UpdateStatus(ctx context.Context, businessID, id string, status model.WaitlistStatus) (model.WaitlistEntry, error)
	Delete(ctx context.Context, businessID, id string) error
}

type WaitlistHandler struct {
	svc    WaitlistService
	logger *slog.Logger
}

func NewWaitlistHandler(svc WaitlistService, logger *slog.Logger) *WaitlistHandler {
	return &WaitlistHandler{svc: svc, logger: logger}
}

type waitlistRequest struct {
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone"`
	ServiceName   string `json:"service_name"`
	RequestedDate string `json:"requested_date"`
	TimePeriod    string `json:"time_period"`
	StaffID       string `json:"staff_id"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type waitlistResponse struct {
	ID            string `json:"id"`
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone"`
	ServiceName   string `json:"service_name"`
	RequestedDate string `json:"requested_date"`
	TimePeriod    string `json:"time_period"`
	StaffID       string `json:"staff_id,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func toWaitlistResponse(e model.WaitlistEntry) waitlistResponse {
	return waitlistResponse{
		ID:            e.ID,
		ClientName:    e.ClientName,
		ClientPhone:   e.ClientPhone,
		ServiceName:   e.ServiceName,
		RequestedDate: calendar.FormatDate(e.RequestedDate),
		TimePeriod:    string(e.TimePeriod),
		StaffID:       e.StaffID,
		Status:        string(e.Status),
		CreatedAt:     timestamp(e.CreatedAt),
	}
}

func (h *WaitlistHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, waitlist.ErrInvalidEntry):
		http.Error(w, errorMessage(err, waitlist.ErrInvalidEntry), http.StatusBadRequest)
	case errors.Is(err, waitlist.ErrAlreadyWaiting):
		http.Error(w, "you are already on the waitlist for this date", http.StatusConflict)
	case errors.Is(err, waitlist.ErrEntryNotFound):
		http.Error(w, "waitlist entry not found", http.StatusNotFound)
	default:
		h.logger.Error("waitlist request failed", "path", r.URL.Path, "business_id", businessID(r), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Register is the public "notify me when a slot opens" endpoint.
func (h *WaitlistHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req waitlistRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	date, err := calendar.ParseDate(strings.TrimSpace(req.RequestedDate))
	if err != nil {
		http.Error(w, "requested_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	entry, err := h.svc.Register(r.Context(), businessID(r), waitlist.EntryInput{
		ClientName:    req.ClientName,
		ClientPhone:   req.ClientPhone,
		ServiceName:   req.ServiceName,
		RequestedDate: date,
		TimePeriod:    model.TimePeriod(req.TimePeriod),
		StaffID:       req.StaffID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toWaitlistResponse(entry))
}

func (h *WaitlistHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := parseOptionalDate(q.Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	entries, err := h.svc.List(r.Context(), businessID(r), waitlist.ListFilter{
		Date:   date,
		Status: model.WaitlistStatus(strings.TrimSpace(q.Get("status"))),
		Phone:  strings.TrimSpace(q.Get("phone")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]waitlistResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toWaitlistResponse(e))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *WaitlistHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.writeError(w, r, waitlist.ErrEntryNotFound)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	entry, err := h.svc.UpdateStatus(r.Context(), businessID(r), id, model.WaitlistStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toWaitlistResponse(entry))
}

func (h *WaitlistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.writeError(w, r, waitlist.ErrEntryNotFound)
		return
	}
	if err := h.svc.Delete(r.Context(), businessID(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
