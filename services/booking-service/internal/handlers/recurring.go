package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/recurring"
)

type RecurringService interface {
	CreateRule(ctx context.Context, businessID string, in recurring.RuleInput) (model.RecurringRule, error)
	UpdateRule(ctx context.Context, businessID, id string, in recurring.RuleInput) (model.RecurringRule, error)
	DeleteRule(ctx context.Context, businessID, id string, releaseFuture bool) error
	GetRule(ctx context.Context, businessID, id string) (model.RecurringRule, error)
	ListRules(ctx context.Context, businessID string) ([]model.RecurringRule, error)
}

type RecurringHandler struct {
	svc    RecurringService
	logger *slog.Logger
}

func NewRecurringHandler(svc RecurringService, logger *slog.Logger) *RecurringHandler {
	return &RecurringHandler{svc: svc, logger: logger}
}

type ruleRequest struct {
	ClientName          string `json:"client_name"`
	ClientPhone         string `json:"client_phone"`
	DayOfWeek           *int   `json:"day_of_week"`
	TimeOfDay           string `json:"time_of_day"`
	ServiceName         string `json:"service_name"`
	RepeatIntervalWeeks int    `json:"repeat_interval_weeks"`
	StartDate           string `json:"start_date"`
	EndDate             string `json:"end_date"`
	StaffID             string `json:"staff_id"`
}

type ruleResponse struct {
	ID                  string `json:"id"`
	BusinessID          string `json:"business_id"`
	ClientName          string `json:"client_name"`
	ClientPhone         string `json:"client_phone"`
	DayOfWeek           int    `json:"day_of_week"`
	TimeOfDay           string `json:"time_of_day"`
	ServiceName         string `json:"service_name"`
	RepeatIntervalWeeks int    `json:"repeat_interval_weeks"`
	StartDate           string `json:"start_date,omitempty"`
	EndDate             string `json:"end_date,omitempty"`
	StaffID             string `json:"staff_id,omitempty"`
	CreatedAt           string `json:"created_at,omitempty"`
}

func toRuleResponse(r model.RecurringRule) ruleResponse {
	return ruleResponse{
		ID:                  r.ID,
		BusinessID:          r.BusinessID,
		ClientName:          r.ClientName,
		ClientPhone:         r.ClientPhone,
		DayOfWeek:           r.DayOfWeek,
		TimeOfDay:           r.TimeOfDay,
		ServiceName:         r.ServiceName,
		RepeatIntervalWeeks: r.RepeatIntervalWeeks,
		StartDate:           formatOptionalDate(r.StartDate),
		EndDate:             formatOptionalDate(r.EndDate),
		StaffID:             r.StaffID,
		CreatedAt:           timestamp(r.CreatedAt),
	}
}

func (req ruleRequest) input() (recurring.RuleInput, string) {
	if req.DayOfWeek == nil {
		return recurring.RuleInput{}, "day_of_week is required"
	}
	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		return recurring.RuleInput{}, "start_date must be YYYY-MM-DD"
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		return recurring.RuleInput{}, "end_date must be YYYY-MM-DD"
	}
	return recurring.RuleInput{
		ClientName:          req.ClientName,
		ClientPhone:         req.ClientPhone,
		DayOfWeek:           *req.DayOfWeek,
		TimeOfDay:           req.TimeOfDay,
		ServiceName:         req.ServiceName,
		RepeatIntervalWeeks: req.RepeatIntervalWeeks,
		StartDate:           start,
		EndDate:             end,
		StaffID:             req.StaffID,
	}, ""
}

func (h *RecurringHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, recurring.ErrInvalidRule):
		http.Error(w, errorMessage(err, recurring.ErrInvalidRule), http.StatusBadRequest)
	case errors.Is(err, recurring.ErrDuplicateRule):
		http.Error(w, "a recurring appointment already exists for this day, time and staff member", http.StatusConflict)
	case errors.Is(err, recurring.ErrSlotBooked):
		http.Error(w, "the first occurrence of this slot is already booked", http.StatusConflict)
	case errors.Is(err, recurring.ErrRuleNotFound):
		http.Error(w, "recurring appointment not found", http.StatusNotFound)
	default:
		h.logger.Error("recurring request failed", "path", r.URL.Path, "business_id", businessID(r), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *RecurringHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	in, msg := req.input()
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	rule, err := h.svc.CreateRule(r.Context(), businessID(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *RecurringHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context(), businessID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		items = append(items, toRuleResponse(rule))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *RecurringHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.writeError(w, r, recurring.ErrRuleNotFound)
		return
	}
	rule, err := h.svc.GetRule(r.Context(), businessID(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *RecurringHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.writeError(w, r, recurring.ErrRuleNotFound)
		return
	}
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	in, msg := req.input()
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	rule, err := h.svc.UpdateRule(r.Context(), businessID(r), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRuleResponse(rule))
}

// Delete keeps already seeded slots unless release_future=true.
func (h *RecurringHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.writeError(w, r, recurring.ErrRuleNotFound)
		return
	}
	release := false
	if raw := strings.TrimSpace(r.URL.Query().Get("release_future")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "release_future must be a boolean", http.StatusBadRequest)
			return
		}
		release = v
	}
	if err := h.svc.DeleteRule(r.Context(), businessID(r), id, release); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
