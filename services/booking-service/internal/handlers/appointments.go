package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/itaybe6/barber-English-sub002/libs/auth"
	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/appointments"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/storage"
)

type AppointmentService interface {
	Generate(ctx context.Context, businessID string, in appointments.GenerateInput) ([]model.Appointment, int64, error)
	List(ctx context.Context, businessID string, f storage.SlotFilter) ([]model.Appointment, error)
	Book(ctx context.Context, businessID, id string, in appointments.BookInput) (model.Appointment, error)
	Cancel(ctx context.Context, businessID, id, cancelledBy string) (model.Appointment, error)
}

type AppointmentHandler struct {
	svc    AppointmentService
	logger *slog.Logger
}

func NewAppointmentHandler(svc AppointmentService, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

type generateRequest struct {
	Date            string `json:"date"`
	StaffID         string `json:"staff_id"`
	Open            string `json:"open"`
	Close           string `json:"close"`
	DurationMinutes int    `json:"duration_minutes"`
	StepMinutes     int    `json:"step_minutes"`
}

type generateResponse struct {
	Inserted int64          `json:"inserted"`
	Slots    []slotResponse `json:"slots"`
}

type bookRequest struct {
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	ServiceName string `json:"service_name"`
}

type slotResponse struct {
	ID              string `json:"id,omitempty"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	StaffID         string `json:"staff_id,omitempty"`
	IsAvailable     bool   `json:"is_available"`
	DurationMinutes int    `json:"duration_minutes"`
	ClientName      string `json:"client_name,omitempty"`
	ClientPhone     string `json:"client_phone,omitempty"`
	ServiceName     string `json:"service_name,omitempty"`
	RecurringRuleID string `json:"recurring_rule_id,omitempty"`
}

// toSlotResponse hides client details unless withClient is set.
func toSlotResponse(a model.Appointment, withClient bool) slotResponse {
	s := slotResponse{
		ID:              a.ID,
		Date:            calendar.FormatDate(a.SlotDate),
		Time:            a.SlotTime,
		StaffID:         a.StaffID,
		IsAvailable:     a.IsAvailable,
		DurationMinutes: a.DurationMinutes,
	}
	if withClient {
		s.ClientName = a.ClientName
		s.ClientPhone = a.ClientPhone
		s.ServiceName = a.ServiceName
		s.RecurringRuleID = a.RecurringRuleID
	}
	return s
}

func (h *AppointmentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointments.ErrInvalidRequest):
		http.Error(w, errorMessage(err, appointments.ErrInvalidRequest), http.StatusBadRequest)
	case errors.Is(err, appointments.ErrSlotTaken):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, appointments.ErrNotBooked):
		http.Error(w, "appointment cannot be cancelled", http.StatusConflict)
	case errors.Is(err, appointments.ErrAppointmentNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	default:
		h.logger.Error("appointment request failed", "path", r.URL.Path, "business_id", businessID(r), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *AppointmentHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	date, err := calendar.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	slots, inserted, err := h.svc.Generate(r.Context(), businessID(r), appointments.GenerateInput{
		Date:            date,
		StaffID:         req.StaffID,
		Open:            req.Open,
		Close:           req.Close,
		DurationMinutes: req.DurationMinutes,
		StepMinutes:     req.StepMinutes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := generateResponse{Inserted: inserted, Slots: make([]slotResponse, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, toSlotResponse(s, false))
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// List serves both the staff calendar and the public booking page. Public
// callers only ever see open slots.
func (h *AppointmentHandler) List(public bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		date, err := calendar.ParseDate(strings.TrimSpace(q.Get("date")))
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		onlyAvailable := public
		if raw := strings.TrimSpace(q.Get("available")); raw != "" && !public {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				http.Error(w, "available must be a boolean", http.StatusBadRequest)
				return
			}
			onlyAvailable = v
		}
		slots, err := h.svc.List(r.Context(), businessID(r), storage.SlotFilter{
			Date:          date,
			StaffID:       strings.TrimSpace(q.Get("staff_id")),
			OnlyAvailable: onlyAvailable,
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		items := make([]slotResponse, 0, len(slots))
		for _, s := range slots {
			items = append(items, toSlotResponse(s, !public))
		}
		httpx.WriteJSON(w, http.StatusOK, items)
	}
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.writeError(w, r, appointments.ErrAppointmentNotFound)
		return
	}
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Book(r.Context(), businessID(r), id, appointments.BookInput{
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		ServiceName: req.ServiceName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSlotResponse(appt, true))
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.writeError(w, r, appointments.ErrAppointmentNotFound)
		return
	}
	by := "staff"
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.Role != "" {
		by = claims.Role
	}
	appt, err := h.svc.Cancel(r.Context(), businessID(r), id, by)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSlotResponse(appt, true))
}
