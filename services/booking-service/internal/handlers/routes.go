package handlers

import (
	"net/http"

	"github.com/itaybe6/barber-English-sub002/libs/httpx"
)

type Routes struct {
	Recurring    *RecurringHandler
	Waitlist     *WaitlistHandler
	Appointments *AppointmentHandler

	// Staff guards the back-office API and must place the tenant in the context.
	Staff httpx.Middleware
	// Public guards the client-facing API.
	Public httpx.Middleware
}

func (rt Routes) Mount(mux *http.ServeMux) {
	staff := func(h http.HandlerFunc) http.Handler { return wrap(h, rt.Staff) }
	public := func(h http.HandlerFunc) http.Handler { return wrap(h, rt.Public) }

	mux.Handle("POST /v1/recurring-appointments", staff(rt.Recurring.Create))
	mux.Handle("GET /v1/recurring-appointments", staff(rt.Recurring.List))
	mux.Handle("GET /v1/recurring-appointments/{id}", staff(rt.Recurring.Get))
	mux.Handle("PUT /v1/recurring-appointments/{id}", staff(rt.Recurring.Update))
	mux.Handle("DELETE /v1/recurring-appointments/{id}", staff(rt.Recurring.Delete))

	mux.Handle("GET /v1/waitlist", staff(rt.Waitlist.List))
	mux.Handle("PATCH /v1/waitlist/{id}", staff(rt.Waitlist.UpdateStatus))
	mux.Handle("DELETE /v1/waitlist/{id}", staff(rt.Waitlist.Delete))

	mux.Handle("POST /v1/slots/generate", staff(rt.Appointments.Generate))
	mux.Handle("GET /v1/slots", staff(rt.Appointments.List(false)))
	mux.Handle("POST /v1/appointments/{id}/cancel", staff(rt.Appointments.Cancel))

	mux.Handle("POST /v1/public/waitlist", public(rt.Waitlist.Register))
	mux.Handle("GET /v1/public/slots", public(rt.Appointments.List(true)))
	mux.Handle("POST /v1/public/appointments/{id}/book", public(rt.Appointments.Book))
}

func wrap(h http.Handler, m httpx.Middleware) http.Handler {
	if m == nil {
		return h
	}
	return m(h)
}
