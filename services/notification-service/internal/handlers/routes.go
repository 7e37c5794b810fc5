package handlers

import (
	"net/http"

	"github.com/itaybe6/barber-English-sub002/libs/httpx"
)

type Routes struct {
	Notifications *NotificationHandler

	// Staff must place the tenant in the request context.
	Staff  httpx.Middleware
	Public httpx.Middleware
}

func (rt Routes) Mount(mux *http.ServeMux) {
	staff := func(h http.HandlerFunc) http.Handler { return wrap(h, rt.Staff) }
	public := func(h http.HandlerFunc) http.Handler { return wrap(h, rt.Public) }

	mux.Handle("GET /v1/notifications", public(rt.Notifications.List))
	mux.Handle("GET /v1/notifications/unread-count", public(rt.Notifications.UnreadCount))
	mux.Handle("POST /v1/notifications/{id}/read", public(rt.Notifications.MarkRead))
	mux.Handle("POST /v1/notifications/read-all", public(rt.Notifications.MarkAllRead))
	mux.Handle("POST /v1/push-tokens", public(rt.Notifications.RegisterToken))
	mux.Handle("DELETE /v1/push-tokens/{token}", public(rt.Notifications.UnregisterToken))

	mux.Handle("POST /v1/notifications", staff(rt.Notifications.Create))
}

func wrap(h http.Handler, m httpx.Middleware) http.Handler {
	if m == nil {
		return h
	}
	return m(h)
}
