package handlers

import (
	"net/http"

	"github.com/itaybe6/barber-English-sub002/libs/auth"
	"github.com/itaybe6/barber-English-sub002/libs/httpx"
)

type Routes struct {
	Auth *AuthHandler

	Staff httpx.Middleware
	// ResetLimit throttles the unauthenticated reset endpoints.
	ResetLimit httpx.Middleware
}

func (rt Routes) Mount(mux *http.ServeMux) {
	limited := func(h http.HandlerFunc) http.Handler { return wrap(h, rt.ResetLimit) }

	mux.Handle("POST /v1/auth/login", limited(rt.Auth.Login))
	mux.Handle("POST /v1/auth/password-reset", limited(rt.Auth.RequestReset))
	mux.Handle("POST /v1/auth/password-reset/confirm", limited(rt.Auth.ConfirmReset))

	mux.Handle("GET /v1/auth/me", wrap(http.HandlerFunc(rt.Auth.Me), rt.Staff))
	mux.Handle("GET /v1/auth/audit", wrap(http.HandlerFunc(rt.Auth.Audit), rt.Staff, auth.RequireRole(auth.RoleAdmin)))
}

// wrap applies middlewares outermost first; nil entries are skipped.
func wrap(h http.Handler, m ...httpx.Middleware) http.Handler {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] != nil {
			h = m[i](h)
		}
	}
	return h
}
