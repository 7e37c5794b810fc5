package httpx

import (
	"context"
	"net/http"
	"strings"
)

// BusinessIDHeader selects the white-label tenant for public endpoints.
const BusinessIDHeader = "X-Business-Id"

func BusinessIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyBusinessID).(string)
	return v
}

func ContextWithBusinessID(ctx context.Context, businessID string) context.Context {
	if businessID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyBusinessID, businessID)
}

// WithBusiness resolves the tenant from the X-Business-Id header, falling back
// to the deployment default. Requests without any tenant are rejected.
// A tenant already placed in the context (e.g. from a staff token) wins.
func WithBusiness(defaultBusinessID string) Middleware {
	defaultBusinessID = strings.TrimSpace(defaultBusinessID)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if BusinessIDFromContext(r.Context()) != "" {
				next.ServeHTTP(w, r)
				return
			}
			id := strings.TrimSpace(r.Header.Get(BusinessIDHeader))
			if id == "" {
				id = defaultBusinessID
			}
			if id == "" {
				http.Error(w, "business id is required", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithBusinessID(r.Context(), id)))
		})
	}
}
