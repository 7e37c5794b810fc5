package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
)

// pathID returns the {id} path value when it is a UUID. Anything else cannot
// exist in storage, so callers answer 404 without a query.
func pathID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func businessID(r *http.Request) string {
	return httpx.BusinessIDFromContext(r.Context())
}

func parseOptionalDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatOptionalDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return calendar.FormatDate(*d)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// errorMessage strips the sentinel prefix from validation errors.
func errorMessage(err error, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}
