package waitlist

import "errors"

var (
	ErrInvalidEntry = errors.New("invalid waitlist entry")
	// ErrAlreadyWaiting is returned when the phone already has a waiting
	// entry for the requested date.
	ErrAlreadyWaiting = errors.New("already on the waitlist for this date")
	ErrEntryNotFound  = errors.New("waitlist entry not found")
)
