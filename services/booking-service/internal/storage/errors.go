package storage

import (
	"errors"

	"github.com/itaybe6/barber-English-sub002/libs/db"
)

var (
	// ErrConflict means a unique index rejected the write: another rule,
	// slot or waiting entry already owns the key.
	ErrConflict  = errors.New("conflict")
	ErrNotFound  = errors.New("not found")
	ErrNotBooked = errors.New("slot is not booked")
)

type rowScanner interface {
	Scan(dest ...any) error
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return ErrConflict
	default:
		return err
	}
}
