package accounts

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidResetToken  = errors.New("reset token is invalid or expired")
	ErrWeakPassword       = errors.New("password is too short")
	ErrInvalidEmail       = errors.New("email is required")
)
