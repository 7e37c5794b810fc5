package recurring

import "errors"

var (
	ErrInvalidRule   = errors.New("invalid recurring rule")
	ErrDuplicateRule = errors.New("a recurring rule already exists for this day, time and staff member")
	ErrSlotBooked    = errors.New("the nearest occurrence is already booked")
	ErrRuleNotFound  = errors.New("recurring rule not found")
)
