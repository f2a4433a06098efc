package store

import "errors"

var (
	ErrBookingNotFound    = errors.New("booking not found")
	ErrBranchNotFound     = errors.New("branch not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrInvalidState       = errors.New("invalid booking state")
	ErrBookingDisabled    = errors.New("booking is disabled")
	ErrWaitlistClosed     = errors.New("waitlist not available for branch")
	ErrAppointmentsClosed = errors.New("appointments not available for branch")
	ErrAppointmentDetails = errors.New("appointment date and time required")
	ErrDayUnavailable     = errors.New("appointments not taken on that day")
	ErrSlotUnavailable    = errors.New("no such appointment slot")
	ErrSlotFull           = errors.New("appointment slot is full")
	ErrTooManyGuests      = errors.New("guest count exceeds limit")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
)
