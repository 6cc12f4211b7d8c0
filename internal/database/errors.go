package database

import "errors"

var (
	// ErrInvalidWindow is returned for malformed or past time ranges,
	// before anything is persisted.
	ErrInvalidWindow = errors.New("booking window is invalid")

	// ErrConflict is returned when an active booking on the same experiment
	// overlaps the requested window.
	ErrConflict = errors.New("time slot is already booked")

	// ErrBookingNotFound is returned when no booking exists with the given id.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrNotOwner is returned when the requester does not own the booking.
	ErrNotOwner = errors.New("booking belongs to another user")

	// ErrAlreadyStarted rejects cancellation of a running or past booking.
	ErrAlreadyStarted = errors.New("booking has already started")

	// ErrNotActiveWindow rejects activation outside [start, end) or of a
	// cancelled booking.
	ErrNotActiveWindow = errors.New("booking is not currently active")

	// ErrDateTooFar rejects bookings beyond the configured horizon.
	ErrDateTooFar = errors.New("booking date is too far in the future")

	// ErrUnknownExperiment is returned for keys missing from the catalog.
	ErrUnknownExperiment = errors.New("unknown experiment")

	// ErrRateLimited rejects booking attempts over the per-user allowance.
	ErrRateLimited = errors.New("too many booking requests")
)
