package appointments

import "errors"

// Reservation and lifecycle errors. Handlers map these onto the HTTP
// surface; none is ever collapsed into a generic failure.
var (
	ErrSlotNotFound        = errors.New("appointments: slot not found")
	ErrSlotUnavailable     = errors.New("appointments: slot already has an active appointment")
	ErrSlotInPast          = errors.New("appointments: slot is in the past")
	ErrAppointmentNotFound = errors.New("appointments: appointment not found")
	ErrInvalidTransition   = errors.New("appointments: invalid status transition")
	ErrStaleState          = errors.New("appointments: appointment changed concurrently, refresh and retry")
	ErrForbidden           = errors.New("appointments: actor not allowed to perform this transition")
	ErrReasonRequired      = errors.New("appointments: a reason is required")
)
