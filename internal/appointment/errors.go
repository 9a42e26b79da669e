package appointment

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service wraps exactly one of
// these, so callers can classify with errors.Is without knowing the
// specific failure.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid request")
	ErrConflict       = errors.New("conflict")
)

var (
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrVisitNotFound       = fmt.Errorf("visit %w", ErrNotFound)

	ErrNotAPatient         = fmt.Errorf("%w: referenced user is not a patient", ErrInvalidRequest)
	ErrPastDate            = fmt.Errorf("%w: cannot book an appointment in the past", ErrInvalidRequest)
	ErrSlotNotOnGrid       = fmt.Errorf("%w: time is not a valid office slot", ErrInvalidRequest)
	ErrAppointmentComplete = fmt.Errorf("%w: appointment is already completed", ErrInvalidRequest)

	ErrSlotTaken         = fmt.Errorf("%w: time slot is already booked", ErrConflict)
	ErrVisitExists       = fmt.Errorf("%w: visit already exists for this appointment", ErrConflict)
	ErrStatusChanged     = fmt.Errorf("%w: appointment was modified concurrently", ErrConflict)
	ErrBookingInProgress = fmt.Errorf("%w: another booking for this day is in progress, please retry", ErrConflict)
)
