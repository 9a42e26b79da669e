package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListAppointmentsByDate returns every appointment on the given day
	// that still occupies its slot (anything not cancelled). Both the
	// availability computation and the booking conflict check read through
	// this.
	ListAppointmentsByDate(ctx context.Context, date time.Time) ([]Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)

	// CreateScheduledAppointment inserts a new scheduled appointment.
	// Returns ErrSlotTaken if the (date, time) slot is already held by a
	// non-cancelled appointment.
	CreateScheduledAppointment(ctx context.Context, patientID uuid.UUID, date time.Time, t TimeOfDay) (*Appointment, error)

	// UpdateAppointmentStatus transitions id from one status to another.
	// The update is conditional on the current status matching from; if it
	// no longer does, ErrStatusChanged is returned and nothing is written.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// CompleteAppointment atomically moves the appointment to completed
	// (conditional on from, as above) and creates its visit. Returns
	// ErrVisitExists if a visit for this appointment already exists; in
	// every failure case neither write survives.
	CompleteAppointment(ctx context.Context, appointmentID uuid.UUID, from AppointmentStatus, visit Visit) (*Visit, error)

	GetVisitByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	ListVisitsByPatient(ctx context.Context, patientID uuid.UUID) ([]Visit, error)
	UpdateVisitNotes(ctx context.Context, id uuid.UUID, notes string) (*Visit, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
