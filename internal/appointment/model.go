package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient      Role = "patient"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleReceptionist:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, s)
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Actor is the authenticated caller, passed into every operation. The core
// never looks the actor up; authentication happens upstream.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type User struct {
	ID          uuid.UUID
	Name        string
	PhoneNumber string
	Role        Role
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TimeOfDay is a clock time on the office's daily grid, stored as minutes
// since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time must be HH:MM, got %q", ErrInvalidRequest, s)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Minutes() int { return int(t) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// DateOnly truncates a timestamp to its calendar day in UTC. All appointment
// dates are normalized through this before storage or comparison.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", ErrInvalidRequest, s)
	}
	return DateOnly(d), nil
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Date      time.Time // calendar day, midnight UTC
	Time      TimeOfDay
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Occupies reports whether the appointment holds its slot for conflict
// purposes. Completed appointments keep their historical slot; cancelled
// ones free it.
func (a *Appointment) Occupies() bool {
	return a.Status != StatusCancelled
}

type Visit struct {
	ID                  uuid.UUID
	AppointmentID       uuid.UUID
	CompletedByDoctorID uuid.UUID
	Notes               string
	CompletedAt         time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Clock supplies the current time so past-date checks and completedAt stamps
// are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }
