package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/medoffice/office-scheduling/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventVisitCompleted       = "VISIT_COMPLETED"
	EventVisitNotesUpdated    = "VISIT_NOTES_UPDATED"
)

// Policy holds the office scheduling rules the service enforces. Everything
// here comes from configuration so tests can use arbitrary windows.
type Policy struct {
	Grid SlotGrid

	// AllowSameDayPastTime keeps the historical behavior of checking only
	// the calendar date when rejecting past bookings. When false, a
	// same-day booking for an already-elapsed time is rejected too.
	AllowSameDayPastTime bool
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	clock  Clock
	policy Policy
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, clock Clock, policy Policy, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		clock:  clock,
		policy: policy,
		log:    log,
	}
}

// AvailableSlots returns the office grid for date minus every slot held by a
// non-cancelled appointment, in ascending order.
func (s *Service) AvailableSlots(ctx context.Context, date time.Time) ([]TimeOfDay, error) {
	date = DateOnly(date)

	existing, err := s.repo.ListAppointmentsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments for %s: %w", date.Format("2006-01-02"), err)
	}

	booked := make(map[TimeOfDay]struct{}, len(existing))
	for _, a := range existing {
		booked[a.Time] = struct{}{}
	}

	free := make([]TimeOfDay, 0)
	for _, t := range s.policy.Grid.Slots() {
		if _, taken := booked[t]; !taken {
			free = append(free, t)
		}
	}

	s.log.Debug().Str("date", date.Format("2006-01-02")).Int("free", len(free)).Msg("computed available slots")
	return free, nil
}

// Book reserves the slot (date, t) for the patient as a scheduled
// appointment. The day's booked-times re-check and the insert run inside a
// per-day lock; the partial unique index on the slot is the final authority
// if two writers ever race past it.
func (s *Service) Book(ctx context.Context, actor Actor, patientID uuid.UUID, date time.Time, t TimeOfDay) (*Appointment, error) {
	if err := authorize(actor, opBook, patientID); err != nil {
		return nil, err
	}

	patient, err := s.repo.GetUserByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient.Role != RolePatient {
		return nil, ErrNotAPatient
	}

	date = DateOnly(date)
	if err := s.checkBookable(date, t); err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithDayLock(ctx, date, func(lockCtx context.Context) error {
		// Re-check inside the critical section against a fresh read.
		existing, err := s.repo.ListAppointmentsByDate(lockCtx, date)
		if err != nil {
			return fmt.Errorf("check booked slots: %w", err)
		}
		for _, a := range existing {
			if a.Time == t {
				return ErrSlotTaken
			}
		}

		appt, err := s.repo.CreateScheduledAppointment(lockCtx, patientID, date, t)
		if err != nil {
			return err
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"patient_id": patientID.String(),
			"booked_by":  actor.ID.String(),
			"date":       date.Format("2006-01-02"),
			"time":       t.String(),
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingInProgress
		}
		return nil, err
	}

	s.log.Info().
		Stringer("appointment_id", created.ID).
		Stringer("patient_id", patientID).
		Str("date", date.Format("2006-01-02")).
		Stringer("time", t).
		Msg("appointment booked")

	return created, nil
}

func (s *Service) checkBookable(date time.Time, t TimeOfDay) error {
	now := s.clock.Now()
	today := DateOnly(now)

	if date.Before(today) {
		return ErrPastDate
	}
	if !s.policy.AllowSameDayPastTime && date.Equal(today) {
		if t.Minutes() <= now.Hour()*60+now.Minute() {
			return ErrPastDate
		}
	}
	if !s.policy.Grid.Aligned(t) {
		return fmt.Errorf("%w (%s-%s every %s)", ErrSlotNotOnGrid, s.policy.Grid.Start, s.policy.Grid.End, s.policy.Grid.Slot)
	}
	return nil
}

// Cancel moves the appointment to cancelled, freeing its slot. Completed
// appointments are terminal and cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) error {
	appt, err := s.loadActive(ctx, id)
	if err != nil {
		return err
	}

	if err := authorize(actor, opCancel, appt.PatientID); err != nil {
		return err
	}
	if appt.Status == StatusCompleted {
		return ErrAppointmentComplete
	}

	if _, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, StatusCancelled); err != nil {
		return err
	}

	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{
		"cancelled_by": actor.ID.String(),
		"role":         string(actor.Role),
	})
	s.log.Info().Stringer("appointment_id", id).Stringer("cancelled_by", actor.ID).Msg("appointment cancelled")
	return nil
}

// MarkNoShow flags a missed appointment. Receptionist only.
func (s *Service) MarkNoShow(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	if err := authorize(actor, opMarkNoShow, uuid.Nil); err != nil {
		return nil, err
	}

	appt, err := s.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCompleted {
		return nil, ErrAppointmentComplete
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, StatusNoShow)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentNoShow, map[string]any{
		"marked_by": actor.ID.String(),
	})
	s.log.Info().Stringer("appointment_id", id).Msg("appointment marked as no-show")
	return updated, nil
}

// Complete transitions the appointment to completed and records its visit
// in one atomic unit. The acting doctor is recorded on the visit. A second
// completion attempt loses either the status compare-and-set or the
// one-visit-per-appointment constraint and surfaces as a conflict.
func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID, notes string) (*Visit, error) {
	if err := authorize(actor, opComplete, uuid.Nil); err != nil {
		return nil, err
	}

	appt, err := s.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCompleted {
		return nil, ErrVisitExists
	}

	visit := Visit{
		ID:                  uuid.New(),
		AppointmentID:       appt.ID,
		CompletedByDoctorID: actor.ID,
		Notes:               notes,
		CompletedAt:         s.clock.Now(),
	}

	recorded, err := s.repo.CompleteAppointment(ctx, appt.ID, appt.Status, visit)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventVisitCompleted, map[string]any{
		"visit_id":  recorded.ID.String(),
		"doctor_id": actor.ID.String(),
	})
	s.log.Info().
		Stringer("appointment_id", appt.ID).
		Stringer("visit_id", recorded.ID).
		Stringer("doctor_id", actor.ID).
		Msg("visit completed")

	return recorded, nil
}

// UpdateVisitNotes replaces the visit's notes. Doctor only; independent of
// the owning appointment's state.
func (s *Service) UpdateVisitNotes(ctx context.Context, actor Actor, visitID uuid.UUID, notes string) (*Visit, error) {
	if err := authorize(actor, opUpdateVisitNotes, uuid.Nil); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateVisitNotes(ctx, visitID, notes)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.AppointmentID, EventVisitNotesUpdated, map[string]any{
		"visit_id":  visitID.String(),
		"doctor_id": actor.ID.String(),
	})
	return updated, nil
}

// AppointmentsByDate is the staff day sheet: every non-cancelled appointment
// on the given day.
func (s *Service) AppointmentsByDate(ctx context.Context, actor Actor, date time.Time) ([]Appointment, error) {
	if err := authorize(actor, opListByDate, uuid.Nil); err != nil {
		return nil, err
	}
	return s.repo.ListAppointmentsByDate(ctx, DateOnly(date))
}

func (s *Service) AppointmentsByPatient(ctx context.Context, actor Actor, patientID uuid.UUID) ([]Appointment, error) {
	if err := authorize(actor, opListByPatient, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListAppointmentsByPatient(ctx, patientID)
}

func (s *Service) VisitsByPatient(ctx context.Context, actor Actor, patientID uuid.UUID) ([]Visit, error) {
	if err := authorize(actor, opListVisits, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListVisitsByPatient(ctx, patientID)
}

// loadActive fetches an appointment for a lifecycle operation. Cancelled
// appointments keep their row for history but behave as gone here.
func (s *Service) loadActive(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Stringer("appointment_id", appointmentID).Msg("failed to insert event log")
	}
}
