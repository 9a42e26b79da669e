package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres schema expectations (see cmd/seed):
//   - appointments has a partial unique index on
//     (appointment_date, appointment_time) WHERE status <> 'cancelled',
//     which is the final authority on slot conflicts.
//   - visits.appointment_id is unique, which is the final authority on
//     one-visit-per-appointment.
const (
	constraintSlot  = "uq_appointments_slot"
	constraintVisit = "uq_visits_appointment"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.PhoneNumber,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &u, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var minutes int

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.Date,
		&minutes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOnly(a.Date)
	a.Time = TimeOfDay(minutes)
	return &a, nil
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit

	err := row.Scan(
		&v.ID,
		&v.AppointmentID,
		&v.CompletedByDoctorID,
		&v.Notes,
		&v.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}

	return &v, nil
}

func constraintViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone_number, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, appointment_date, appointment_time, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByDate(ctx context.Context, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, appointment_date, appointment_time, status, created_at, updated_at
		FROM appointments
		WHERE appointment_date = $1
		  AND status <> 'cancelled'
		ORDER BY appointment_time
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, appointment_date, appointment_time, status, created_at, updated_at
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date, appointment_time
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateScheduledAppointment(ctx context.Context, patientID uuid.UUID, date time.Time, t TimeOfDay) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, appointment_date, appointment_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'scheduled', now(), now())
		RETURNING id, patient_id, appointment_date, appointment_time, status, created_at, updated_at
	`, id, patientID, date, t.Minutes())

	appt, err := scanAppointment(row)
	if err != nil {
		if constraintViolation(err, constraintSlot) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, patient_id, appointment_date, appointment_time, status, created_at, updated_at
	`, id, to, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// The row exists but its status moved between our read and
			// this write, or it was deleted outright. Either way the
			// caller's view is stale.
			return nil, ErrStatusChanged
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, appointmentID uuid.UUID, from AppointmentStatus, visit Visit) (*Visit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin completion tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
	`, appointmentID, from)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrStatusChanged
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO visits (id, appointment_id, completed_by_doctor_id, notes, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, appointment_id, completed_by_doctor_id, notes, completed_at
	`, visit.ID, visit.AppointmentID, visit.CompletedByDoctorID, visit.Notes, visit.CompletedAt)

	recorded, err := scanVisit(row)
	if err != nil {
		if constraintViolation(err, constraintVisit) {
			return nil, ErrVisitExists
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit completion tx: %w", err)
	}

	return recorded, nil
}

func (r *PgRepository) GetVisitByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, completed_by_doctor_id, notes, completed_at
		FROM visits
		WHERE id = $1
	`, id)
	return scanVisit(row)
}

func (r *PgRepository) ListVisitsByPatient(ctx context.Context, patientID uuid.UUID) ([]Visit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT v.id, v.appointment_id, v.completed_by_doctor_id, v.notes, v.completed_at
		FROM visits v
		JOIN appointments a ON a.id = v.appointment_id
		WHERE a.patient_id = $1
		ORDER BY v.completed_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateVisitNotes(ctx context.Context, id uuid.UUID, notes string) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE visits
		SET notes = $2
		WHERE id = $1
		RETURNING id, appointment_id, completed_by_doctor_id, notes, completed_at
	`, id, notes)
	return scanVisit(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
