package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tod(t *testing.T, s string) TimeOfDay {
	t.Helper()
	v, err := ParseTimeOfDay(s)
	require.NoError(t, err)
	return v
}

func TestAvailableSlotsFullGridWhenEmpty(t *testing.T) {
	env := newTestEnv()

	slots, err := env.svc.AvailableSlots(context.Background(), date(2025, 6, 10))
	require.NoError(t, err)

	require.Len(t, slots, 16)
	assert.Equal(t, "09:00", slots[0].String())
	assert.Equal(t, "16:30", slots[15].String())
}

func TestBookRemovesSlotFromAvailability(t *testing.T) {
	env := newTestEnv()
	d := date(2025, 6, 10)

	_, err := env.svc.Book(context.Background(), env.asReceptionist(), env.patient, d, tod(t, "10:00"))
	require.NoError(t, err)

	slots, err := env.svc.AvailableSlots(context.Background(), d)
	require.NoError(t, err)

	require.Len(t, slots, 15)
	for _, s := range slots {
		assert.NotEqual(t, "10:00", s.String())
	}

	// Other days are unaffected
	other, err := env.svc.AvailableSlots(context.Background(), date(2025, 6, 11))
	require.NoError(t, err)
	assert.Len(t, other, 16)
}

func TestBookSameSlotTwiceConflicts(t *testing.T) {
	env := newTestEnv()
	d := date(2025, 6, 10)
	at := tod(t, "10:00")

	first, err := env.svc.Book(context.Background(), env.asReceptionist(), env.patient, d, at)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, first.Status)

	_, err = env.svc.Book(context.Background(), env.asReceptionist(), env.otherPatient, d, at)
	assert.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, 1, env.repo.appointmentCount())
}

func TestBookRejectsOffGridTimes(t *testing.T) {
	env := newTestEnv()
	d := date(2025, 6, 10)

	for _, bad := range []string{"09:15", "08:00", "17:00"} {
		_, err := env.svc.Book(context.Background(), env.asReceptionist(), env.patient, d, tod(t, bad))
		assert.ErrorIs(t, err, ErrInvalidRequest, "time %s", bad)
	}

	assert.Equal(t, 0, env.repo.appointmentCount())
}

func TestBookRejectsPastDate(t *testing.T) {
	env := newTestEnv() // clock fixed at 2025-06-01 12:00 UTC

	_, err := env.svc.Book(context.Background(), env.asReceptionist(), env.patient, date(2025, 5, 31), tod(t, "10:00"))
	assert.ErrorIs(t, err, ErrPastDate)

	// Today is not "the past", even for an elapsed time-of-day: only the
	// calendar date is checked under the default policy.
	_, err = env.svc.Book(context.Background(), env.asReceptionist(), env.patient, date(2025, 6, 1), tod(t, "10:00"))
	assert.NoError(t, err)
}

func TestBookSameDayPastTimePolicy(t *testing.T) {
	env := newTestEnv(Policy{
		Grid:                 mustGrid("09:00", "17:00", 30*time.Minute),
		AllowSameDayPastTime: false,
	})
	today := date(2025, 6, 1) // clock says 12:00

	_, err := env.svc.Book(context.Background(), env.asReceptionist(), env.patient, today, tod(t, "10:00"))
	assert.ErrorIs(t, err, ErrPastDate)

	_, err = env.svc.Book(context.Background(), env.asReceptionist(), env.patient, today, tod(t, "12:00"))
	assert.ErrorIs(t, err, ErrPastDate)

	_, err = env.svc.Book(context.Background(), env.asReceptionist(), env.patient, today, tod(t, "12:30"))
	assert.NoError(t, err)

	// Future days never hit the time-of-day check
	_, err = env.svc.Book(context.Background(), env.asReceptionist(), env.patient, date(2025, 6, 2), tod(t, "09:00"))
	assert.NoError(t, err)
}

func TestBookAuthorization(t *testing.T) {
	env := newTestEnv()
	d := date(2025, 6, 10)

	// Patient books for themselves
	_, err := env.svc.Book(context.Background(), env.asPatient(), env.patient, d, tod(t, "09:00"))
	assert.NoError(t, err)

	// Patient cannot book for someone else
	_, err = env.svc.Book(context.Background(), env.asPatient(), env.otherPatient, d, tod(t, "09:30"))
	assert.ErrorIs(t, err, ErrForbidden)

	// Doctors never book
	_, err = env.svc.Book(context.Background(), env.asDoctor(), env.patient, d, tod(t, "09:30"))
	assert.ErrorIs(t, err, ErrForbidden)

	// Receptionist target must exist...
	_, err = env.svc.Book(context.Background(), env.asReceptionist(), uuid.New(), d, tod(t, "09:30"))
	assert.ErrorIs(t, err, ErrNotFound)

	// ...and must actually be a patient
	_, err = env.svc.Book(context.Background(), env.asReceptionist(), env.doctor, d, tod(t, "09:30"))
	assert.ErrorIs(t, err, ErrNotAPatient)
}

func TestCancelAuthorizationAndStates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	d := date(2025, 6, 10)

	appt, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, d, tod(t, "10:00"))
	require.NoError(t, err)

	// A different patient may not cancel it
	err = env.svc.Cancel(ctx, env.asOtherPatient(), appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// Doctors may not cancel at all
	err = env.svc.Cancel(ctx, env.asDoctor(), appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// The owning patient may
	err = env.svc.Cancel(ctx, env.asPatient(), appt.ID)
	require.NoError(t, err)

	// Once cancelled it is gone for lifecycle purposes
	err = env.svc.Cancel(ctx, env.asReceptionist(), appt.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The slot is free again and can be rebooked
	slots, err := env.svc.AvailableSlots(ctx, d)
	require.NoError(t, err)
	assert.Len(t, slots, 16)

	_, err = env.svc.Book(ctx, env.asReceptionist(), env.otherPatient, d, tod(t, "10:00"))
	assert.NoError(t, err)
}

func TestCancelCompletedIsInvalid(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	appt, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, date(2025, 6, 10), tod(t, "10:00"))
	require.NoError(t, err)

	_, err = env.svc.Complete(ctx, env.asDoctor(), appt.ID, "seen")
	require.NoError(t, err)

	err = env.svc.Cancel(ctx, env.asReceptionist(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestMarkNoShow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	appt, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, date(2025, 6, 10), tod(t, "10:00"))
	require.NoError(t, err)

	// Receptionist only
	_, err = env.svc.MarkNoShow(ctx, env.asPatient(), appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.MarkNoShow(ctx, env.asDoctor(), appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := env.svc.MarkNoShow(ctx, env.asReceptionist(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, updated.Status)

	// A no-show still occupies its slot
	slots, err := env.svc.AvailableSlots(ctx, date(2025, 6, 10))
	require.NoError(t, err)
	assert.Len(t, slots, 15)

	// Unknown appointment
	_, err = env.svc.MarkNoShow(ctx, env.asReceptionist(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkNoShowOnCompletedIsInvalid(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	appt, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, date(2025, 6, 10), tod(t, "10:00"))
	require.NoError(t, err)

	_, err = env.svc.Complete(ctx, env.asDoctor(), appt.ID, "seen")
	require.NoError(t, err)

	_, err = env.svc.MarkNoShow(ctx, env.asReceptionist(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCompleteCreatesVisitAtomically(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	appt, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, date(2025, 6, 10), tod(t, "10:00"))
	require.NoError(t, err)

	// Only doctors complete
	_, err = env.svc.Complete(ctx, env.asReceptionist(), appt.ID, "notes")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.Complete(ctx, env.asPatient(), appt.ID, "notes")
	assert.ErrorIs(t, err, ErrForbidden)

	visit, err := env.svc.Complete(ctx, env.asDoctor(), appt.ID, "routine checkup")
	require.NoError(t, err)
	assert.Equal(t, appt.ID, visit.AppointmentID)
	assert.Equal(t, env.doctor, visit.CompletedByDoctorID)
	assert.Equal(t, "routine checkup", visit.Notes)
	assert.Equal(t, env.clock.now, visit.CompletedAt)

	stored, err := env.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
}

func TestCompleteTwiceConflicts(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	appt, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, date(2025, 6, 10), tod(t, "10:00"))
	require.NoError(t, err)

	first, err := env.svc.Complete(ctx, env.asDoctor(), appt.ID, "first")
	require.NoError(t, err)

	_, err = env.svc.Complete(ctx, env.asDoctor(), appt.ID, "second")
	assert.ErrorIs(t, err, ErrConflict)

	require.Equal(t, 1, env.repo.visitCount())
	stored, err := env.repo.GetVisitByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Notes)
}

func TestCompleteNoShowAppointment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	appt, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, date(2025, 6, 10), tod(t, "10:00"))
	require.NoError(t, err)

	_, err = env.svc.MarkNoShow(ctx, env.asReceptionist(), appt.ID)
	require.NoError(t, err)

	// The patient turned up after all; no-show can still move to completed
	visit, err := env.svc.Complete(ctx, env.asDoctor(), appt.ID, "arrived late")
	require.NoError(t, err)
	assert.Equal(t, appt.ID, visit.AppointmentID)
}

func TestUpdateVisitNotes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	appt, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, date(2025, 6, 10), tod(t, "10:00"))
	require.NoError(t, err)

	visit, err := env.svc.Complete(ctx, env.asDoctor(), appt.ID, "initial notes")
	require.NoError(t, err)

	_, err = env.svc.UpdateVisitNotes(ctx, env.asReceptionist(), visit.ID, "edited")
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := env.svc.UpdateVisitNotes(ctx, env.asDoctor(), visit.ID, "amended notes")
	require.NoError(t, err)
	assert.Equal(t, "amended notes", updated.Notes)
	assert.Equal(t, visit.CompletedAt, updated.CompletedAt)

	_, err = env.svc.UpdateVisitNotes(ctx, env.asDoctor(), uuid.New(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListingAuthorization(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	d := date(2025, 6, 10)

	_, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, d, tod(t, "10:00"))
	require.NoError(t, err)

	// Day sheet: staff only
	appts, err := env.svc.AppointmentsByDate(ctx, env.asReceptionist(), d)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
	_, err = env.svc.AppointmentsByDate(ctx, env.asPatient(), d)
	assert.ErrorIs(t, err, ErrForbidden)

	// By patient: own or receptionist
	appts, err = env.svc.AppointmentsByPatient(ctx, env.asPatient(), env.patient)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
	_, err = env.svc.AppointmentsByPatient(ctx, env.asOtherPatient(), env.patient)
	assert.ErrorIs(t, err, ErrForbidden)

	// Visit history: doctor only
	_, err = env.svc.VisitsByPatient(ctx, env.asReceptionist(), env.patient)
	assert.ErrorIs(t, err, ErrForbidden)
	visits, err := env.svc.VisitsByPatient(ctx, env.asDoctor(), env.patient)
	require.NoError(t, err)
	assert.Empty(t, visits)
}

func TestMutationEventsRecorded(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	appt, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, date(2025, 6, 10), tod(t, "10:00"))
	require.NoError(t, err)
	_, err = env.svc.MarkNoShow(ctx, env.asReceptionist(), appt.ID)
	require.NoError(t, err)
	visit, err := env.svc.Complete(ctx, env.asDoctor(), appt.ID, "notes")
	require.NoError(t, err)
	_, err = env.svc.UpdateVisitNotes(ctx, env.asDoctor(), visit.ID, "amended")
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventAppointmentBooked,
		EventAppointmentNoShow,
		EventVisitCompleted,
		EventVisitNotesUpdated,
	}, env.repo.eventTypes())
}

func TestConcurrentBookingOfSameSlot(t *testing.T) {
	env := newTestEnv()
	d := date(2025, 6, 10)
	at := tod(t, "10:00")

	const workers = 16

	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Book(context.Background(), env.asReceptionist(), env.patient, d, at)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrConflict):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, won)
	assert.Equal(t, workers-1, lost)
	assert.Equal(t, 1, env.repo.appointmentCount())
}

// End-to-end walk through the receptionist/doctor flow.
func TestFullVisitLifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	d := date(2025, 6, 10)

	appt, err := env.svc.Book(ctx, env.asReceptionist(), env.patient, d, tod(t, "10:00"))
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)

	visit, err := env.svc.Complete(ctx, env.asDoctor(), appt.ID, "follow-up in 2 weeks")
	require.NoError(t, err)
	assert.Equal(t, "follow-up in 2 weeks", visit.Notes)
	assert.False(t, visit.CompletedAt.IsZero())

	_, err = env.svc.Complete(ctx, env.asDoctor(), appt.ID, "again")
	assert.ErrorIs(t, err, ErrConflict)

	err = env.svc.Cancel(ctx, env.asReceptionist(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	visits, err := env.svc.VisitsByPatient(ctx, env.asDoctor(), env.patient)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, visit.ID, visits[0].ID)
}
