package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// memRepo is an in-memory Repository with the same conflict semantics as
// the Postgres implementation: slot uniqueness among non-cancelled
// appointments, one visit per appointment, and compare-and-set status
// updates. All mutations run under one mutex, so the completion unit is
// atomic here too.
type memRepo struct {
	mu           sync.Mutex
	users        map[uuid.UUID]User
	appointments map[uuid.UUID]Appointment
	visits       map[uuid.UUID]Visit
	events       []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:        make(map[uuid.UUID]User),
		appointments: make(map[uuid.UUID]Appointment),
		visits:       make(map[uuid.UUID]Visit),
	}
}

func (m *memRepo) addUser(role Role) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.users[id] = User{ID: id, Name: "user-" + id.String()[:8], Role: role}
	return id
}

func (m *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) ListAppointmentsByDate(_ context.Context, date time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.Date.Equal(date) && a.Occupies() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) CreateScheduledAppointment(_ context.Context, patientID uuid.UUID, date time.Time, t TimeOfDay) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.Date.Equal(date) && a.Time == t && a.Occupies() {
			return nil, ErrSlotTaken
		}
	}
	a := Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		Date:      date,
		Time:      t,
		Status:    StatusScheduled,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.appointments[a.ID] = a
	return &a, nil
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrStatusChanged
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

func (m *memRepo) CompleteAppointment(_ context.Context, appointmentID uuid.UUID, from AppointmentStatus, visit Visit) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[appointmentID]
	if !ok || a.Status != from {
		return nil, ErrStatusChanged
	}
	for _, v := range m.visits {
		if v.AppointmentID == appointmentID {
			return nil, ErrVisitExists
		}
	}
	a.Status = StatusCompleted
	a.UpdatedAt = time.Now()
	m.appointments[appointmentID] = a
	m.visits[visit.ID] = visit
	return &visit, nil
}

func (m *memRepo) GetVisitByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	return &v, nil
}

func (m *memRepo) ListVisitsByPatient(_ context.Context, patientID uuid.UUID) ([]Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Visit
	for _, v := range m.visits {
		a, ok := m.appointments[v.AppointmentID]
		if ok && a.PatientID == patientID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateVisitNotes(_ context.Context, id uuid.UUID, notes string) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	v.Notes = notes
	m.visits[id] = v
	return &v, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *memRepo) visitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visits)
}

func (m *memRepo) appointmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appointments)
}

// mutexLocker serializes all bookings behind one in-process mutex, standing
// in for the Redis day lock.
type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) WithDayLock(ctx context.Context, _ time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func mustGrid(start, end string, slot time.Duration) SlotGrid {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		panic(err)
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		panic(err)
	}
	g, err := NewSlotGrid(s, e, slot)
	if err != nil {
		panic(err)
	}
	return g
}

type testEnv struct {
	svc          *Service
	repo         *memRepo
	clock        *fixedClock
	patient      uuid.UUID
	otherPatient uuid.UUID
	doctor       uuid.UUID
	receptionist uuid.UUID
}

func (e *testEnv) asPatient() Actor      { return Actor{ID: e.patient, Role: RolePatient} }
func (e *testEnv) asOtherPatient() Actor { return Actor{ID: e.otherPatient, Role: RolePatient} }
func (e *testEnv) asDoctor() Actor       { return Actor{ID: e.doctor, Role: RoleDoctor} }
func (e *testEnv) asReceptionist() Actor { return Actor{ID: e.receptionist, Role: RoleReceptionist} }

func newTestEnv(policy ...Policy) *testEnv {
	repo := newMemRepo()
	clock := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	p := Policy{
		Grid:                 mustGrid("09:00", "17:00", 30*time.Minute),
		AllowSameDayPastTime: true,
	}
	if len(policy) > 0 {
		p = policy[0]
	}

	svc := NewService(repo, &mutexLocker{}, clock, p, zerolog.Nop())

	return &testEnv{
		svc:          svc,
		repo:         repo,
		clock:        clock,
		patient:      repo.addUser(RolePatient),
		otherPatient: repo.addUser(RolePatient),
		doctor:       repo.addUser(RoleDoctor),
		receptionist: repo.addUser(RoleReceptionist),
	}
}
