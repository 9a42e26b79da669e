package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medoffice/office-scheduling/internal/db"
)

// Schema is created here so a fresh database is usable straight after
// seeding. The two unique indexes are load-bearing: the partial slot index
// is the booking conflict authority, the visit index the
// one-visit-per-appointment authority.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	phone_number TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('patient', 'doctor', 'receptionist')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY,
	patient_id UUID NOT NULL REFERENCES users (id),
	appointment_date DATE NOT NULL,
	appointment_time SMALLINT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('scheduled', 'completed', 'no_show', 'cancelled')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_appointments_slot
	ON appointments (appointment_date, appointment_time)
	WHERE status <> 'cancelled';

CREATE TABLE IF NOT EXISTS visits (
	id UUID PRIMARY KEY,
	appointment_id UUID NOT NULL REFERENCES appointments (id),
	completed_by_doctor_id UUID NOT NULL REFERENCES users (id),
	notes TEXT NOT NULL DEFAULT '',
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_visits_appointment
	ON visits (appointment_id);

CREATE TABLE IF NOT EXISTS event_logs (
	id BIGSERIAL PRIMARY KEY,
	event_type TEXT NOT NULL,
	appointment_id UUID,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(context.Background(), schema); err != nil {
		log.Fatalf("create schema: %v", err)
	}
	log.Println("schema ready")

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedUsers(context.Background(), pool, "doctor", 10)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if _, err := seedUsers(context.Background(), pool, "receptionist", 5); err != nil {
		log.Fatalf("seed receptionists: %v", err)
	}
	patients, err := seedUsers(context.Background(), pool, "patient", 500)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	_ = doctors

	if err := seedAppointments(context.Background(), pool, patients); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role string, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d users with role %s", count, role)

	const batchSize = 200

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, phone_number, role, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, phone, role)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}

	log.Printf("%ss seeded", role)
	return ids, nil
}

// seedAppointments books a handful of scheduled appointments over the next
// week on the default 09:00-17:00 / 30 min grid, skipping slot collisions.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, patients []uuid.UUID) error {
	if len(patients) == 0 {
		return nil
	}

	const (
		officeStartMinutes = 9 * 60
		officeEndMinutes   = 17 * 60
		slotMinutes        = 30
		perDay             = 6
	)

	log.Printf("seeding appointments for the next 7 days")

	booked := 0
	for day := 1; day <= 7; day++ {
		date := time.Now().UTC().AddDate(0, 0, day).Format("2006-01-02")

		used := make(map[int]bool)
		for i := 0; i < perDay; i++ {
			slots := (officeEndMinutes - officeStartMinutes) / slotMinutes
			minutes := officeStartMinutes + slotMinutes*gofakeit.Number(0, slots-1)
			if used[minutes] {
				continue
			}
			used[minutes] = true

			patient := patients[gofakeit.Number(0, len(patients)-1)]
			_, err := pool.Exec(ctx, `
				INSERT INTO appointments (id, patient_id, appointment_date, appointment_time, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'scheduled', now(), now())
				ON CONFLICT DO NOTHING
			`, uuid.New(), patient, date, minutes)
			if err != nil {
				return err
			}
			booked++
		}
	}

	log.Printf("appointments seeded: %d", booked)
	return nil
}
