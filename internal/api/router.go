package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medoffice/office-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service *appointment.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
	Log     zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment endpoints
	r.Route("/api/appointments", func(r chi.Router) {
		r.Get("/available", availableSlotsHandler(cfg.Service))
		r.Get("/existing", listAppointmentsByDateHandler(cfg.Service))
		r.Get("/patient/{id}", listAppointmentsByPatientHandler(cfg.Service))
		r.Post("/", bookAppointmentHandler(cfg.Service))
		r.Post("/{id}/mark-no-show", markNoShowHandler(cfg.Service))
		r.Delete("/{id}", cancelAppointmentHandler(cfg.Service))
	})

	// Visit endpoints
	r.Route("/api/visits", func(r chi.Router) {
		r.Post("/", completeVisitHandler(cfg.Service))
		r.Put("/{id}", updateVisitHandler(cfg.Service))
		r.Get("/patient/{id}", listVisitsByPatientHandler(cfg.Service))
	})

	return r
}
