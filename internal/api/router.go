package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/careslot/booking/internal/scheduling"
)

type RouterConfig struct {
	Engine  *scheduling.Engine
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Log     *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints sit outside the actor requirement.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		r.Post("/availability", createWindowHandler(cfg.Engine))
		r.Get("/practitioners/{id}/availability", listWindowsHandler(cfg.Engine))
		r.Get("/practitioners/{id}/appointments", listPractitionerAppointmentsHandler(cfg.Engine))

		r.Post("/appointments", createAppointmentHandler(cfg.Engine))
		r.Get("/appointments", listRequesterAppointmentsHandler(cfg.Engine))
		r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Engine))
	})

	return r
}
