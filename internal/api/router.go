package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

// AppointmentService is the part of *appointment.Service the HTTP layer uses.
type AppointmentService interface {
	Reserve(ctx context.Context, patientNIF, doctorNIF string, date time.Time) (*appointment.Appointment, error)
	Cancel(ctx context.Context, patientNIF, doctorNIF string, appointmentDate, cancellationDate time.Time, reason string) (*appointment.Cancellation, error)
	List(ctx context.Context, doctorNIF string) ([]appointment.HistoryEntry, error)
}

type RouterConfig struct {
	Service  AppointmentService
	Postgres Pinger
	Redis    Pinger
	Logger   *zap.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger.Named("http")))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/appointments", reserveHandler(cfg.Service))
	r.Post("/appointments/cancel", cancelHandler(cfg.Service))
	r.Get("/doctors/{nif}/appointments", listHandler(cfg.Service))

	return r
}
