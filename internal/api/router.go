package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/triage-scheduling/internal/appointment"
	"github.com/hackgods/triage-scheduling/internal/notification"
	"github.com/hackgods/triage-scheduling/internal/triage"
)

type RouterConfig struct {
	Service       *appointment.Service
	Notifications *notification.Dispatcher
	Analyzer      triage.Analyzer
	Knowledge     *triage.KnowledgeBase
	RateLimiter   *RateLimiter // optional
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Logger        zerolog.Logger
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Notifications.Registry(), cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}
		r.Use(PrincipalMiddleware)

		// Triage endpoints
		r.Post("/triage/analyze", analyzeSymptomsHandler(cfg.Analyzer))
		r.Get("/triage/symptoms", symptomSuggestionsHandler(cfg.Knowledge))
		r.Get("/triage/specializations/{name}/symptoms", specializationSymptomsHandler(cfg.Knowledge))

		// Appointment endpoints
		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Post("/appointments/auto", autoBookHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/appointments/{id}/status", updateStatusHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/rating", rateAppointmentHandler(cfg.Service))

		// Notification endpoints
		r.Get("/notifications", listNotificationsHandler(cfg.Notifications))
		r.Post("/notifications", createNotificationHandler(cfg.Notifications))
		r.Get("/notifications/unread-count", unreadCountHandler(cfg.Notifications))
		r.Patch("/notifications/read-all", markAllReadHandler(cfg.Notifications))
		r.Patch("/notifications/{id}/read", markReadHandler(cfg.Notifications))
		r.Delete("/notifications/{id}", deleteNotificationHandler(cfg.Notifications))

		r.Get("/ws", websocketHandler(cfg.Notifications, cfg.Logger))
	})

	return r
}
