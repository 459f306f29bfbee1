package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/careloop/booking-platform/internal/appointments"
	httpmiddleware "github.com/careloop/booking-platform/internal/http/middleware"
	"github.com/careloop/booking-platform/internal/notifications"
	"github.com/careloop/booking-platform/internal/rules"
	"github.com/careloop/booking-platform/internal/schedule"
	"github.com/careloop/booking-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger               *logging.Logger
	RulesHandler         *rules.Handler
	ScheduleHandler      *schedule.Handler
	AppointmentsHandler  *appointments.Handler
	NotificationsHandler *notifications.Handler
	SSEHandler           *notifications.SSEHandler
	MetricsHandler       http.Handler
	HealthCheck          func(r *http.Request) error
	AuthJWTSecret        string
	CORSAllowedOrigins   []string
	BookingRateLimit     float64
	BookingRateBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthCheck))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api/v1", func(api chi.Router) {
		// EventSource cannot set headers, so the stream authenticates
		// via query token instead of the Authorization header.
		if cfg.SSEHandler != nil {
			api.With(httpmiddleware.UserJWTFromQuery(cfg.AuthJWTSecret)).
				Get("/notifications/sse", cfg.SSEHandler.Stream)
		}

		api.Group(func(authed chi.Router) {
			authed.Use(httpmiddleware.UserJWT(cfg.AuthJWTSecret))

			if cfg.RulesHandler != nil {
				authed.Route("/availability-rules", func(r chi.Router) {
					r.Post("/", cfg.RulesHandler.Create)
					r.Get("/my", cfg.RulesHandler.ListMine)
					r.Patch("/{id}", cfg.RulesHandler.Update)
					r.Delete("/{id}", cfg.RulesHandler.Delete)
				})
			}

			if cfg.ScheduleHandler != nil {
				authed.Route("/timeslots", func(r chi.Router) {
					r.Post("/generate", cfg.ScheduleHandler.Generate)
					r.Post("/", cfg.ScheduleHandler.CreateManual)
					r.Get("/host/{id}", cfg.ScheduleHandler.ListByProvider)
					r.Delete("/{id}", cfg.ScheduleHandler.Delete)
				})
			}

			if cfg.AppointmentsHandler != nil {
				authed.Route("/appointments", func(r chi.Router) {
					create := r.With()
					if cfg.BookingRateLimit > 0 {
						create = r.With(httpmiddleware.RateLimit(cfg.BookingRateLimit, cfg.BookingRateBurst))
					}
					create.Post("/", cfg.AppointmentsHandler.Create)
					r.Get("/my", cfg.AppointmentsHandler.ListMine)
					r.Patch("/{id}/confirm", cfg.AppointmentsHandler.Confirm)
					r.Patch("/{id}/cancel", cfg.AppointmentsHandler.Cancel)
					r.Patch("/{id}/complete", cfg.AppointmentsHandler.Complete)
				})
			}

			if cfg.NotificationsHandler != nil {
				authed.Route("/notifications", func(r chi.Router) {
					r.Get("/my", cfg.NotificationsHandler.ListMine)
					r.Get("/unread-count", cfg.NotificationsHandler.UnreadCount)
					r.Patch("/{id}/read", cfg.NotificationsHandler.MarkRead)
					r.Patch("/read-all", cfg.NotificationsHandler.MarkAllRead)
					r.Delete("/{id}", cfg.NotificationsHandler.Delete)
				})
			}
		})
	})

	return r
}

func healthHandler(check func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
