package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediqueue/dental-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service      *appointment.Service
	Dependencies []Dependency
	Gatherer     prometheus.Gatherer
	Env          string
	Version      string

	AllowedOrigins  []string
	RateLimit       int
	RateLimitWindow time.Duration
	RequestTimeout  time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	health := NewHealthHandler(cfg.Env, cfg.Version, cfg.Dependencies...)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h := NewHandler(cfg.Service)

	// Unauthenticated endpoints get a per-IP limit.
	public := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		public = httprate.LimitByIP(cfg.RateLimit, window)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Get("/dentists/{code}/schedule", h.getSchedule)

		r.Route("/appointments", func(r chi.Router) {
			r.With(public).Post("/", h.createAppointment)
			r.Get("/", h.listAppointments)
			r.With(public).Get("/lookup", h.lookupAppointments)
			r.Get("/{code}", h.getAppointment)
			r.Post("/{code}/confirm", h.confirmAppointment)
			r.Post("/{code}/cancel", h.cancelAppointment)
			r.Post("/{code}/reschedule", h.rescheduleAppointment)
			r.Post("/{code}/complete", h.completeAppointment)
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", h.listQueue)
			r.Get("/next", h.nextPatient)
			r.Get("/ongoing", h.ongoing)
			r.Get("/wait", h.estimateWait)
			r.Post("/migrate", h.migrateToday)
			r.Patch("/{code}/status", h.setQueueStatus)
		})
	})

	return r
}
