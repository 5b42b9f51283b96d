package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/hackgods/slot-booking/internal/logger"
)

const RoleOperator = "operator"

type RouterConfig struct {
	Bookings BookingService
	// Payments is nil when no payment gateway is configured.
	Payments PaymentService
	Postgres Pinger
	Redis    *redis.Client
	Log      *logger.Logger

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	h := &handlers{
		bookings:  cfg.Bookings,
		payments:  cfg.Payments,
		validator: newRequestValidator(),
		log:       cfg.Log,
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	}).Handler)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Read path
	r.Get("/offerings/{id}/slots", h.listSlots)
	r.Get("/bookings/{id}", h.getBooking)

	// Mutating and advisory endpoints are rate limited per client.
	r.Group(func(r chi.Router) {
		r.Use(limiter.Limit)

		r.Post("/offerings/{id}/check", h.checkSlot)
		r.Post("/bookings", h.createBooking)
		r.Post("/payments/intents", h.createIntent)
		r.Post("/payments/confirm", h.confirmPayment)

		r.With(JWTMiddleware(cfg.JWTSecret, RoleOperator)).Post("/bookings/{id}/cancel", h.cancelBooking)
	})

	return r
}
