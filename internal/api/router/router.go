package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	httpmiddleware "github.com/groupize/aime-planner-chatbot/internal/http/middleware"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

// HealthChecker reports whether a downstream dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	InboundWebhook      http.Handler
	MetricsHandler      http.Handler
	RequestObserver     httpmiddleware.RequestObserver

	// Callback API reachability, reported on /health/ready.
	CallbackHealth HealthChecker

	JWTSecret      string
	JWTAudience    string
	RateLimitRPS   float64
	RateLimitBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.RequestObserver))
	r.Use(middleware.Recoverer)

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/health/ready", ready(cfg.CallbackHealth))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.InboundWebhook != nil {
			public.With(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)).
				Post("/webhooks/ses", cfg.InboundWebhook.ServeHTTP)
		}
	})

	// Planner backend endpoints
	if cfg.ConversationHandler != nil {
		r.Route("/api/v1", func(api chi.Router) {
			api.Use(httpmiddleware.ServiceJWT(cfg.JWTSecret, cfg.JWTAudience))
			api.With(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)).
				Post("/bids", cfg.ConversationHandler.Initiate)
			api.Route("/conversations", func(conv chi.Router) {
				conv.Get("/", cfg.ConversationHandler.List)
				conv.Get("/{id}", cfg.ConversationHandler.Get)
				conv.Post("/{id}/cancel", cfg.ConversationHandler.Cancel)
			})
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ready(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status := http.StatusOK
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
			defer cancel()
			if err := checker.Health(ctx); err != nil {
				checks["callback_api"] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				checks["callback_api"] = "ok"
			}
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": state, "checks": checks})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
