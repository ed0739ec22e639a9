// Package router assembles the gateway's HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arcagent/gateway/internal/messaging"
	"github.com/arcagent/gateway/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	MessagingHandler   *messaging.Handler
	TranscriptsHandler *messaging.TranscriptsHandler
	MetricsHandler     http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", cfg.MessagingHandler.HealthCheck)

	r.Route("/webhooks/twilio", func(r chi.Router) {
		r.Post("/incoming", cfg.MessagingHandler.TwilioWebhook)
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.TranscriptsHandler != nil {
		r.Get("/admin/transcripts/{sender}", cfg.TranscriptsHandler.GetTranscript)
	}

	return r
}
