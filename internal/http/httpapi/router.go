package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"contentgen/internal/http/handlers"
	"contentgen/internal/middleware"
)

// Options configures the webhook protections.
type Options struct {
	WebhookSecret  string
	RateLimitRPS   float64
	RateLimitBurst int
	// Geo tags access log lines with the client country when set.
	Geo middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger, opts.Geo),
	)
	r.NotFound(app.NotFound)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst),
			middleware.WebhookSecret(opts.WebhookSecret),
		)

		r.Route("/v1/webhooks", func(r chi.Router) {
			r.MethodNotAllowed(app.MethodNotAllowed)
			r.Post("/books", app.BooksWebhook)
			r.Post("/images", app.ImagesWebhook)
			r.Post("/videos", app.VideosWebhook)
		})

		// Polling surface for job progress and materialized content.
		r.Get("/v1/jobs/{job_id}", app.GetJob)
	})

	return r
}
