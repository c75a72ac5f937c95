package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/middleware"
	"contentgen/internal/webhook"
)

// App carries the dependencies of the HTTP handlers.
type App struct {
	Processor    *webhook.Processor
	Decoder      *webhook.Decoder
	Jobs         domain.JobRepository
	Content      domain.ContentReader
	MaxBodyBytes int64
	Logger       zerolog.Logger
	// Ready reports whether backing services are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	a.json(w, code, errorEnvelope{
		Error:     errorBody{Code: errCode, Message: msg},
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

// MethodNotAllowed answers non-POST calls to the webhook endpoints.
func (a *App) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	a.error(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
}

// NotFound answers unknown routes with the error envelope.
func (a *App) NotFound(w http.ResponseWriter, r *http.Request) {
	a.error(w, r, http.StatusNotFound, "not_found", "route not found")
}
