package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"contentgen/internal/domain"
	"contentgen/internal/webhook"
)

type webhookAck struct {
	Success       bool   `json:"success"`
	JobID         string `json:"job_id"`
	InternalJobID string `json:"internal_job_id,omitempty"`
	Status        string `json:"status"`
	Duplicate     bool   `json:"duplicate"`
	Ignored       bool   `json:"ignored"`
	Reason        string `json:"reason,omitempty"`
	ProcessingMS  int64  `json:"processing_ms"`
}

func (a *App) BooksWebhook(w http.ResponseWriter, r *http.Request) {
	a.handleWebhook(w, r, domain.DomainBook)
}

func (a *App) ImagesWebhook(w http.ResponseWriter, r *http.Request) {
	a.handleWebhook(w, r, domain.DomainImage)
}

func (a *App) VideosWebhook(w http.ResponseWriter, r *http.Request) {
	a.handleWebhook(w, r, domain.DomainVideo)
}

func (a *App) handleWebhook(w http.ResponseWriter, r *http.Request, d domain.Domain) {
	start := time.Now()

	limit := a.MaxBodyBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "payload exceeds size limit")
			return
		}
		a.error(w, r, http.StatusBadRequest, "validation_failed", "unreadable body")
		return
	}

	ev, err := a.Decoder.Decode(d, body)
	if err != nil {
		a.Logger.Warn().Err(err).Str("domain", string(d)).Msg("webhook rejected")
		a.error(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	outcome, err := a.Processor.Process(r.Context(), ev)
	if err != nil {
		a.processError(w, r, ev, err)
		return
	}

	ack := webhookAck{
		Success:      true,
		JobID:        ev.ExternalJobID,
		Status:       string(outcome.Status),
		Duplicate:    outcome.Duplicate,
		Ignored:      outcome.Ignored,
		Reason:       outcome.Reason,
		ProcessingMS: time.Since(start).Milliseconds(),
	}
	if outcome.Job != nil {
		ack.InternalJobID = outcome.Job.ID
	}
	a.json(w, http.StatusOK, ack)
}

func (a *App) processError(w http.ResponseWriter, r *http.Request, ev *webhook.Event, err error) {
	log := a.Logger.With().
		Str("domain", string(ev.Domain)).
		Str("external_job_id", ev.ExternalJobID).
		Str("status", ev.Status).
		Logger()
	switch {
	case errors.Is(err, domain.ErrInFlight):
		w.Header().Set("Retry-After", "1")
		a.error(w, r, http.StatusConflict, "in_progress", "event is already being processed")
	case errors.Is(err, domain.ErrCorrelationFailed):
		log.Warn().Err(err).Msg("webhook correlation failed")
		a.error(w, r, http.StatusUnprocessableEntity, "correlation_failed", "no job matches this event")
	case errors.Is(err, domain.ErrValidation):
		a.error(w, r, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		log.Error().Err(err).Msg("webhook processing failed")
		a.error(w, r, http.StatusInternalServerError, "persistence_failed", "event could not be stored")
	}
}
