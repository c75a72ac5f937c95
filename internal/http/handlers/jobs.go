package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"contentgen/internal/domain"
)

type jobView struct {
	ID             string          `json:"id"`
	Domain         string          `json:"domain"`
	ExternalJobID  string          `json:"external_job_id,omitempty"`
	Status         string          `json:"status"`
	Progress       int             `json:"progress"`
	OwnerID        string          `json:"owner_id"`
	OrganizationID string          `json:"organization_id,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	Correlation    string          `json:"correlation"`
	LastEventAt    *time.Time      `json:"last_event_at,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type artifactView struct {
	ID              string          `json:"id"`
	Position        int             `json:"position"`
	Title           string          `json:"title,omitempty"`
	Body            string          `json:"body,omitempty"`
	StorageKey      string          `json:"storage_key,omitempty"`
	URL             string          `json:"url,omitempty"`
	MIME            string          `json:"mime,omitempty"`
	Width           int             `json:"width,omitempty"`
	Height          int             `json:"height,omitempty"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	Bytes           int64           `json:"bytes,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

type contentView struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Summary   string          `json:"summary,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Artifacts []artifactView  `json:"artifacts"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// GetJob returns a job with its materialized content. The path id is the
// internal id; with ?domain= it is also tried as an external job id.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	ctx := r.Context()

	job, err := a.Jobs.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		if raw := r.URL.Query().Get("domain"); raw != "" {
			d, perr := domain.ParseDomain(raw)
			if perr != nil {
				a.error(w, r, http.StatusBadRequest, "validation_failed", perr.Error())
				return
			}
			job, err = a.Jobs.FindByExternalID(ctx, d, id)
		}
	}
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", id).Msg("load job failed")
		a.error(w, r, http.StatusInternalServerError, "persistence_failed", "failed to load job")
		return
	}

	resp := map[string]any{"job": toJobView(job), "content": nil}
	content, err := a.Content.ContentByJob(ctx, job.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("load content failed")
		a.error(w, r, http.StatusInternalServerError, "persistence_failed", "failed to load content")
		return
	default:
		artifacts, err := a.Content.Artifacts(ctx, content.ID)
		if err != nil {
			a.Logger.Error().Err(err).Str("content_id", content.ID).Msg("load artifacts failed")
			a.error(w, r, http.StatusInternalServerError, "persistence_failed", "failed to load artifacts")
			return
		}
		resp["content"] = toContentView(content, artifacts)
	}
	a.json(w, http.StatusOK, resp)
}

func toJobView(j *domain.Job) jobView {
	return jobView{
		ID:             j.ID,
		Domain:         string(j.Domain),
		ExternalJobID:  j.ExternalJobID,
		Status:         string(j.Status),
		Progress:       j.Progress,
		OwnerID:        j.OwnerID,
		OrganizationID: j.OrganizationID,
		Result:         rawOrNil(j.Result),
		Error:          j.Error,
		Correlation:    string(j.Correlation),
		LastEventAt:    j.LastEventAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func toContentView(c *domain.ContentEntity, artifacts []domain.Artifact) contentView {
	out := contentView{
		ID:        c.ID,
		Title:     c.Title,
		Summary:   c.Summary,
		Metadata:  rawOrNil(c.Metadata),
		Artifacts: make([]artifactView, 0, len(artifacts)),
		UpdatedAt: c.UpdatedAt,
	}
	for _, a := range artifacts {
		out.Artifacts = append(out.Artifacts, artifactView{
			ID:              a.ID,
			Position:        a.Position,
			Title:           a.Title,
			Body:            a.Body,
			StorageKey:      a.StorageKey,
			URL:             a.URL,
			MIME:            a.MIME,
			Width:           a.Width,
			Height:          a.Height,
			DurationSeconds: a.DurationSeconds,
			Bytes:           a.Bytes,
			Metadata:        rawOrNil(a.Metadata),
		})
	}
	return out
}

func rawOrNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
