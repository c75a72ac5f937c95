package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
)

// ResolverConfig tunes the correlation fallbacks.
type ResolverConfig struct {
	FallbackEnabled bool
	Lookback        time.Duration
	OwnerFallback   string
}

// Resolver finds the job a delivery belongs to: by external id, then by the
// most recent open job of the domain, and finally by synthesizing one.
type Resolver struct {
	jobs   domain.JobRepository
	users  domain.UserDirectory
	cfg    ResolverConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewResolver builds a resolver over the store repositories.
func NewResolver(jobs domain.JobRepository, users domain.UserDirectory, cfg ResolverConfig, logger zerolog.Logger) *Resolver {
	if cfg.Lookback <= 0 {
		cfg.Lookback = time.Hour
	}
	return &Resolver{
		jobs:   jobs,
		users:  users,
		cfg:    cfg,
		logger: logger.With().Str("component", "resolver").Logger(),
		now:    time.Now,
	}
}

// Resolve returns the job to mutate for ev.
func (r *Resolver) Resolve(ctx context.Context, ev *Event) (*domain.Job, error) {
	job, err := r.jobs.FindByExternalID(ctx, ev.Domain, ev.ExternalJobID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: find job: %w", domain.ErrPersistence, err)
	}

	if r.cfg.FallbackEnabled {
		job, err := r.adoptRecent(ctx, ev)
		if err != nil || job != nil {
			return job, err
		}
	}
	return r.synthesize(ctx, ev)
}

// adoptAttempts bounds how often a lost adoption race is retried against the
// next candidate before falling through to synthesis.
const adoptAttempts = 3

func (r *Resolver) adoptRecent(ctx context.Context, ev *Event) (*domain.Job, error) {
	since := r.now().Add(-r.cfg.Lookback)
	for attempt := 0; attempt < adoptAttempts; attempt++ {
		job, err := r.jobs.FindRecentOpen(ctx, ev.Domain, since, ev.ExternalJobID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: find recent job: %w", domain.ErrPersistence, err)
		}
		err = r.jobs.Adopt(ctx, job.ID, ev.Domain, ev.ExternalJobID)
		if errors.Is(err, domain.ErrAlreadyBound) {
			r.logger.Debug().Str("job_id", job.ID).Str("external_job_id", ev.ExternalJobID).Msg("adoption lost to another delivery")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: adopt job: %w", domain.ErrPersistence, err)
		}
		r.logger.Warn().
			Str("domain", string(ev.Domain)).
			Str("external_job_id", ev.ExternalJobID).
			Str("job_id", job.ID).
			Str("owner_id", job.OwnerID).
			Time("job_created_at", job.CreatedAt).
			Msg("correlation fallback: adopted most recent open job")
		if job.ExternalJobID == "" {
			job.ExternalJobID = ev.ExternalJobID
		}
		job.Correlation = domain.CorrelationAdopted
		return job, nil
	}
	return nil, nil
}

func (r *Resolver) synthesize(ctx context.Context, ev *Event) (*domain.Job, error) {
	owner, err := r.resolveOwner(ctx, ev)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: no job for %s %q and no owner resolvable", domain.ErrCorrelationFailed, ev.Domain, ev.ExternalJobID)
	}

	now := r.now().UTC()
	input, _ := json.Marshal(map[string]any{
		"source":      "webhook",
		"environment": ev.Environment,
		"status":      ev.Status,
	})
	candidate := &domain.Job{
		ID:            uuid.NewString(),
		Domain:        ev.Domain,
		ExternalJobID: ev.ExternalJobID,
		Status:        domain.JobStatusRunning,
		OwnerID:       owner,
		InputData:     input,
		Correlation:   domain.CorrelationSynthesized,
		StartedAt:     &now,
	}
	if _, err := uuid.Parse(ev.OrganizationID); err == nil {
		candidate.OrganizationID = ev.OrganizationID
	}

	job, created, err := r.jobs.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: synthesize job: %w", domain.ErrPersistence, err)
	}
	if created {
		r.logger.Warn().
			Str("domain", string(ev.Domain)).
			Str("external_job_id", ev.ExternalJobID).
			Str("job_id", job.ID).
			Str("owner_id", owner).
			Msg("correlation fallback: synthesized job")
	}
	return job, nil
}

func (r *Resolver) resolveOwner(ctx context.Context, ev *Event) (string, error) {
	if ev.UserID != "" {
		ok, err := r.users.Exists(ctx, ev.UserID)
		if err != nil {
			return "", fmt.Errorf("%w: check owner: %w", domain.ErrPersistence, err)
		}
		if ok {
			return ev.UserID, nil
		}
		r.logger.Warn().Str("user_id", ev.UserID).Str("external_job_id", ev.ExternalJobID).Msg("payload owner unknown")
	}
	if r.cfg.OwnerFallback != infra.OwnerFallbackEarliestUser {
		return "", nil
	}
	u, err := r.users.Earliest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: earliest user: %w", domain.ErrPersistence, err)
	}
	r.logger.Warn().Str("owner_id", u.ID).Str("external_job_id", ev.ExternalJobID).Msg("ownership fallback: earliest registered user")
	return u.ID, nil
}
