package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/idempotency"
)

// Processor runs a decoded event through the pipeline: idempotency claim,
// job resolution, then materialization, failure recording or a progress
// update depending on the canonical status.
type Processor struct {
	guard        idempotency.Guard
	jobs         domain.JobRepository
	resolver     *Resolver
	materializer *Materializer
	failures     *FailureHandler
	progress     *ProgressUpdater
	logger       zerolog.Logger
}

// NewProcessor wires the pipeline stages over store.
func NewProcessor(store domain.Store, guard idempotency.Guard, notifier Notifier, cfg ResolverConfig, logger zerolog.Logger) *Processor {
	return &Processor{
		guard:        guard,
		jobs:         store.Jobs(),
		resolver:     NewResolver(store.Jobs(), store.Users(), cfg, logger),
		materializer: NewMaterializer(store, notifier, logger),
		failures:     NewFailureHandler(store, notifier, logger),
		progress:     NewProgressUpdater(store, logger),
		logger:       logger.With().Str("component", "processor").Logger(),
	}
}

// Process handles one delivery. It returns domain.ErrInFlight while the same
// event is being processed elsewhere.
func (p *Processor) Process(ctx context.Context, ev *Event) (outcome *Outcome, err error) {
	key := idempotency.Key(ev.Domain, ev.ExternalJobID, ev.Status)
	log := p.logger.With().
		Str("domain", string(ev.Domain)).
		Str("external_job_id", ev.ExternalJobID).
		Str("status", ev.Status).
		Logger()

	guarded := false
	if p.guard != nil {
		claim, claimErr := p.guard.Claim(ctx, key)
		switch {
		case claimErr != nil:
			// The job row lock still serializes the event.
			log.Warn().Err(claimErr).Msg("idempotency guard unavailable")
		case claim == idempotency.Processed:
			log.Info().Msg("duplicate delivery skipped")
			return p.duplicate(ctx, ev), nil
		case claim == idempotency.InFlight:
			return nil, fmt.Errorf("%w: %s", domain.ErrInFlight, key)
		default:
			guarded = true
		}
	}
	if guarded {
		defer func() {
			// Detached so a cancelled request still settles the key.
			settleCtx := context.WithoutCancel(ctx)
			if err != nil {
				if relErr := p.guard.Release(settleCtx, key); relErr != nil {
					log.Error().Err(relErr).Msg("idempotency release failed")
				}
				return
			}
			if compErr := p.guard.Complete(settleCtx, key); compErr != nil {
				log.Error().Err(compErr).Msg("idempotency complete failed")
			}
		}()
	}

	job, err := p.resolver.Resolve(ctx, ev)
	if err != nil {
		return nil, err
	}

	switch ev.Mapping.Status {
	case domain.JobStatusCompleted:
		outcome, err = p.materializer.Materialize(ctx, job, ev)
	case domain.JobStatusFailed:
		outcome, err = p.failures.Fail(ctx, job, ev)
	default:
		outcome, err = p.progress.Apply(ctx, job, ev)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("job_id", outcome.Job.ID).
		Str("job_status", string(outcome.Status)).
		Int("progress", outcome.Job.Progress).
		Bool("duplicate", outcome.Duplicate).
		Bool("ignored", outcome.Ignored).
		Msg("webhook processed")
	return outcome, nil
}

func (p *Processor) duplicate(ctx context.Context, ev *Event) *Outcome {
	out := &Outcome{Status: ev.Mapping.Status, Duplicate: true, Reason: "event already processed"}
	job, err := p.jobs.FindByExternalID(ctx, ev.Domain, ev.ExternalJobID)
	if err == nil {
		out.Job = job
		out.Status = job.Status
	} else if !errors.Is(err, domain.ErrNotFound) {
		p.logger.Debug().Err(err).Msg("duplicate lookup failed")
	}
	return out
}
