package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
)

// ProgressUpdater applies PENDING and RUNNING events to open jobs.
type ProgressUpdater struct {
	store  domain.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewProgressUpdater returns an updater writing through store.
func NewProgressUpdater(store domain.Store, logger zerolog.Logger) *ProgressUpdater {
	return &ProgressUpdater{
		store:  store,
		logger: logger.With().Str("component", "progress").Logger(),
		now:    time.Now,
	}
}

// Apply records progress. Progress never decreases and a RUNNING job never
// returns to PENDING; events for finished jobs are ignored.
func (p *ProgressUpdater) Apply(ctx context.Context, job *domain.Job, ev *Event) (*Outcome, error) {
	var outcome *Outcome
	err := p.store.WithTx(ctx, func(tx domain.Tx) error {
		locked, err := tx.LockJob(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("lock job: %w", err)
		}
		if locked.Status.IsTerminal() {
			p.logger.Info().
				Str("job_id", locked.ID).
				Str("status", ev.Status).
				Str("job_status", string(locked.Status)).
				Msg("progress event for finished job ignored")
			outcome = &Outcome{Job: locked, Status: locked.Status, Ignored: true, Reason: "job already finished"}
			return nil
		}

		target := ev.Mapping.Status
		if target == domain.JobStatusPending && locked.Status == domain.JobStatusRunning {
			target = domain.JobStatusRunning
		}
		if err := locked.Transition(target); err != nil {
			return err
		}
		if progress := ev.Mapping.ProgressFor(ev.Progress); progress > locked.Progress {
			locked.Progress = progress
		}
		if locked.Status == domain.JobStatusRunning && locked.StartedAt == nil {
			now := p.now().UTC()
			locked.StartedAt = &now
		}
		if locked.SupersededBy(ev.Timestamp) {
			eventAt := ev.Timestamp
			locked.LastEventAt = &eventAt
		}
		if err := tx.SaveJob(ctx, locked); err != nil {
			return fmt.Errorf("save job: %w", err)
		}
		outcome = &Outcome{Job: locked, Status: locked.Status}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: update progress for job %s: %w", domain.ErrPersistence, job.ID, err)
	}
	return outcome, nil
}
