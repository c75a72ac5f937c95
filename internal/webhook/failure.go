package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/notify"
)

// DefaultFailureMessage is stored when a failure event carries no error text.
const DefaultFailureMessage = "generation failed"

// FailureHandler records failure events on their jobs.
type FailureHandler struct {
	store    domain.Store
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewFailureHandler returns a handler writing through store.
func NewFailureHandler(store domain.Store, notifier Notifier, logger zerolog.Logger) *FailureHandler {
	return &FailureHandler{
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "failure").Logger(),
		now:      time.Now,
	}
}

// Fail moves the job to FAILED. A completed job keeps its status and content;
// a job that already failed is left alone.
func (f *FailureHandler) Fail(ctx context.Context, job *domain.Job, ev *Event) (*Outcome, error) {
	var (
		outcome *Outcome
		notice  *notify.Notice
	)
	err := f.store.WithTx(ctx, func(tx domain.Tx) error {
		locked, err := tx.LockJob(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("lock job: %w", err)
		}

		switch locked.Status {
		case domain.JobStatusCompleted:
			f.logger.Warn().
				Str("job_id", locked.ID).
				Str("external_job_id", ev.ExternalJobID).
				Str("error", ev.Error).
				Msg("late failure for completed job rejected")
			outcome = &Outcome{Job: locked, Status: locked.Status, Ignored: true, Reason: "job already completed"}
			return nil
		case domain.JobStatusFailed:
			outcome = &Outcome{Job: locked, Status: locked.Status, Duplicate: true, Reason: "job already failed"}
			return nil
		}

		if err := locked.Transition(domain.JobStatusFailed); err != nil {
			return err
		}
		now := f.now().UTC()
		locked.Error = ev.Error
		if locked.Error == "" {
			locked.Error = DefaultFailureMessage
		}
		locked.Progress = 0
		locked.CompletedAt = &now
		eventAt := ev.Timestamp
		locked.LastEventAt = &eventAt
		if err := tx.SaveJob(ctx, locked); err != nil {
			return fmt.Errorf("save job: %w", err)
		}

		outcome = &Outcome{Job: locked, Status: locked.Status}
		notice = &notify.Notice{
			UserID:  locked.OwnerID,
			JobID:   locked.ID,
			Domain:  locked.Domain,
			Status:  domain.JobStatusFailed,
			EventAt: ev.Timestamp,
			Error:   locked.Error,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fail job %s: %w", domain.ErrPersistence, job.ID, err)
	}

	if notice != nil {
		f.logger.Info().Str("job_id", notice.JobID).Str("error", notice.Error).Msg("job failed")
		if f.notifier != nil {
			// Committed; the record must not depend on the caller staying connected.
			f.notifier.Emit(context.WithoutCancel(ctx), *notice)
		}
	}
	return outcome, nil
}
