package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"contentgen/internal/domain"
	"contentgen/internal/notify"
)

// Notifier receives terminal transitions after they commit.
type Notifier interface {
	Emit(ctx context.Context, n notify.Notice)
}

// Materializer writes the content of a completion event in one transaction.
type Materializer struct {
	store    domain.Store
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewMaterializer returns a materializer writing through store.
func NewMaterializer(store domain.Store, notifier Notifier, logger zerolog.Logger) *Materializer {
	return &Materializer{
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "materializer").Logger(),
		now:      time.Now,
	}
}

type resultSummary struct {
	ContentID         string `json:"content_id"`
	Domain            string `json:"domain"`
	Title             string `json:"title"`
	ArtifactCount     int    `json:"artifact_count"`
	ReplacedArtifacts int    `json:"replaced_artifacts"`
}

// Materialize upserts the content entity of the job, replaces its artifacts
// with the payload items and completes the job. A completed job is only
// rewritten by an event newer than the last one applied.
func (m *Materializer) Materialize(ctx context.Context, job *domain.Job, ev *Event) (*Outcome, error) {
	if ev.Result == nil || len(ev.Result.Items) == 0 {
		return nil, fmt.Errorf("%w: completion without result", domain.ErrValidation)
	}

	var (
		outcome  *Outcome
		notice   *notify.Notice
		replaced int
	)
	err := m.store.WithTx(ctx, func(tx domain.Tx) error {
		locked, err := tx.LockJob(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("lock job: %w", err)
		}

		switch locked.Status {
		case domain.JobStatusCompleted:
			if !locked.SupersededBy(ev.Timestamp) {
				outcome = &Outcome{Job: locked, Status: locked.Status, Duplicate: true, Reason: "completion already applied"}
				return nil
			}
			m.logger.Info().Str("job_id", locked.ID).Msg("regenerating completed job")
		case domain.JobStatusFailed:
			m.logger.Warn().
				Str("job_id", locked.ID).
				Str("external_job_id", ev.ExternalJobID).
				Msg("completion for failed job rejected")
			outcome = &Outcome{Job: locked, Status: locked.Status, Ignored: true, Reason: "job already failed"}
			return nil
		}

		entity, err := tx.UpsertContent(ctx, &domain.ContentEntity{
			JobID:          locked.ID,
			Domain:         locked.Domain,
			OwnerID:        locked.OwnerID,
			OrganizationID: locked.OrganizationID,
			Title:          contentTitle(locked.Domain, ev.Result),
			Summary:        ev.Result.Summary,
			Metadata:       ev.Result.Metadata,
		})
		if err != nil {
			return fmt.Errorf("upsert content: %w", err)
		}

		replaced, err = tx.DeleteArtifacts(ctx, entity.ID)
		if err != nil {
			return fmt.Errorf("delete artifacts: %w", err)
		}

		artifacts := make([]domain.Artifact, len(ev.Result.Items))
		for i, a := range ev.Result.Items {
			a.ContentID = entity.ID
			a.Domain = locked.Domain
			artifacts[i] = a
		}
		if err := tx.InsertArtifacts(ctx, entity.ID, artifacts); err != nil {
			return fmt.Errorf("insert artifacts: %w", err)
		}

		if err := locked.Transition(domain.JobStatusCompleted); err != nil {
			return err
		}
		now := m.now().UTC()
		summary, err := json.Marshal(resultSummary{
			ContentID:         entity.ID,
			Domain:            string(locked.Domain),
			Title:             entity.Title,
			ArtifactCount:     len(artifacts),
			ReplacedArtifacts: replaced,
		})
		if err != nil {
			return fmt.Errorf("encode result summary: %w", err)
		}
		locked.Progress = 100
		locked.Result = summary
		locked.Error = ""
		locked.CompletedAt = &now
		if locked.StartedAt == nil {
			locked.StartedAt = &now
		}
		eventAt := ev.Timestamp
		locked.LastEventAt = &eventAt
		if err := tx.SaveJob(ctx, locked); err != nil {
			return fmt.Errorf("save job: %w", err)
		}

		outcome = &Outcome{Job: locked, Status: locked.Status}
		notice = &notify.Notice{
			UserID:        locked.OwnerID,
			JobID:         locked.ID,
			Domain:        locked.Domain,
			Status:        domain.JobStatusCompleted,
			EventAt:       ev.Timestamp,
			ContentID:     entity.ID,
			ContentTitle:  entity.Title,
			ArtifactCount: len(artifacts),
		}
		return nil
	})
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("materialization rolled back")
		return nil, fmt.Errorf("%w: materialize job %s: %w", domain.ErrPersistence, job.ID, err)
	}

	if notice != nil {
		m.logger.Info().
			Str("job_id", notice.JobID).
			Str("content_id", notice.ContentID).
			Int("artifacts", notice.ArtifactCount).
			Int("replaced", replaced).
			Msg("content materialized")
		if m.notifier != nil {
			// Committed; the record must not depend on the caller staying connected.
			m.notifier.Emit(context.WithoutCancel(ctx), *notice)
		}
	}
	return outcome, nil
}

func contentTitle(d domain.Domain, res *Result) string {
	if res.Title != "" {
		return res.Title
	}
	if res.Summary != "" {
		r := []rune(res.Summary)
		if len(r) > 80 {
			return string(r[:80])
		}
		return res.Summary
	}
	return cases.Title(language.English).String("untitled " + d.Label())
}
