// Package notify records terminal job transitions as notifications for the
// job owner. Records double as the dispatch outbox drained by cmd/worker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"contentgen/internal/domain"
)

// Channels that delivery intent is logged for. Delivery itself is external.
var Channels = []string{"email", "push"}

// Notice describes one terminal transition.
type Notice struct {
	UserID        string
	JobID         string
	Domain        domain.Domain
	Status        domain.JobStatus
	EventAt       time.Time
	ContentID     string
	ContentTitle  string
	ArtifactCount int
	Error         string
}

// Emitter turns notices into notification records.
type Emitter struct {
	repo   domain.NotificationRepository
	logger zerolog.Logger
}

// NewEmitter returns an emitter persisting through repo.
func NewEmitter(repo domain.NotificationRepository, logger zerolog.Logger) *Emitter {
	return &Emitter{
		repo:   repo,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Emit stores exactly one notification per notice. Failures are logged and
// never reach the caller.
func (e *Emitter) Emit(ctx context.Context, n Notice) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error().Interface("panic", p).Str("job_id", n.JobID).Msg("notification emit panicked")
		}
	}()

	record := e.Build(n)
	inserted, err := e.repo.Insert(ctx, record)
	if err != nil {
		e.logger.Error().Err(err).
			Str("job_id", n.JobID).
			Str("type", string(record.Type)).
			Msg("notification insert failed")
		return
	}
	if !inserted {
		e.logger.Debug().Str("dedupe_key", record.DedupeKey).Msg("notification already recorded")
		return
	}
	for _, ch := range Channels {
		e.logger.Info().
			Str("channel", ch).
			Str("notification_id", record.ID).
			Str("user_id", record.UserID).
			Str("type", string(record.Type)).
			Msg("notification delivery intent")
	}
}

// Build derives the notification record of a notice.
func (e *Emitter) Build(n Notice) *domain.Notification {
	typ := domain.NotificationTypeFor(n.Domain, n.Status)
	label := n.Domain.Label()
	// Casers carry state and are not safe for concurrent use.
	titler := cases.Title(language.English)

	var title, message string
	switch n.Status {
	case domain.JobStatusCompleted:
		title = titler.String(label + " ready")
		noun := pluralize(domain.ArtifactKind(n.Domain), n.ArtifactCount)
		if n.ContentTitle != "" {
			message = fmt.Sprintf("Your %s %q is ready with %d %s.", label, n.ContentTitle, n.ArtifactCount, noun)
		} else {
			message = fmt.Sprintf("Your %s is ready with %d %s.", label, n.ArtifactCount, noun)
		}
	case domain.JobStatusFailed:
		title = titler.String(label + " generation failed")
		reason := n.Error
		if reason == "" {
			reason = "generation failed"
		}
		message = fmt.Sprintf("We could not generate your %s: %s", label, reason)
	default:
		title = titler.String(label + " update")
		message = fmt.Sprintf("Your %s is now %s.", label, cases.Lower(language.English).String(string(n.Status)))
	}

	meta := map[string]any{
		"job_id": n.JobID,
		"domain": string(n.Domain),
		"status": string(n.Status),
	}
	if n.ContentID != "" {
		meta["content_id"] = n.ContentID
		meta["artifact_count"] = n.ArtifactCount
	}
	if n.Error != "" {
		meta["error"] = n.Error
	}
	metadata, _ := json.Marshal(meta)

	return &domain.Notification{
		UserID:    n.UserID,
		JobID:     n.JobID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Metadata:  metadata,
		DedupeKey: DedupeKey(n.JobID, typ, n.EventAt),
	}
}

// DedupeKey identifies one terminal transition of a job.
func DedupeKey(jobID string, typ domain.NotificationType, eventAt time.Time) string {
	return jobID + ":" + string(typ) + ":" + strconv.FormatInt(eventAt.UnixMilli(), 10)
}

func pluralize(noun string, n int) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
