package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"contentgen/internal/domain"
)

// Config tunes a Dispatcher.
type Config struct {
	BatchSize    int
	Lease        time.Duration
	Attempts     uint
	RetryDelay   time.Duration
	PollInterval time.Duration
}

// Dispatcher claims pending notifications and publishes them. A notification
// that cannot be published is released for the next pass.
type Dispatcher struct {
	repo      domain.NotificationRepository
	publisher Publisher
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDispatcher returns a dispatcher draining repo into publisher.
func NewDispatcher(repo domain.NotificationRepository, publisher Publisher, cfg Config, logger zerolog.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		now:       time.Now,
	}
}

// DispatchOnce drains one batch and returns how many notifications were published.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	batch, err := d.repo.ClaimPending(ctx, d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim notifications: %w", err)
	}

	sent := 0
	for _, n := range batch {
		n := n
		err := retry.Do(
			func() error {
				return d.publisher.Publish(ctx, n)
			},
			retry.Context(ctx),
			retry.Attempts(d.cfg.Attempts),
			retry.Delay(d.cfg.RetryDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			d.logger.Warn().Err(err).Str("notification_id", n.ID).Int("attempts", n.DispatchAttempts).Msg("notification publish failed")
			if relErr := d.repo.Release(ctx, n.ID); relErr != nil {
				d.logger.Error().Err(relErr).Str("notification_id", n.ID).Msg("notification release failed")
			}
			continue
		}
		if err := d.repo.MarkDispatched(ctx, n.ID, d.now().UTC()); err != nil {
			d.logger.Error().Err(err).Str("notification_id", n.ID).Msg("mark dispatched failed")
			continue
		}
		sent++
	}
	if sent > 0 {
		d.logger.Info().Int("sent", sent).Int("claimed", len(batch)).Msg("notifications dispatched")
	}
	return sent, nil
}

// Run dispatches on every tick and whenever wake fires, until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, wake <-chan struct{}) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("dispatch pass failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}
