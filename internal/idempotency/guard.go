// Package idempotency deduplicates webhook deliveries. A guard hands out an
// atomic claim per event key; the claimant either completes the key, which
// suppresses redeliveries for the configured window, or releases it so a
// retry can process the event again.
package idempotency

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
)

// Claim is the outcome of an attempt to take ownership of an event key.
type Claim int

const (
	// Claimed means the caller owns the key and must Complete or Release it.
	Claimed Claim = iota
	// Processed means the event was already handled within the window.
	Processed
	// InFlight means another request is handling the event right now.
	InFlight
)

func (c Claim) String() string {
	switch c {
	case Claimed:
		return "claimed"
	case Processed:
		return "processed"
	case InFlight:
		return "in_flight"
	}
	return "unknown"
}

// Guard is an atomic check-and-mark store of event keys.
type Guard interface {
	Claim(ctx context.Context, key string) (Claim, error)
	Complete(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Sweeper removes expired keys.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Key builds the event key for a delivery: domain, external job id and the
// normalized status reported by the worker.
func Key(d domain.Domain, externalJobID, status string) string {
	return string(d) + ":" + externalJobID + ":" + strings.ToLower(strings.TrimSpace(status))
}

// RunSweeper calls s.Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("idempotency sweep failed")
				continue
			}
			if removed > 0 {
				logger.Debug().Int("removed", removed).Msg("idempotency keys swept")
			}
		}
	}
}
