// Package outbox drains stored notifications to the delivery channels.
package outbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/notify"
)

// Publisher hands one notification to the delivery side.
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
}

// StreamPublisher appends notifications to a Redis stream consumed by the
// email and push senders.
type StreamPublisher struct {
	client redis.Cmdable
	stream string
}

// NewStreamPublisher returns a publisher writing to stream.
func NewStreamPublisher(client redis.Cmdable, stream string) *StreamPublisher {
	if stream == "" {
		stream = "notifications"
	}
	return &StreamPublisher{client: client, stream: stream}
}

func (p *StreamPublisher) Publish(ctx context.Context, n domain.Notification) error {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: streamValues(n),
	}).Result()
	if err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

func streamValues(n domain.Notification) map[string]any {
	metadata := string(n.Metadata)
	if metadata == "" {
		metadata = "{}"
	}
	return map[string]any{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"job_id":          n.JobID,
		"type":            string(n.Type),
		"title":           n.Title,
		"message":         n.Message,
		"metadata":        metadata,
		"channels":        strings.Join(notify.Channels, ","),
		"attempt":         n.DispatchAttempts,
		"created_at":      n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// LogPublisher only records the delivery intent. It is used when no Redis
// is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher returns a publisher writing to logger.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "outbox").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, n domain.Notification) error {
	for _, ch := range notify.Channels {
		p.logger.Info().
			Str("channel", ch).
			Str("notification_id", n.ID).
			Str("user_id", n.UserID).
			Str("type", string(n.Type)).
			Msg("notification delivery")
	}
	return nil
}
